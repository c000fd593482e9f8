package reference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GroupCodeRow is a product group code as stored in the warehouse. The code is
// free text and is coerced to an integer on load.
type GroupCodeRow struct {
	GroupCode   string
	Category    string
	SubCategory string
	ProductType string
}

// ContactRow is a contact entry as stored in the warehouse. Empty strings
// stand for NULL.
type ContactRow struct {
	CardNo string
	Email  string
	Mobile string
}

// Source lists the raw reference rows valid on the as-of date.
type Source interface {
	ListGroupCodes(ctx context.Context, asOf civil.Date) ([]GroupCodeRow, error)
	ListOutlets(ctx context.Context, asOf civil.Date) ([]domain.Outlet, error)
	ListContacts(ctx context.Context, asOf civil.Date) ([]ContactRow, error)
}

// Tables are the side tables joined onto every batch of a run. They are
// read-only once loaded and may be shared between workers.
type Tables struct {
	GroupCodes map[int64]domain.GroupCode
	Contacts   map[int64]domain.Contact
	Outlets    map[string]domain.Outlet
}

// GroupCode looks up a group code. A nil Tables matches nothing.
func (t *Tables) GroupCode(code int64) (domain.GroupCode, bool) {
	if t == nil {
		return domain.GroupCode{}, false
	}
	g, ok := t.GroupCodes[code]
	return g, ok
}

// Contact looks up the contact registered for a card.
func (t *Tables) Contact(cardNo int64) (domain.Contact, bool) {
	if t == nil {
		return domain.Contact{}, false
	}
	c, ok := t.Contacts[cardNo]
	return c, ok
}

// Outlet looks up the outlet of a trimmed terminal id.
func (t *Tables) Outlet(terminalID string) (domain.Outlet, bool) {
	if t == nil {
		return domain.Outlet{}, false
	}
	o, ok := t.Outlets[terminalID]
	return o, ok
}

// Load runs the three reference queries concurrently and indexes the results
// so that every join stays many-to-one.
func Load(ctx context.Context, src Source, asOf civil.Date) (*Tables, error) {
	log := logger.FromContext(ctx).With().Str("as_of", asOf.String()).Logger()
	start := time.Now()

	var (
		groupRows   []GroupCodeRow
		outletRows  []domain.Outlet
		contactRows []ContactRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := src.ListGroupCodes(gctx, asOf)
		if err != nil {
			return fmt.Errorf("Load: listing group codes: %w", err)
		}
		groupRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := src.ListOutlets(gctx, asOf)
		if err != nil {
			return fmt.Errorf("Load: listing outlets: %w", err)
		}
		outletRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := src.ListContacts(gctx, asOf)
		if err != nil {
			return fmt.Errorf("Load: listing contacts: %w", err)
		}
		contactRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	contacts, err := indexContacts(log, contactRows)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	t := &Tables{
		GroupCodes: indexGroupCodes(log, groupRows),
		Contacts:   contacts,
		Outlets:    indexOutlets(log, outletRows),
	}

	log.Info().
		Int("group_codes", len(t.GroupCodes)).
		Int("contacts", len(t.Contacts)).
		Int("outlets", len(t.Outlets)).
		Dur("duration", time.Since(start)).
		Msg("Reference tables loaded")

	return t, nil
}

func indexGroupCodes(log zerolog.Logger, rows []GroupCodeRow) map[int64]domain.GroupCode {
	out := make(map[int64]domain.GroupCode, len(rows))
	var dropped, dupes int
	for _, r := range rows {
		code, ok := domain.ParseCode(r.GroupCode)
		if !ok {
			dropped++
			continue
		}
		if _, exists := out[code]; exists {
			dupes++
			continue
		}
		out[code] = domain.GroupCode{
			Code:        code,
			Category:    strings.TrimSpace(r.Category),
			SubCategory: strings.TrimSpace(r.SubCategory),
			ProductType: strings.TrimSpace(r.ProductType),
		}
	}
	if dropped > 0 || dupes > 0 {
		log.Warn().Int("non_numeric", dropped).Int("duplicates", dupes).Msg("Group codes skipped")
	}
	return out
}

func indexContacts(log zerolog.Logger, rows []ContactRow) (map[int64]domain.Contact, error) {
	out := make(map[int64]domain.Contact, len(rows))
	var empty, dupes int
	for i, r := range rows {
		cardNo, err := domain.ParseCardNo(r.CardNo)
		if err != nil {
			return nil, fmt.Errorf("contact row %d: card_no %q: %w", i, r.CardNo, err)
		}
		c := domain.Contact{
			CardNo: cardNo,
			Email:  strings.TrimSpace(r.Email),
			Mobile: strings.TrimSpace(r.Mobile),
		}
		if c.Email == "" && c.Mobile == "" {
			empty++
			continue
		}
		if _, exists := out[cardNo]; exists {
			dupes++
			continue
		}
		out[cardNo] = c
	}
	if empty > 0 || dupes > 0 {
		log.Warn().Int("without_contact", empty).Int("duplicates", dupes).Msg("Contacts skipped")
	}
	return out, nil
}

func indexOutlets(log zerolog.Logger, rows []domain.Outlet) map[string]domain.Outlet {
	out := make(map[string]domain.Outlet, len(rows))
	var unassigned, dupes int
	for _, o := range rows {
		o.TerminalID = strings.TrimSpace(o.TerminalID)
		if o.TerminalID == "" {
			unassigned++
			continue
		}
		if _, exists := out[o.TerminalID]; exists {
			dupes++
			continue
		}
		o.OutletName = strings.TrimSpace(o.OutletName)
		o.ParticipantName = strings.TrimSpace(o.ParticipantName)
		out[o.TerminalID] = o
	}
	if unassigned > 0 || dupes > 0 {
		log.Debug().Int("without_terminal", unassigned).Int("duplicates", dupes).Msg("Outlets skipped")
	}
	return out
}
