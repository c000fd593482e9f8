// Package record folds the flat header/detail join of a batch into one nested
// export record per transaction.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/reference"
	"github.com/shopspring/decimal"
)

const (
	// DefaultRecordType is the record type of issuance exports.
	DefaultRecordType = "issue"

	// GatewayID identifies this exporter as the record source.
	GatewayID = 1
)

// ErrMalformedCardNo is wrapped by every PreconditionError.
var ErrMalformedCardNo = domain.ErrMalformedCardNo

// PreconditionError reports an input row that breaks the data contract. The
// whole batch is rejected and nothing is written for it.
type PreconditionError struct {
	Row   int
	Field string
	Value string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("row %d: %s %q is not an integer", e.Row, e.Field, e.Value)
}

func (e *PreconditionError) Unwrap() error {
	return ErrMalformedCardNo
}

// IsPrecondition reports whether err was caused by malformed input data.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// Options tune the output of Build.
type Options struct {
	// RecordType is written to the type column. Empty means DefaultRecordType.
	RecordType string
}

// line is a normalized and joined input line.
type line struct {
	src *domain.TransactionLine

	cardID     int64
	terminalID string

	productCode  int64
	categoryCode string
	groupFound   bool

	qty      decimal.Decimal
	value    decimal.Decimal
	stdPts   decimal.Decimal
	bonusPts decimal.Decimal

	stdPointsValue   decimal.Decimal
	bonusPointsValue decimal.Decimal

	userID   string
	userType string

	outlet      domain.Outlet
	outletFound bool
}

// group is the ordered list of lines of one transaction.
type group struct {
	transactionID int64
	lines         []*line
}

// Build turns a batch of transaction lines into one OutputRecord per distinct
// transaction id, in order of first appearance. An empty batch yields an empty
// result. A card number that is not an integer rejects the whole batch with a
// *PreconditionError. refs may be nil, in which case every join misses.
//
// Build is a pure function of its inputs: identical batches and tables give
// identical records.
func Build(ctx context.Context, lines []domain.TransactionLine, refs *reference.Tables, opts Options) ([]domain.OutputRecord, error) {
	if len(lines) == 0 {
		return []domain.OutputRecord{}, nil
	}

	joined := make([]*line, len(lines))
	var groupMisses int
	for i := range lines {
		l, err := normalize(i, &lines[i], refs)
		if err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		if l.categoryCode != "" && !l.groupFound {
			groupMisses++
		}
		joined[i] = l
	}

	log := logger.FromContext(ctx)
	if groupMisses > 0 {
		log.Debug().Int("lines", groupMisses).Msg("Group codes without reference entry")
	}

	recordType := strings.TrimSpace(opts.RecordType)
	if recordType == "" {
		recordType = DefaultRecordType
	}

	groups := groupByTransaction(joined)
	records := make([]domain.OutputRecord, 0, len(groups))
	for _, g := range groups {
		records = append(records, assemble(log, g, recordType))
	}
	return records, nil
}

// normalize coerces the raw line and left-joins it onto the reference tables.
func normalize(row int, src *domain.TransactionLine, refs *reference.Tables) (*line, error) {
	cardID, err := domain.ParseCardNo(src.CardNo)
	if err != nil {
		return nil, &PreconditionError{Row: row, Field: "card_no", Value: src.CardNo}
	}

	l := &line{
		src:              src,
		cardID:           cardID,
		terminalID:       strings.TrimSpace(src.TerminalID),
		qty:              domain.OrZero(src.Qty).Decimal,
		value:            domain.OrZero(src.Value).Decimal,
		stdPts:           domain.OrZero(src.StdPts).Decimal,
		bonusPts:         domain.OrZero(src.BonusPts).Decimal,
		stdPointsValue:   domain.OrZero(src.StdPointsValue).Decimal,
		bonusPointsValue: domain.OrZero(src.BonusPointsValue).Decimal,
	}

	if code, ok := domain.ParseCode(src.ProductCode); ok {
		l.productCode = code
	}
	// Fractional group codes are kept for display but never match a group.
	l.categoryCode = domain.CodeText(src.GroupCode)
	if code, ok := domain.ParseCode(src.GroupCode); ok {
		_, l.groupFound = refs.GroupCode(code)
	}

	if c, ok := refs.Contact(cardID); ok {
		email := strings.TrimSpace(c.Email)
		mobile := strings.TrimSpace(c.Mobile)
		switch {
		case email != "":
			l.userID, l.userType = email, domain.UserTypeEmail
		case mobile != "":
			l.userID, l.userType = mobile, domain.UserTypeMobile
		}
	}

	l.outlet, l.outletFound = refs.Outlet(l.terminalID)

	return l, nil
}

// groupByTransaction groups lines by transaction id. Groups keep the order in
// which their transaction first appeared and lines keep their batch order.
func groupByTransaction(lines []*line) []*group {
	index := make(map[int64]*group)
	var groups []*group
	for _, l := range lines {
		id := l.src.TransactionID
		g, ok := index[id]
		if !ok {
			g = &group{transactionID: id}
			index[id] = g
			groups = append(groups, g)
		}
		g.lines = append(g.lines, l)
	}
	return groups
}
