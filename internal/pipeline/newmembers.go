package pipeline

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/record"
	"github.com/dvloznov/points-exporter/internal/retry"
	"github.com/dvloznov/points-exporter/internal/tableio"
	"github.com/dvloznov/points-exporter/internal/warehouse"
)

const newMemberTimeLayout = "2006-01-02 15:04:05"

var newMemberHeader = []string{
	"transaction_id",
	"card_no",
	"total_txn_value",
	"transaction_date",
	"registration_date",
	"app_install_date",
	"app_day_diff",
	"blm_day_diff",
	"mobile",
	"name",
	"partition_dt",
}

// NewMemberResult describes one new-member export.
type NewMemberResult struct {
	Date civil.Date
	Rows int
	Key  string
}

// ExportNewMembers writes the first qualifying transaction of every member
// who joined shortly before it, limited to transactions of date. The file is
// written even when it holds only the header.
func (e *Exporter) ExportNewMembers(ctx context.Context, date civil.Date) (NewMemberResult, error) {
	result := NewMemberResult{Date: date}
	if e.deps.Members == nil {
		return result, fmt.Errorf("ExportNewMembers: no new member source configured")
	}
	opts := e.opts.NewMembers
	log := logger.FromContext(ctx).With().Str("date", date.String()).Logger()

	since := opts.Since
	if since == (civil.Date{}) {
		since = date.AddDays(-opts.WindowDays)
	}

	members, err := e.deps.Members.QueryNewMemberTransactions(ctx, warehouse.NewMemberQuery{
		Since:      since,
		WindowDays: opts.WindowDays,
		MinValue:   opts.MinValue,
	})
	if err != nil {
		return result, fmt.Errorf("ExportNewMembers: %w", err)
	}

	table := tableio.Table{Header: newMemberHeader}
	for i := range members {
		m := &members[i]
		if m.PartitionDate != date {
			continue
		}
		row, err := newMemberRow(i, m)
		if err != nil {
			return result, fmt.Errorf("ExportNewMembers: %w", err)
		}
		table.Rows = append(table.Rows, row)
	}

	payload, err := tableio.EncodeTable(table, opts.Format)
	if err != nil {
		return result, fmt.Errorf("ExportNewMembers: %w", err)
	}

	key := NewMemberKey(opts.Prefix, date, opts.FileName, opts.Format)
	err = retry.Do(ctx, e.opts.Retry, "ExportNewMembers", func() error {
		return e.deps.Store.Put(ctx, key, payload, opts.Format.ContentType())
	})
	if err != nil {
		return result, fmt.Errorf("ExportNewMembers: %w", err)
	}

	result.Rows, result.Key = len(table.Rows), key
	log.Info().
		Int("scanned", len(members)).
		Int("rows", result.Rows).
		Str("key", key).
		Msg("New members exported")
	return result, nil
}

// NewMemberKey is the object key of the new-member export of date.
func NewMemberKey(prefix string, date civil.Date, fileName string, format tableio.Format) string {
	return path.Join(strings.Trim(prefix, "/"), date.String(), fileName+"."+format.Ext())
}

func newMemberRow(i int, m *domain.NewMemberTransaction) ([]string, error) {
	cardNo, err := domain.ParseCardNo(m.CardNo)
	if err != nil {
		return nil, &record.PreconditionError{Row: i, Field: "card_no", Value: m.CardNo}
	}

	mobile := strings.TrimSpace(m.Mobile)
	if mobile == "" {
		mobile = strings.TrimSpace(m.MobileOriginal)
	}

	value := ""
	if m.TotalTxnValue.Valid {
		value = m.TotalTxnValue.Decimal.String()
	}

	return []string{
		strconv.FormatInt(m.TransactionID, 10),
		strconv.FormatInt(cardNo, 10),
		value,
		formatMemberTime(m.TransactionDate),
		formatMemberTime(m.RegistrationDate),
		formatMemberTime(m.AppInstallDate),
		strconv.FormatInt(m.AppDayDiff, 10),
		strconv.FormatInt(m.MemberDayDiff, 10),
		mobile,
		strings.TrimSpace(m.Name),
		m.PartitionDate.String(),
	}, nil
}

func formatMemberTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(newMemberTimeLayout)
}
