package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
)

// QueryTransactionLines returns the header/detail lines of one batch ordered
// by transaction id. Headers without detail rows appear once with empty
// detail columns.
func (c *Client) QueryTransactionLines(ctx context.Context, q LineQuery) ([]domain.TransactionLine, error) {
	stmt, err := buildLineQuery(tablesFrom(c.cfg), q)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionLines: %w", err)
	}

	rows, err := readAll[lineRow](ctx, c, "QueryTransactionLines", stmt)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.TransactionLine, 0, len(rows))
	for i := range rows {
		lines = append(lines, rows[i].toDomain())
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("date", q.PartitionDate.String()).
		Int64("min_id", q.MinID).
		Int64("max_id", q.MaxID).
		Int("rows", len(lines)).
		Msg("Transaction lines read")
	return lines, nil
}

// TransactionIDBounds returns the smallest and largest transaction id of a
// partition date. ok is false when the partition holds no transactions.
func (c *Client) TransactionIDBounds(ctx context.Context, date civil.Date) (minID, maxID int64, ok bool, err error) {
	stmt, err := buildBoundsQuery(tablesFrom(c.cfg), date)
	if err != nil {
		return 0, 0, false, fmt.Errorf("TransactionIDBounds: %w", err)
	}

	rows, err := readAll[boundsRow](ctx, c, "TransactionIDBounds", stmt)
	if err != nil {
		return 0, 0, false, err
	}
	if len(rows) == 0 || !rows[0].MinID.Valid || !rows[0].MaxID.Valid {
		return 0, 0, false, nil
	}
	return rows[0].MinID.Int64, rows[0].MaxID.Int64, true, nil
}

// QueryNewMemberTransactions returns the first qualifying transaction of
// every card registered within the window.
func (c *Client) QueryNewMemberTransactions(ctx context.Context, q NewMemberQuery) ([]domain.NewMemberTransaction, error) {
	stmt, err := buildNewMemberQuery(tablesFrom(c.cfg), q)
	if err != nil {
		return nil, fmt.Errorf("QueryNewMemberTransactions: %w", err)
	}

	rows, err := readAll[newMemberRow](ctx, c, "QueryNewMemberTransactions", stmt)
	if err != nil {
		return nil, err
	}

	out := make([]domain.NewMemberTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
