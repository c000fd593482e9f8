package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/warehouse"
)

// LineSource reads transaction lines from the warehouse.
// This interface enables mocking and testing without BigQuery.
type LineSource interface {
	// TransactionIDBounds returns the id range of a partition date. ok is
	// false for an empty partition.
	TransactionIDBounds(ctx context.Context, date civil.Date) (minID, maxID int64, ok bool, err error)

	// QueryTransactionLines returns the lines of one batch.
	QueryTransactionLines(ctx context.Context, q warehouse.LineQuery) ([]domain.TransactionLine, error)
}

// RecordSink is the optional warehouse destination for built records.
type RecordSink interface {
	LoadRecords(ctx context.Context, target warehouse.LoadTarget, records []domain.OutputRecord) error
}

// NewMemberSource selects first transactions of new members.
type NewMemberSource interface {
	QueryNewMemberTransactions(ctx context.Context, q warehouse.NewMemberQuery) ([]domain.NewMemberTransaction, error)
}

var (
	_ LineSource      = (*warehouse.Client)(nil)
	_ RecordSink      = (*warehouse.Client)(nil)
	_ NewMemberSource = (*warehouse.Client)(nil)
)
