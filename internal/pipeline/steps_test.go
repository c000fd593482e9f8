package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/jobs"
	"github.com/dvloznov/points-exporter/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

type failingLines struct{ err error }

func (f failingLines) TransactionIDBounds(ctx context.Context, date civil.Date) (int64, int64, bool, error) {
	return 0, 0, false, f.err
}

func (f failingLines) QueryTransactionLines(ctx context.Context, q warehouse.LineQuery) ([]domain.TransactionLine, error) {
	return nil, f.err
}

type failingSink struct{ err error }

func (f failingSink) LoadRecords(ctx context.Context, target warehouse.LoadTarget, records []domain.OutputRecord) error {
	return f.err
}

func TestSteps_ClientErrorsArePermanent(t *testing.T) {
	rejected := &googleapi.Error{Code: http.StatusBadRequest, Message: "Unrecognized name: card_no"}
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}

	tests := []struct {
		name          string
		step          PipelineStep
		wantPermanent bool
	}{
		{name: "fetch rejected", step: &FetchLinesStep{Source: failingLines{err: rejected}}, wantPermanent: true},
		{name: "fetch unavailable", step: &FetchLinesStep{Source: failingLines{err: unavailable}}},
		{name: "load rejected", step: &LoadWarehouseStep{Sink: failingSink{err: rejected}, Table: "ds.points"}, wantPermanent: true},
		{name: "load unavailable", step: &LoadWarehouseStep{Sink: failingSink{err: unavailable}, Table: "ds.points"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &BatchState{Job: &jobs.ExportBatchJob{Date: testDate, MinID: 1, MaxID: 10}}
			err := tt.step.Execute(quietContext(t), state)

			var gerr *googleapi.Error
			assert.True(t, errors.As(err, &gerr))
			var perm *jobs.PermanentError
			assert.Equal(t, tt.wantPermanent, errors.As(err, &perm))
		})
	}
}
