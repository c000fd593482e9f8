package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/points-exporter/internal/blobstore"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/jobs"
	"github.com/dvloznov/points-exporter/internal/record"
	"github.com/dvloznov/points-exporter/internal/reference"
	"github.com/dvloznov/points-exporter/internal/retry"
	"github.com/dvloznov/points-exporter/internal/tableio"
	"github.com/dvloznov/points-exporter/internal/warehouse"
)

// ErrEmptyBatch stops a batch whose id range holds no lines. Nothing is
// written for it.
var ErrEmptyBatch = errors.New("empty batch")

// PipelineStep represents a single step in the batch export pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *BatchState) error
}

// BatchState holds the shared state across all pipeline steps.
type BatchState struct {
	Job     *jobs.ExportBatchJob
	Refs    *reference.Tables
	Lines   []domain.TransactionLine
	Records []domain.OutputRecord
	Payload []byte
	Key     string
}

// Step 1: FetchLinesStep reads the lines of the batch's id range. Rejected
// queries fail the batch without retries.
type FetchLinesStep struct {
	Source LineSource
}

func (s *FetchLinesStep) Execute(ctx context.Context, state *BatchState) error {
	lines, err := s.Source.QueryTransactionLines(ctx, warehouse.LineQuery{
		PartitionDate: state.Job.Date,
		MinID:         state.Job.MinID,
		MaxID:         state.Job.MaxID,
	})
	if warehouse.IsClientError(err) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return ErrEmptyBatch
	}
	state.Lines = lines
	return nil
}

// Step 2: BuildRecordsStep joins and aggregates lines into records.
// Malformed card numbers fail the batch without retries.
type BuildRecordsStep struct {
	RecordType string
}

func (s *BuildRecordsStep) Execute(ctx context.Context, state *BatchState) error {
	records, err := record.Build(ctx, state.Lines, state.Refs, record.Options{RecordType: s.RecordType})
	if record.IsPrecondition(err) {
		return jobs.Permanent(err)
	}
	if err != nil {
		return err
	}
	state.Records = records
	return nil
}

// Step 3: EncodeStep serializes the records.
type EncodeStep struct {
	Format tableio.Format
}

func (s *EncodeStep) Execute(ctx context.Context, state *BatchState) error {
	payload, err := tableio.EncodeRecords(state.Records, s.Format)
	if err != nil {
		return jobs.Permanent(err)
	}
	state.Payload = payload
	return nil
}

// Step 4: WriteStep overwrites the batch's partition object.
type WriteStep struct {
	Store  blobstore.Store
	Prefix string
	Format tableio.Format
	Retry  config.Retry
}

func (s *WriteStep) Execute(ctx context.Context, state *BatchState) error {
	key := blobstore.PartitionKey(s.Prefix, state.Job.Date, state.Job.Batch, s.Format.Ext())
	err := retry.Do(ctx, s.Retry, "WriteStep", func() error {
		return s.Store.Put(ctx, key, state.Payload, s.Format.ContentType())
	})
	if err != nil {
		return err
	}
	state.Key = key
	return nil
}

// Step 5: LoadWarehouseStep replaces the batch's rows in the sink table.
// It does nothing without a table. Rejected loads are not retried.
type LoadWarehouseStep struct {
	Sink  RecordSink
	Table string
}

func (s *LoadWarehouseStep) Execute(ctx context.Context, state *BatchState) error {
	if s.Sink == nil || s.Table == "" {
		return nil
	}
	err := s.Sink.LoadRecords(ctx, warehouse.LoadTarget{
		Table:         s.Table,
		PartitionDate: state.Job.Date,
		Batch:         state.Job.Batch,
	}, state.Records)
	if warehouse.IsClientError(err) {
		return jobs.Permanent(err)
	}
	return err
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially and stops at the
// first error.
func (p *Pipeline) Execute(ctx context.Context, state *BatchState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
