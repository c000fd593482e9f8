package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/blobstore"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/jobs"
	"github.com/dvloznov/points-exporter/internal/jobs/inmemory"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/reference"
	"github.com/dvloznov/points-exporter/internal/tableio"
	"github.com/dvloznov/points-exporter/internal/watermark"
)

// ErrBatchesFailed is returned when at least one batch of a date ended
// FAILED after its retries.
var ErrBatchesFailed = errors.New("batches failed")

// Options configures an Exporter.
type Options struct {
	Prefix           string
	Format           tableio.Format
	BatchSize        int64
	Workers          int
	MaxRetries       int
	RetryDelay       time.Duration
	ReferenceLagDays int
	RecordType       string
	SinkTable        string
	Retry            config.Retry
	NewMembers       NewMemberOptions
}

// NewMemberOptions configures ExportNewMembers.
type NewMemberOptions struct {
	Prefix     string
	FileName   string
	Format     tableio.Format
	WindowDays int
	MinValue   float64
	// Since is the first partition scanned. Zero means WindowDays before the
	// observation date.
	Since civil.Date
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	format, err := tableio.ParseFormat(cfg.Export.Format)
	if err != nil {
		return Options{}, fmt.Errorf("OptionsFromConfig: export format: %w", err)
	}
	nmFormat, err := tableio.ParseFormat(cfg.NewMembers.Format)
	if err != nil {
		return Options{}, fmt.Errorf("OptionsFromConfig: new member format: %w", err)
	}

	var since civil.Date
	if cfg.NewMembers.Since != "" {
		since, err = civil.ParseDate(cfg.NewMembers.Since)
		if err != nil {
			return Options{}, fmt.Errorf("OptionsFromConfig: new member since: %w", err)
		}
	}

	return Options{
		Prefix:           cfg.Store.Prefix,
		Format:           format,
		BatchSize:        cfg.Export.BatchSize,
		Workers:          cfg.Export.Workers,
		MaxRetries:       cfg.Export.MaxRetries,
		RetryDelay:       cfg.Retry.InitialInterval,
		ReferenceLagDays: cfg.Export.ReferenceLagDays,
		RecordType:       cfg.Export.RecordType,
		SinkTable:        cfg.Export.BigQueryTable,
		Retry:            cfg.Retry,
		NewMembers: NewMemberOptions{
			Prefix:     cfg.NewMembers.Prefix,
			FileName:   cfg.NewMembers.FileName,
			Format:     nmFormat,
			WindowDays: cfg.NewMembers.WindowDays,
			MinValue:   cfg.NewMembers.MinValue,
			Since:      since,
		},
	}, nil
}

// Deps are the collaborators of an Exporter. Sink and Members may be nil
// when the matching feature is unused.
type Deps struct {
	Lines      LineSource
	References reference.Source
	Store      blobstore.Store
	Sink       RecordSink
	Members    NewMemberSource
	Watermark  *watermark.Tracker
	// Now defaults to time.Now.
	Now func() time.Time
}

// Exporter writes daily transaction partitions to the blob store.
type Exporter struct {
	deps Deps
	opts Options
}

// NewExporter creates an Exporter.
func NewExporter(deps Deps, opts Options) *Exporter {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.RecordType == "" {
		opts.RecordType = "issue"
	}
	return &Exporter{deps: deps, opts: opts}
}

// DateResult summarizes the export of one partition date.
type DateResult struct {
	Date    civil.Date
	Batches int
	Records int
	Keys    []string
	Failed  []int
}

// PlanBatches splits the transaction ids of date into half-open ranges of
// BatchSize ids. The first range starts at the smallest id and the last one
// ends after the largest.
func (e *Exporter) PlanBatches(ctx context.Context, date civil.Date) ([]*jobs.ExportBatchJob, error) {
	if e.opts.BatchSize <= 0 {
		return nil, fmt.Errorf("PlanBatches: batch size must be positive, got %d", e.opts.BatchSize)
	}

	minID, maxID, ok, err := e.deps.Lines.TransactionIDBounds(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("PlanBatches: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var planned []*jobs.ExportBatchJob
	for lo, batch := minID, 0; lo <= maxID; lo, batch = lo+e.opts.BatchSize, batch+1 {
		hi := lo + e.opts.BatchSize
		if hi > maxID+1 {
			hi = maxID + 1
		}
		planned = append(planned, &jobs.ExportBatchJob{
			Date:       date,
			Batch:      batch,
			MinID:      lo,
			MaxID:      hi,
			MaxRetries: e.opts.MaxRetries,
		})
	}
	return planned, nil
}

// ReferenceDate is the snapshot of reference tables joined onto date.
func (e *Exporter) ReferenceDate(date civil.Date) civil.Date {
	return date.AddDays(1 - e.opts.ReferenceLagDays)
}

func (e *Exporter) batchPipeline() *Pipeline {
	return NewPipeline(
		&FetchLinesStep{Source: e.deps.Lines},
		&BuildRecordsStep{RecordType: e.opts.RecordType},
		&EncodeStep{Format: e.opts.Format},
		&WriteStep{Store: e.deps.Store, Prefix: e.opts.Prefix, Format: e.opts.Format, Retry: e.opts.Retry},
		&LoadWarehouseStep{Sink: e.deps.Sink, Table: e.opts.SinkTable},
	)
}

// ExportBatch runs the pipeline for one batch. An empty batch succeeds
// without writing anything.
func (e *Exporter) ExportBatch(ctx context.Context, job *jobs.ExportBatchJob, refs *reference.Tables) error {
	log := logger.FromContext(ctx).With().
		Str("date", job.Date.String()).
		Int("batch", job.Batch).
		Int64("min_id", job.MinID).
		Int64("max_id", job.MaxID).
		Logger()
	ctx = logger.WithContext(ctx, log)
	start := time.Now()

	state := &BatchState{Job: job, Refs: refs}
	err := e.batchPipeline().Execute(ctx, state)
	if errors.Is(err, ErrEmptyBatch) {
		log.Info().Msg("Batch is empty, nothing will be written")
		job.Records, job.Key = 0, ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("ExportBatch: %w", err)
	}

	job.Records, job.Key = len(state.Records), state.Key
	log.Info().
		Int("rows", len(state.Lines)).
		Int("records", len(state.Records)).
		Str("key", state.Key).
		Dur("duration", time.Since(start)).
		Msg("Batch exported")
	return nil
}

// ExportDate exports every batch of one partition date through the job
// queue. Objects of an earlier run that the current plan no longer writes
// are removed once every batch succeeded.
func (e *Exporter) ExportDate(ctx context.Context, date civil.Date) (DateResult, error) {
	log := logger.FromContext(ctx).With().Str("date", date.String()).Logger()
	ctx = logger.WithContext(ctx, log)
	result := DateResult{Date: date}

	refs, err := reference.Load(ctx, e.deps.References, e.ReferenceDate(date))
	if err != nil {
		return result, fmt.Errorf("ExportDate: %w", err)
	}

	planned, err := e.PlanBatches(ctx, date)
	if err != nil {
		return result, fmt.Errorf("ExportDate: %w", err)
	}
	result.Batches = len(planned)
	if len(planned) == 0 {
		log.Info().Msg("Partition holds no transactions")
		return result, nil
	}

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(inmemory.Options{
		BufferSize: len(planned),
		Workers:    e.opts.Workers,
		RetryDelay: e.opts.RetryDelay,
		MaxRetries: e.opts.MaxRetries,
	}, store)
	defer queue.Close()

	err = queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return e.ExportBatch(ctx, job.(*jobs.ExportBatchJob), refs)
	})
	if err != nil {
		return result, fmt.Errorf("ExportDate: starting queue: %w", err)
	}

	for _, job := range planned {
		if err := queue.PublishExportBatch(ctx, job); err != nil {
			return result, fmt.Errorf("ExportDate: publishing batch %d: %w", job.Batch, err)
		}
	}
	if err := queue.Wait(ctx); err != nil {
		return result, fmt.Errorf("ExportDate: waiting for batches: %w", err)
	}

	finished, err := store.ListJobs(ctx, jobs.JobFilter{Date: date})
	if err != nil {
		return result, fmt.Errorf("ExportDate: %w", err)
	}
	for _, job := range finished {
		if job.Status != jobs.JobStatusCompleted {
			result.Failed = append(result.Failed, job.Batch)
			continue
		}
		result.Records += job.Records
		if job.Key != "" {
			result.Keys = append(result.Keys, job.Key)
		}
	}

	if len(result.Failed) > 0 {
		log.Error().Ints("failed_batches", result.Failed).Msg("Date export incomplete")
		return result, fmt.Errorf("ExportDate: %s: %d of %d %w", date, len(result.Failed), result.Batches, ErrBatchesFailed)
	}

	if err := e.removeStale(ctx, date, result.Keys); err != nil {
		return result, fmt.Errorf("ExportDate: %w", err)
	}

	log.Info().
		Int("batches", result.Batches).
		Int("records", result.Records).
		Msg("Date exported")
	return result, nil
}

// removeStale deletes objects under the date prefix that were not written by
// this run.
func (e *Exporter) removeStale(ctx context.Context, date civil.Date, written []string) error {
	existing, err := e.deps.Store.List(ctx, blobstore.DatePrefix(e.opts.Prefix, date))
	if err != nil {
		return fmt.Errorf("listing date objects: %w", err)
	}

	keep := make(map[string]bool, len(written))
	for _, k := range written {
		keep[k] = true
	}

	for _, k := range existing {
		if keep[k] || prefixOfAny(k, written) {
			continue
		}
		// Delete is prefix-based; k is not a prefix of a kept key.
		if _, err := e.deps.Store.Delete(ctx, k); err != nil {
			return fmt.Errorf("removing stale %s: %w", k, err)
		}
		log := logger.FromContext(ctx)
		log.Info().Str("key", k).Msg("Removed stale batch object")
	}
	return nil
}

func prefixOfAny(k string, keys []string) bool {
	for _, other := range keys {
		if other != k && strings.HasPrefix(other, k) {
			return true
		}
	}
	return false
}

// Backfill exports every date from start to end inclusive. A failed date
// does not stop the following ones. The watermark is not moved.
func (e *Exporter) Backfill(ctx context.Context, start, end civil.Date) ([]DateResult, error) {
	var (
		results []DateResult
		errs    []error
	)
	for _, d := range watermark.DateRange(start, end) {
		res, err := e.ExportDate(ctx, d)
		results = append(results, res)
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Resume exports the dates after the watermark up to today minus the
// reference lag, in order. The watermark advances after each date whose
// batches all succeeded, and the run stops at the first failed date.
func (e *Exporter) Resume(ctx context.Context, today civil.Date) ([]DateResult, error) {
	if e.deps.Watermark == nil {
		return nil, fmt.Errorf("Resume: no watermark tracker configured")
	}
	log := logger.FromContext(ctx)

	state, err := e.deps.Watermark.Load(ctx)
	if errors.Is(err, watermark.ErrNoState) {
		// Without history only the latest complete date is exported.
		state = watermark.State{LastDate: today.AddDays(-e.opts.ReferenceLagDays - 1)}
		log.Info().Str("last_date", state.LastDate.String()).Msg("No watermark, starting fresh")
	} else if err != nil {
		return nil, fmt.Errorf("Resume: %w", err)
	}

	window := watermark.NextWindow(state, today, e.opts.ReferenceLagDays)
	if len(window) == 0 {
		log.Info().Str("last_date", state.LastDate.String()).Msg("Export is up to date")
		return nil, nil
	}

	var results []DateResult
	for _, d := range window {
		res, err := e.ExportDate(ctx, d)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("Resume: %w", err)
		}

		next := watermark.State{LastDate: d, UpdatedAt: e.deps.Now().UTC(), Batches: res.Batches}
		if err := e.deps.Watermark.Save(ctx, next); err != nil {
			return results, fmt.Errorf("Resume: %w", err)
		}
		log.Info().Str("last_date", d.String()).Msg("Watermark advanced")
	}
	return results, nil
}

// ListDate returns the objects written for date.
func (e *Exporter) ListDate(ctx context.Context, date civil.Date) ([]string, error) {
	keys, err := e.deps.Store.List(ctx, blobstore.DatePrefix(e.opts.Prefix, date))
	if err != nil {
		return nil, fmt.Errorf("ListDate: %w", err)
	}
	return keys, nil
}
