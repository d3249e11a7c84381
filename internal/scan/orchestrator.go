/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scan runs the scan/analyze/group pipeline and owns the scanner
// state machine.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/snapsweep/internal/analysis"
	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/grouping"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/friendsincode/snapsweep/internal/limiter"
	"github.com/friendsincode/snapsweep/internal/memguard"
	"github.com/friendsincode/snapsweep/internal/models"
	"github.com/friendsincode/snapsweep/internal/progress"
	"github.com/friendsincode/snapsweep/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize        = 50
	DefaultMemoryRetries    = 3
	DefaultMemoryRetryDelay = 500 * time.Millisecond
)

// Exclusion lists items that must not be scanned, such as trashed ones.
type Exclusion interface {
	TrashedItemIDs(ctx context.Context) (map[string]bool, error)
}

// ResultCache stores analysis results across scans.
type ResultCache interface {
	GetAnalysis(ctx context.Context, item library.MediaItem) (analysis.Result, bool)
	SetAnalysis(ctx context.Context, item library.MediaItem, res analysis.Result) error
}

// RunRecorder persists a summary of each finished scan.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.ScanRun) error
}

// FreeSpaceFunc reports free bytes on the library volume.
type FreeSpaceFunc func(ctx context.Context) (uint64, error)

// Options configures an Orchestrator. Zero values select defaults and nil
// collaborators are skipped.
type Options struct {
	BatchSize         int
	MemoryRetries     int
	MemoryRetryDelay  time.Duration
	MinFreeSpaceBytes int64
	Enumerate         library.EnumerateOptions

	FreeSpace FreeSpaceFunc
	Exclusion Exclusion
	Cache     ResultCache
	Recorder  RunRecorder
	Bus       *events.Bus
}

// Orchestrator is the single writer of scanner state.
type Orchestrator struct {
	source   library.Source
	analyzer analysis.Analyzer
	limiter  *limiter.Limiter
	guard    *memguard.Guard
	grouper  *grouping.Grouper
	opts     Options
	tracker  *progress.Tracker
	logger   zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	last   *Report

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// New creates an orchestrator.
func New(source library.Source, analyzer analysis.Analyzer, lim *limiter.Limiter, guard *memguard.Guard, grouper *grouping.Grouper, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MemoryRetries < 1 {
		opts.MemoryRetries = DefaultMemoryRetries
	}
	if opts.MemoryRetryDelay <= 0 {
		opts.MemoryRetryDelay = DefaultMemoryRetryDelay
	}
	if grouper == nil {
		grouper = grouping.New(grouping.DefaultConfig())
	}
	return &Orchestrator{
		source:    source,
		analyzer:  analyzer,
		limiter:   lim,
		guard:     guard,
		grouper:   grouper,
		opts:      opts,
		tracker:   progress.NewTracker(nil),
		logger:    logger.With().Str("component", "scan").Logger(),
		state:     State{Kind: StateIdle},
		observers: make(map[int]func(Snapshot)),
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	if s.Kind == StateRunning {
		s.Progress = o.tracker.Snapshot().Value
	}
	return s
}

// Progress returns the progress tracker's snapshot.
func (o *Orchestrator) Progress() progress.Snapshot {
	return o.tracker.Snapshot()
}

// LastReport returns the report of the most recent scan since Reset.
func (o *Orchestrator) LastReport() (*Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.last != nil
}

// ForgetItems drops ids from the last report after they left the library
// view, e.g. moved to the trash. Groups left without a choice disappear.
// Readers holding the previous report keep an unchanged copy.
func (o *Orchestrator) ForgetItems(ids []string) {
	if len(ids) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return
	}

	pruned := *o.last
	pruned.Groups = make([]grouping.Group, 0, len(o.last.Groups))
	for _, g := range o.last.Groups {
		if g = g.Without(ids...); g.Actionable() {
			pruned.Groups = append(pruned.Groups, g)
		}
	}
	pruned.ReclaimableBytes = reclaimable(pruned.Groups)
	o.last = &pruned
}

// Observe registers fn for every progress and state change. The returned
// func removes it.
func (o *Orchestrator) Observe(fn func(Snapshot)) func() {
	o.obsMu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = fn
	o.obsMu.Unlock()
	return func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}
}

// Cancel asks a running scan to stop. In-flight analyses finish; nothing new
// is admitted. It is a no-op when no scan is running.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		o.logger.Info().Msg("scan cancellation requested")
		cancel()
	}
}

// Reset returns the scanner to idle with zero progress. A running scan is
// cancelled first and Reset waits for its terminal transition.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	o.mu.Lock()
	o.state = State{Kind: StateIdle}
	o.last = nil
	o.mu.Unlock()
	o.tracker.Reset()
	o.emit()
	o.publishState()
}

// Outcome is the result of a scan started with Start.
type Outcome struct {
	Report *Report
	Err    error
}

// Scan runs one full scan. It returns ErrScanInProgress while another scan
// runs and ErrNotIdle from a terminal state. A cancelled scan returns its
// partial report with ErrCancelled.
func (o *Orchestrator) Scan(ctx context.Context) (*Report, error) {
	out, err := o.Start(ctx)
	if err != nil {
		return nil, err
	}
	res := <-out
	return res.Report, res.Err
}

// Start performs the state transition synchronously and runs the pipeline in
// the background. Precondition failures are returned directly; everything
// else arrives on the channel, which receives exactly one Outcome.
func (o *Orchestrator) Start(ctx context.Context) (<-chan Outcome, error) {
	o.mu.Lock()
	switch o.state.Kind {
	case StateRunning:
		o.mu.Unlock()
		return nil, ErrScanInProgress
	case StateIdle:
	default:
		o.mu.Unlock()
		return nil, ErrNotIdle
	}

	started := time.Now()
	if !o.source.IsAccessGranted(ctx) {
		o.state = State{Kind: StateFailed, Reason: FailureNotAuthorized}
		o.mu.Unlock()
		o.tracker.ReportError(ErrNotAuthorized)
		o.emit()
		o.publishState()
		report := &Report{RunID: uuid.NewString(), State: StateFailed, FailureReason: FailureNotAuthorized, StartedAt: started, FinishedAt: time.Now()}
		o.finish(ctx, report)
		return nil, ErrNotAuthorized
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	o.state = State{Kind: StateRunning}
	o.mu.Unlock()
	o.publishState()

	out := make(chan Outcome, 1)
	go func() {
		report, err := o.runScan(ctx, runCtx, started)
		cancel()
		o.mu.Lock()
		o.cancel, o.done = nil, nil
		o.mu.Unlock()
		close(done)
		out <- Outcome{Report: report, Err: err}
	}()
	return out, nil
}

// runScan executes the pipeline and performs the terminal transition.
func (o *Orchestrator) runScan(parent, runCtx context.Context, started time.Time) (*Report, error) {
	runCtx, span := telemetry.StartSpan(runCtx, "scan", "scan.run")

	r := &run{o: o, ctx: runCtx, report: &Report{RunID: uuid.NewString(), StartedAt: started}}
	err := r.execute()

	report := r.report
	report.FinishedAt = time.Now()
	report.Timings.Total = report.FinishedAt.Sub(report.StartedAt)

	o.mu.Lock()
	switch {
	case err == nil:
		o.state = State{Kind: StateCompleted, Progress: 1}
	case errors.Is(err, ErrCancelled):
		o.state = State{Kind: StateCancelled, Reason: FailureCancelled}
	case errors.Is(err, memguard.ErrMemoryExceeded):
		o.state = State{Kind: StateFailed, Reason: FailureResourcePressure}
	default:
		o.state = State{Kind: StateFailed, Reason: FailureSource}
	}
	report.State, report.FailureReason = o.state.Kind, o.state.Reason
	o.last = report
	o.mu.Unlock()

	if err != nil {
		o.tracker.ReportError(err)
	} else {
		o.tracker.Update(progress.PhaseCompleted, 1)
	}
	telemetry.EndSpan(span, err,
		attribute.Int("scan.total", report.Total),
		attribute.Int("scan.analyzed", report.Analyzed),
		attribute.Int("scan.failed", report.Failed),
		attribute.Int("scan.skipped", report.Skipped),
		attribute.Int("scan.groups", len(report.Groups)),
		attribute.String("scan.state", string(report.State)),
	)
	o.emit()
	o.publishState()
	o.finish(context.WithoutCancel(parent), report)

	o.logger.Info().
		Str("run_id", report.RunID).
		Str("state", string(report.State)).
		Int("total", report.Total).
		Int("analyzed", report.Analyzed).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("groups", len(report.Groups)).
		Dur("duration", report.Timings.Total).
		Msg("scan finished")

	return report, err
}

// finish records metrics, persists the run and announces it.
func (o *Orchestrator) finish(ctx context.Context, report *Report) {
	outcome := string(report.State)
	telemetry.ScansTotal.WithLabelValues(outcome).Inc()
	telemetry.ScanDuration.WithLabelValues(outcome).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if o.opts.Recorder != nil {
		run := models.ScanRun{
			ID:               report.RunID,
			State:            string(report.State),
			FailureReason:    string(report.FailureReason),
			TotalItems:       report.Total,
			AnalyzedItems:    report.Analyzed,
			FailedItems:      report.Failed,
			SkippedItems:     report.Skipped,
			GroupCount:       len(report.Groups),
			ReclaimableBytes: report.ReclaimableBytes,
			LowDiskSpace:     report.LowDiskSpace,
			StartedAt:        report.StartedAt,
			FinishedAt:       report.FinishedAt,
		}
		if err := o.opts.Recorder.RecordRun(ctx, run); err != nil {
			o.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to record scan run")
		}
	}

	o.opts.Bus.Publish(events.EventScanFinished, events.Payload{
		"run_id":            report.RunID,
		"state":             string(report.State),
		"reason":            string(report.FailureReason),
		"groups":            len(report.Groups),
		"reclaimable_bytes": report.ReclaimableBytes,
	})
}

func (o *Orchestrator) snapshot() Snapshot {
	return Snapshot{State: o.State(), Progress: o.tracker.Snapshot()}
}

// emit sends the current snapshot to observers and the bus. Callers must not
// hold o.mu.
func (o *Orchestrator) emit() {
	snap := o.snapshot()
	o.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.obsMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
	o.opts.Bus.Publish(events.EventScanProgress, events.Payload{
		"phase": string(snap.Progress.Phase),
		"value": snap.Progress.Value,
		"error": snap.Progress.Error,
	})
}

func (o *Orchestrator) publishState() {
	s := o.State()
	o.opts.Bus.Publish(events.EventScanState, events.Payload{
		"state":  string(s.Kind),
		"reason": string(s.Reason),
	})
}

// run holds the working set of one scan.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	report *Report

	mu        sync.Mutex
	items     []library.MediaItem
	results   []analysis.Result
	processed int
}

func (r *run) execute() error {
	o := r.o
	o.report(progress.PhaseInitialization, 0)

	excluded := map[string]bool{}
	if o.opts.Exclusion != nil {
		ids, err := o.opts.Exclusion.TrashedItemIDs(r.ctx)
		if err != nil {
			return fmt.Errorf("load exclusions: %w", err)
		}
		excluded = ids
	}
	r.checkFreeSpace()
	o.report(progress.PhaseInitialization, 1)

	enumStart := time.Now()
	if err := r.enumerate(excluded); err != nil {
		return err
	}
	r.report.Timings.Enumerate = time.Since(enumStart)

	analyzeStart := time.Now()
	err := r.analyzeAll()
	r.report.Timings.Analyze = time.Since(analyzeStart)
	if err != nil {
		return err
	}

	groupStart := time.Now()
	o.report(progress.PhaseGrouping, 0)
	groups := o.grouper.Group(r.results, r.items)
	r.report.Groups = groups
	r.report.ReclaimableBytes = reclaimable(groups)
	r.report.Timings.Group = time.Since(groupStart)
	o.report(progress.PhaseGrouping, 1)
	return nil
}

// enumerate collects the items to analyze, checking for cancellation at
// every batch boundary.
func (r *run) enumerate(excluded map[string]bool) error {
	o := r.o
	o.report(progress.PhaseScanning, 0)
	for item, err := range o.source.Enumerate(r.ctx, o.opts.Enumerate) {
		if err != nil {
			if r.ctx.Err() != nil {
				return ErrCancelled
			}
			return fmt.Errorf("enumerate library: %w", err)
		}
		if excluded[item.ID] {
			r.report.Excluded++
			continue
		}
		r.items = append(r.items, item)
		if len(r.items)%o.opts.BatchSize == 0 && r.ctx.Err() != nil {
			return ErrCancelled
		}
	}
	if r.ctx.Err() != nil {
		return ErrCancelled
	}
	r.report.Total = len(r.items)
	o.report(progress.PhaseScanning, 1)
	o.logger.Debug().Int("items", len(r.items)).Int("excluded", r.report.Excluded).Msg("library enumerated")
	return nil
}

func (r *run) analyzeAll() error {
	o := r.o
	o.report(progress.PhaseAnalyzing, 0)

	var lastExceeded error
	for start := 0; start < len(r.items); start += o.opts.BatchSize {
		if r.ctx.Err() != nil {
			return ErrCancelled
		}
		batch := r.items[start:min(start+o.opts.BatchSize, len(r.items))]

		g, batchCtx := errgroup.WithContext(r.ctx)
		for _, item := range batch {
			g.Go(func() error {
				return r.process(batchCtx, item)
			})
		}
		if err := g.Wait(); err != nil {
			lastExceeded = err
			telemetry.MemoryRejectionsTotal.Inc()
			o.logger.Warn().Err(err).Int("batch_start", start).Msg("memory pressure, skipped rest of batch")
		}
	}
	if r.ctx.Err() != nil {
		return ErrCancelled
	}
	if r.report.Total > 0 && r.report.Skipped == r.report.Total && lastExceeded != nil {
		return lastExceeded
	}
	return nil
}

// process analyzes one item. Only a memory refusal is returned, which
// cancels the rest of the batch.
func (r *run) process(batchCtx context.Context, item library.MediaItem) error {
	o := r.o
	if o.opts.Cache != nil {
		if res, ok := o.opts.Cache.GetAnalysis(r.ctx, item); ok {
			r.record(item, &res, nil, true)
			return nil
		}
	}

	var (
		res   analysis.Result
		opErr error
	)
	err := o.limiter.Do(batchCtx, func(ctx context.Context) error {
		telemetry.LimiterInFlight.Set(float64(o.limiter.InFlight()))
		return o.guard.ExecuteIfMemoryAvailable(ctx, o.opts.MemoryRetries, o.opts.MemoryRetryDelay, func(context.Context) error {
			// Admitted work runs to completion even if the scan is cancelled.
			res, opErr = r.analyze(context.WithoutCancel(r.ctx), item)
			return nil
		})
	})
	telemetry.LimiterInFlight.Set(float64(o.limiter.InFlight()))

	switch {
	case err == nil && opErr == nil:
		r.record(item, &res, nil, false)
		if o.opts.Cache != nil {
			if cerr := o.opts.Cache.SetAnalysis(r.ctx, item, res); cerr != nil {
				o.logger.Debug().Err(cerr).Str("item_id", item.ID).Msg("cache store failed")
			}
		}
	case err == nil:
		r.record(item, nil, opErr, false)
	case errors.Is(err, memguard.ErrMemoryExceeded):
		r.skip()
		return err
	case r.ctx.Err() != nil:
		// Cancelled before admission; not counted.
	default:
		r.skip()
	}
	return nil
}

func (r *run) analyze(ctx context.Context, item library.MediaItem) (analysis.Result, error) {
	var data []byte
	if item.Kind != library.KindVideo {
		b, err := r.o.source.FetchBytes(ctx, item.ID)
		if err != nil {
			return analysis.Result{}, fmt.Errorf("fetch: %w", err)
		}
		data = b
	}
	res, err := r.o.analyzer.Analyze(ctx, item, data)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("analyze: %w", err)
	}
	return res, nil
}

// record stores one outcome and advances progress.
func (r *run) record(item library.MediaItem, res *analysis.Result, err error, cached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.report.Failed++
		r.report.Failures = append(r.report.Failures, ItemFailure{ItemID: item.ID, Err: err, Error: err.Error()})
		telemetry.ItemsFailedTotal.Inc()
		r.o.logger.Debug().Err(err).Str("item_id", item.ID).Msg("item analysis failed")
	} else {
		r.report.Analyzed++
		r.results = append(r.results, *res)
		if cached {
			r.report.CacheHits++
		}
		telemetry.ItemsAnalyzedTotal.Inc()
	}
	r.advance()
}

func (r *run) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Skipped++
	telemetry.ItemsSkippedTotal.Inc()
	r.advance()
}

// advance must be called with r.mu held so updates reach observers in order.
func (r *run) advance() {
	r.processed++
	r.o.report(progress.PhaseAnalyzing, float64(r.processed)/float64(len(r.items)))
}

func (r *run) checkFreeSpace() {
	o := r.o
	if o.opts.FreeSpace == nil {
		return
	}
	free, err := o.opts.FreeSpace(r.ctx)
	if err != nil {
		o.logger.Debug().Err(err).Msg("free space check failed")
		return
	}
	r.report.FreeSpaceBytes = free
	if o.opts.MinFreeSpaceBytes > 0 && free < uint64(o.opts.MinFreeSpaceBytes) {
		r.report.LowDiskSpace = true
		o.logger.Warn().Uint64("free_bytes", free).Int64("min_bytes", o.opts.MinFreeSpaceBytes).Msg("low disk space")
	}
}

// report moves the tracker to the weighted value for phase and fraction.
func (o *Orchestrator) report(phase progress.Phase, fraction float64) {
	o.tracker.Update(phase, progress.Weighted(phase, fraction))
	o.emit()
}
