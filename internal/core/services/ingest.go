package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/core/ports/driving"
	"github.com/artdig/artdig/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driving.Ingestor = (*Ingestor)(nil)

// Ingestor coordinates ingestion runs: it selects the connector for a
// source, consumes its change stream, normalises records, and commits
// batches of canonical rows together with the advancing checkpoint.
type Ingestor struct {
	sources     driven.SourceStore
	checkpoints driven.CheckpointStore
	catalogue   driven.CatalogueStore
	raws        driven.RawStore
	runs        driven.RunStore
	writer      driven.BatchWriter
	factory     driven.ConnectorFactory
	registry    driven.NormaliserRegistry

	// Run tracking. One in-flight run per source: the checkpoint row is
	// mutated by exactly one run at a time.
	mu         sync.Mutex
	activeRuns map[string]*driving.RunProgress
}

// NewIngestor creates a new ingestion orchestrator.
func NewIngestor(
	sources driven.SourceStore,
	checkpoints driven.CheckpointStore,
	catalogue driven.CatalogueStore,
	raws driven.RawStore,
	runs driven.RunStore,
	writer driven.BatchWriter,
	factory driven.ConnectorFactory,
	registry driven.NormaliserRegistry,
) *Ingestor {
	return &Ingestor{
		sources:     sources,
		checkpoints: checkpoints,
		catalogue:   catalogue,
		raws:        raws,
		runs:        runs,
		writer:      writer,
		factory:     factory,
		registry:    registry,
		activeRuns:  make(map[string]*driving.RunProgress),
	}
}

// Run ingests one source. The returned IngestRun always carries a terminal
// status; err is non-nil when the run could not execute or ended FAILED.
func (g *Ingestor) Run(ctx context.Context, sourceID string, opts driving.RunOptions) (*domain.IngestRun, error) {
	source, err := g.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	if !g.acquire(sourceID) {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrIngestInProgress)
	}
	defer g.release(sourceID)

	run := &domain.IngestRun{
		RunID:     uuid.NewString(),
		Source:    sourceID,
		StartedAt: time.Now().UTC(),
		Status:    domain.RunPending,
	}
	if err := g.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run ledger entry: %w", err)
	}
	g.setProgress(sourceID, run)

	err = g.execute(ctx, source, run, opts)

	run.EndedAt = time.Now().UTC()
	if !run.Status.Terminal() {
		run.Status = domain.RunFailed
	}
	if err != nil && run.ErrorText == "" {
		run.ErrorText = err.Error()
	}
	if closeErr := g.runs.Close(ctx, run); closeErr != nil {
		logger.Warn("close run %s: %v", run.RunID, closeErr)
	}

	logger.Info("Run %s for %s ended %s: %d created, %d updated, %d deleted, %d unchanged, %d errors",
		run.RunID, sourceID, run.Status,
		run.Stats.Created, run.Stats.Updated, run.Stats.Deleted, run.Stats.Unchanged, run.Stats.Errors)
	return run, err
}

// RunAll ingests every configured source. One failed source never blocks
// another; all terminal runs are returned alongside the joined errors.
func (g *Ingestor) RunAll(ctx context.Context, opts driving.RunOptions) ([]domain.IngestRun, error) {
	sources, err := g.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	var runs []domain.IngestRun
	var errs []error
	for _, source := range sources {
		run, err := g.Run(ctx, source.ID, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("ingest %s: %w", source.ID, err))
		}
		if run != nil {
			runs = append(runs, *run)
		}
	}
	return runs, errors.Join(errs...)
}

// Progress reports the state of an in-flight run for a source.
func (g *Ingestor) Progress(_ context.Context, sourceID string) (*driving.RunProgress, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.activeRuns[sourceID]; ok {
		cp := *p
		return &cp, nil
	}
	return &driving.RunProgress{Source: sourceID, Running: false}, nil
}

// execute drives one run through its state machine. On return the run
// status is terminal except when an error escaped before FETCHING began.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (g *Ingestor) execute(ctx context.Context, source *domain.Source, run *domain.IngestRun, opts driving.RunOptions) error {
	connector, err := g.factory.Create(ctx, *source)
	if err != nil {
		run.Status = domain.RunFailed
		return fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	caps := connector.Capabilities()
	if caps.SupportsValidation {
		if err := connector.Validate(ctx); err != nil {
			run.Status = domain.RunFailed
			return fmt.Errorf("%w: %w", domain.ErrConnectorValidation, err)
		}
	}

	cp, err := g.checkpoints.Get(ctx, source.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		run.Status = domain.RunFailed
		return fmt.Errorf("get checkpoint: %w", err)
	}

	bootstrap := opts.ForceBootstrap || cp == nil || cp.IsZero() || !caps.SupportsIncremental
	g.transition(run, domain.RunFetching)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	var changes <-chan domain.RecordChange
	var errs <-chan error
	if bootstrap {
		logger.Info("Bootstrapping source %s", source.ID)
		changes, errs = connector.Bootstrap(streamCtx)
	} else {
		logger.Info("Incremental run for source %s from checkpoint %s=%q", source.ID, cp.Type, cp.Value)
		changes, errs = connector.Incremental(streamCtx, *cp)
	}

	return g.consume(ctx, cancelStream, source, run, caps, changes, errs, opts)
}

// runState carries the mutable per-run bookkeeping of consume.
type runState struct {
	batch        *driven.Batch
	pending      domain.RunStats // counts buffered with the uncommitted batch
	seen         map[string]struct{}
	claimed      map[string]string // record id -> raw source id, collision detection
	finalCP      *domain.Checkpoint
	pages        int
	records      int
	committedAny bool
	stopped      bool // stream cut short (limit or fatal error)
	fatal        error
}

// consume processes the connector stream, committing a batch at every page
// boundary so the checkpoint advances exactly as far as durable data.
//
//nolint:gocognit // Orchestration function coordinating multiple async operations
func (g *Ingestor) consume(
	ctx context.Context,
	cancelStream context.CancelFunc,
	source *domain.Source,
	run *domain.IngestRun,
	caps driven.ConnectorCapabilities,
	changes <-chan domain.RecordChange,
	errs <-chan error,
	opts driving.RunOptions,
) error {
	st := &runState{
		batch:   &driven.Batch{Source: source.ID},
		seen:    make(map[string]struct{}),
		claimed: make(map[string]string),
	}

	for changes != nil || errs != nil {
		select {
		case <-ctx.Done():
			return g.finish(ctx, source, run, st, caps, ctx.Err())

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if st.stopped {
				continue // Drain without processing after a stop
			}
			if pc, isPage := driven.IsPageComplete(err); isPage {
				st.batch.Checkpoint = checkpointCopy(pc.Checkpoint)
				if err := g.commitBatch(ctx, run, st); err != nil {
					return g.finish(ctx, source, run, st, caps, err)
				}
				st.pages++
				if opts.PageLimit > 0 && st.pages >= opts.PageLimit {
					logger.Info("Page limit %d reached for %s", opts.PageLimit, source.ID)
					st.stopped = true
					cancelStream()
				}
				continue
			}
			if cc, isDone := driven.IsCheckpointComplete(err); isDone {
				st.finalCP = checkpointCopy(cc.Checkpoint)
				continue
			}
			if re, isRecord := driven.IsRecordError(err); isRecord {
				run.Stats.Errors++
				logger.Debug("Record error in %s: %v", source.ID, re)
				continue
			}
			// Fatal connector error: stop the stream; committed batches keep
			// their checkpoints, the buffered batch is discarded.
			st.fatal = err
			st.stopped = true
			cancelStream()

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if st.stopped {
				continue // Drain without processing after a stop
			}
			g.applyChange(ctx, run, st, &change)
			if opts.RecordLimit > 0 && st.records >= opts.RecordLimit {
				logger.Info("Record limit %d reached for %s", opts.RecordLimit, source.ID)
				st.stopped = true
				cancelStream()
			}
		}
	}

	return g.finish(ctx, source, run, st, caps, st.fatal)
}

// applyChange folds one record change into the current batch.
func (g *Ingestor) applyChange(ctx context.Context, run *domain.IngestRun, st *runState, change *domain.RecordChange) {
	raw := &change.Record
	recordID := domain.MakeRecordID(raw.Source, raw.SourceID)

	switch change.Type {
	case domain.ChangeUnchanged:
		run.Stats.Unchanged++
		st.pending.Unchanged++
		st.seen[recordID] = struct{}{}
		st.batch.SeenIDs = append(st.batch.SeenIDs, recordID)
		return

	case domain.ChangeDeleted:
		run.Stats.Deleted++
		st.pending.Deleted++
		st.seen[recordID] = struct{}{}
		if len(raw.Payload) > 0 {
			g.stampRaw(raw)
			st.batch.Raws = append(st.batch.Raws, *raw)
		}
		st.batch.Tombstones = append(st.batch.Tombstones, recordID)
		st.records++
		return
	}

	// Created or Updated.
	if run.Status == domain.RunFetching {
		g.transition(run, domain.RunNormalizing)
	}
	g.stampRaw(raw)

	artwork, err := g.registry.Normalise(ctx, raw)
	if err != nil {
		run.Stats.Errors++
		logger.Debug("Normalise %s/%s: %v", raw.Source, raw.SourceID, err)
		return
	}

	if prev, ok := st.claimed[artwork.RecordID]; ok && prev != raw.SourceID {
		run.Stats.Collisions++
		logger.Warn("Identity collision: %s claimed by source ids %q and %q, keeping first",
			artwork.RecordID, prev, raw.SourceID)
		return
	}
	st.claimed[artwork.RecordID] = raw.SourceID

	artwork.VersionHash = raw.VersionHash
	artwork.FetchedAt = raw.FetchedAt

	st.seen[artwork.RecordID] = struct{}{}
	st.batch.Raws = append(st.batch.Raws, *raw)
	st.batch.Upserts = append(st.batch.Upserts, *artwork)
	st.batch.SeenIDs = append(st.batch.SeenIDs, artwork.RecordID)
	st.records++

	if change.Type == domain.ChangeCreated {
		run.Stats.Created++
		st.pending.Created++
	} else {
		run.Stats.Updated++
		st.pending.Updated++
	}
}

// stampRaw fills in hash and fetch time when the connector left them unset.
func (g *Ingestor) stampRaw(raw *domain.RawRecord) {
	if raw.VersionHash == "" && len(raw.Payload) > 0 {
		raw.VersionHash = domain.HashPayload(raw.Payload)
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now().UTC()
	}
	if raw.EntityType == "" {
		raw.EntityType = domain.EntityTypeArtwork
	}
}

// commitBatch writes the buffered batch in one transaction and resets it.
func (g *Ingestor) commitBatch(ctx context.Context, run *domain.IngestRun, st *runState) error {
	if st.batch.Empty() {
		return nil
	}
	prev := run.Status
	g.transition(run, domain.RunCommitting)
	st.batch.DeletedAt = time.Now().UTC()

	if err := g.writer.CommitBatch(ctx, st.batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	st.committedAny = true
	st.batch = &driven.Batch{Source: st.batch.Source}
	st.pending = domain.RunStats{}

	if prev == domain.RunFetching || prev == domain.RunNormalizing {
		g.transition(run, prev)
	}
	if err := g.runs.Update(ctx, run); err != nil {
		logger.Debug("Update run %s: %v", run.RunID, err)
	}
	return nil
}

// finish settles the run: the final commit (with snapshot absence handling
// when the window completed), then the terminal status.
func (g *Ingestor) finish(
	ctx context.Context,
	source *domain.Source,
	run *domain.IngestRun,
	st *runState,
	caps driven.ConnectorCapabilities,
	cause error,
) error {
	completed := cause == nil && !st.stopped && st.finalCP != nil

	if cause != nil {
		// Discard the buffered batch: its page had errors, so the cursor
		// must not advance past the previous commit.
		discardBatch(source.ID, run, st)
	}

	if completed && caps.FullSnapshot {
		if err := g.markAbsentees(ctx, source, st); err != nil {
			cause = err
			completed = false
			discardBatch(source.ID, run, st)
		}
	}

	if cause == nil {
		if completed {
			st.batch.Checkpoint = st.finalCP
		}
		if err := g.commitBatch(ctx, run, st); err != nil {
			cause = err
			completed = false
			discardBatch(source.ID, run, st)
		}
	}

	switch {
	case completed:
		run.Status = domain.RunSucceeded
	case st.committedAny:
		run.Status = domain.RunPartial
	default:
		run.Status = domain.RunFailed
	}
	if cause != nil {
		run.ErrorText = cause.Error()
		if run.Status == domain.RunPartial {
			// Partial progress is durable; the caller still sees the error.
			return fmt.Errorf("run ended partial: %w", cause)
		}
		return cause
	}
	return nil
}

// discardBatch drops the uncommitted batch and rolls its buffered counts
// out of the run stats so the ledger reflects only durable rows.
func discardBatch(source string, run *domain.IngestRun, st *runState) {
	run.Stats.Created -= st.pending.Created
	run.Stats.Updated -= st.pending.Updated
	run.Stats.Deleted -= st.pending.Deleted
	run.Stats.Unchanged -= st.pending.Unchanged
	st.pending = domain.RunStats{}
	st.batch = &driven.Batch{Source: source}
}

// markAbsentees folds snapshot absence into the final batch: records seen
// this run reset their missing counter, active records not seen increment
// it, and records whose absence has outlasted the grace period tombstone.
func (g *Ingestor) markAbsentees(ctx context.Context, source *domain.Source, st *runState) error {
	existing, err := g.catalogue.ListBySource(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("list catalogue for absence check: %w", err)
	}

	grace := source.EffectiveGraceRuns()
	for i := range existing {
		artwork := &existing[i]
		if artwork.IsDeleted {
			continue
		}
		if _, ok := st.seen[artwork.RecordID]; ok {
			continue
		}
		if artwork.MissingRuns+1 >= grace {
			logger.Info("Tombstoning %s after %d absent snapshot runs", artwork.RecordID, artwork.MissingRuns+1)
			st.batch.Tombstones = append(st.batch.Tombstones, artwork.RecordID)
		} else {
			st.batch.MissedIDs = append(st.batch.MissedIDs, artwork.RecordID)
		}
	}
	return nil
}

// transition records a state machine step on the run and the progress map.
func (g *Ingestor) transition(run *domain.IngestRun, status domain.RunStatus) {
	run.Status = status
	g.mu.Lock()
	if p, ok := g.activeRuns[run.Source]; ok {
		p.Status = status
		p.Stats = run.Stats
	}
	g.mu.Unlock()
}

// acquire takes the per-source run slot. Returns false if one is held.
func (g *Ingestor) acquire(sourceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.activeRuns[sourceID]; ok && p.Running {
		return false
	}
	g.activeRuns[sourceID] = &driving.RunProgress{Source: sourceID, Running: true}
	return true
}

// release frees the per-source run slot.
func (g *Ingestor) release(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.activeRuns, sourceID)
}

// setProgress publishes the run id for Progress callers.
func (g *Ingestor) setProgress(sourceID string, run *domain.IngestRun) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.activeRuns[sourceID]; ok {
		p.RunID = run.RunID
		p.Status = run.Status
	}
}

// checkpointCopy returns a heap copy of a checkpoint value.
func checkpointCopy(cp domain.Checkpoint) *domain.Checkpoint {
	c := cp
	return &c
}
