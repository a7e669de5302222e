// Package memory provides in-memory store implementations, primarily for
// tests. Semantics mirror the sqlite store: append-only raw records,
// last-write-wins upserts, soft deletes, and atomic batch commits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

type rawKey struct {
	source      string
	entityType  string
	sourceID    string
	versionHash string
}

// Store holds all catalogue state behind one lock and hands out substores
// implementing the individual port interfaces.
type Store struct {
	mu          sync.RWMutex
	raws        map[rawKey]domain.RawRecord
	rawOrder    []rawKey // insertion order, for version listing
	artworks    map[string]domain.Artwork
	checkpoints map[string]domain.Checkpoint
	runs        map[string]domain.IngestRun
	runOrder    []string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		raws:        make(map[rawKey]domain.RawRecord),
		artworks:    make(map[string]domain.Artwork),
		checkpoints: make(map[string]domain.Checkpoint),
		runs:        make(map[string]domain.IngestRun),
	}
}

// RawStore returns the raw record substore.
func (s *Store) RawStore() driven.RawStore { return &rawStore{s} }

// CatalogueStore returns the canonical artwork substore.
func (s *Store) CatalogueStore() driven.CatalogueStore { return &catalogueStore{s} }

// CheckpointStore returns the checkpoint substore.
func (s *Store) CheckpointStore() driven.CheckpointStore { return &checkpointStore{s} }

// RunStore returns the run ledger substore.
func (s *Store) RunStore() driven.RunStore { return &runStore{s} }

// BatchWriter returns the atomic batch writer.
func (s *Store) BatchWriter() driven.BatchWriter { return &batchWriter{s} }

type rawStore struct{ s *Store }

var _ driven.RawStore = (*rawStore)(nil)

func (r *rawStore) Get(_ context.Context, source, entityType, sourceID, versionHash string) (*domain.RawRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	raw, ok := r.s.raws[rawKey{source, entityType, sourceID, versionHash}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &raw, nil
}

func (r *rawStore) LatestVersions(_ context.Context, source, entityType string) (map[string]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	latest := make(map[string]string)
	seen := make(map[string]time.Time)
	for key, raw := range r.s.raws {
		if key.source != source || key.entityType != entityType {
			continue
		}
		if at, ok := seen[key.sourceID]; !ok || raw.FetchedAt.After(at) {
			seen[key.sourceID] = raw.FetchedAt
			latest[key.sourceID] = raw.VersionHash
		}
	}
	return latest, nil
}

func (r *rawStore) ListVersions(_ context.Context, source, entityType, sourceID string) ([]domain.RawRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var versions []domain.RawRecord
	for i := len(r.s.rawOrder) - 1; i >= 0; i-- {
		key := r.s.rawOrder[i]
		if key.source == source && key.entityType == entityType && key.sourceID == sourceID {
			versions = append(versions, r.s.raws[key])
		}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].FetchedAt.After(versions[j].FetchedAt)
	})
	return versions, nil
}

type catalogueStore struct{ s *Store }

var _ driven.CatalogueStore = (*catalogueStore)(nil)

func (c *catalogueStore) Get(_ context.Context, recordID string) (*domain.Artwork, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	artwork, ok := c.s.artworks[recordID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &artwork, nil
}

func (c *catalogueStore) ListBySource(_ context.Context, source string) ([]domain.Artwork, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var artworks []domain.Artwork
	for _, artwork := range c.s.artworks {
		if artwork.Source == source {
			artworks = append(artworks, artwork)
		}
	}
	sort.Slice(artworks, func(i, j int) bool {
		return artworks[i].RecordID < artworks[j].RecordID
	})
	return artworks, nil
}

func (c *catalogueStore) ActiveIDs(_ context.Context, source string) ([]string, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var ids []string
	for _, artwork := range c.s.artworks {
		if artwork.Source == source && !artwork.IsDeleted {
			ids = append(ids, artwork.RecordID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *catalogueStore) Summary(_ context.Context) (*domain.CatalogueSummary, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	summary := &domain.CatalogueSummary{
		CountsBySource: make(map[string]int),
	}
	classifications := make(map[string]int)
	nationalities := make(map[string]int)
	for _, artwork := range c.s.artworks {
		if artwork.IsDeleted {
			continue
		}
		summary.CountsBySource[artwork.Source]++
		if artwork.Classification != "" {
			classifications[artwork.Classification]++
		}
		if artwork.ArtistNationality != "" {
			nationalities[artwork.ArtistNationality]++
		}
		if artwork.DateStart != nil {
			if summary.EarliestYear == 0 || *artwork.DateStart < summary.EarliestYear {
				summary.EarliestYear = *artwork.DateStart
			}
		}
		if artwork.DateEnd != nil && *artwork.DateEnd > summary.LatestYear {
			summary.LatestYear = *artwork.DateEnd
		}
	}
	summary.TopClassifications = topCounts(classifications, 10)
	summary.TopNationalities = topCounts(nationalities, 10)
	return summary, nil
}

func topCounts(counts map[string]int, limit int) []domain.FieldCount {
	out := make([]domain.FieldCount, 0, len(counts))
	for value, count := range counts {
		out = append(out, domain.FieldCount{Value: value, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type checkpointStore struct{ s *Store }

var _ driven.CheckpointStore = (*checkpointStore)(nil)

func (c *checkpointStore) Get(_ context.Context, source string) (*domain.Checkpoint, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	cp, ok := c.s.checkpoints[source]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cp, nil
}

type runStore struct{ s *Store }

var _ driven.RunStore = (*runStore)(nil)

func (r *runStore) Create(_ context.Context, run *domain.IngestRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.runs[run.RunID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.runs[run.RunID] = *run
	r.s.runOrder = append(r.s.runOrder, run.RunID)
	return nil
}

func (r *runStore) Update(_ context.Context, run *domain.IngestRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.runs[run.RunID]; !ok {
		return domain.ErrNotFound
	}
	r.s.runs[run.RunID] = *run
	return nil
}

func (r *runStore) Close(ctx context.Context, run *domain.IngestRun) error {
	return r.Update(ctx, run)
}

func (r *runStore) Get(_ context.Context, runID string) (*domain.IngestRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	run, ok := r.s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (r *runStore) List(_ context.Context, source string, limit int) ([]domain.IngestRun, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var runs []domain.IngestRun
	for i := len(r.s.runOrder) - 1; i >= 0; i-- {
		run := r.s.runs[r.s.runOrder[i]]
		if source != "" && run.Source != source {
			continue
		}
		runs = append(runs, run)
		if limit > 0 && len(runs) >= limit {
			break
		}
	}
	return runs, nil
}

type batchWriter struct{ s *Store }

var _ driven.BatchWriter = (*batchWriter)(nil)

// CommitBatch applies a batch under the store lock, mirroring the sqlite
// transaction: raw appends are idempotent, upserts respect fetched_at
// ordering, tombstones are soft deletes, and the checkpoint advances last.
func (w *batchWriter) CommitBatch(_ context.Context, batch *driven.Batch) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	for _, raw := range batch.Raws {
		key := rawKey{raw.Source, raw.EntityType, raw.SourceID, raw.VersionHash}
		if _, ok := w.s.raws[key]; ok {
			continue
		}
		w.s.raws[key] = raw
		w.s.rawOrder = append(w.s.rawOrder, key)
	}

	for _, artwork := range batch.Upserts {
		existing, ok := w.s.artworks[artwork.RecordID]
		if ok && existing.FetchedAt.After(artwork.FetchedAt) {
			continue
		}
		artwork.IsDeleted = false
		artwork.DeletedAt = nil
		artwork.MissingRuns = 0
		w.s.artworks[artwork.RecordID] = artwork
	}

	for _, recordID := range batch.Tombstones {
		artwork, ok := w.s.artworks[recordID]
		if !ok || artwork.IsDeleted {
			continue
		}
		at := batch.DeletedAt
		artwork.IsDeleted = true
		artwork.DeletedAt = &at
		w.s.artworks[recordID] = artwork
	}

	for _, recordID := range batch.SeenIDs {
		if artwork, ok := w.s.artworks[recordID]; ok && artwork.MissingRuns != 0 {
			artwork.MissingRuns = 0
			w.s.artworks[recordID] = artwork
		}
	}
	for _, recordID := range batch.MissedIDs {
		if artwork, ok := w.s.artworks[recordID]; ok {
			artwork.MissingRuns++
			w.s.artworks[recordID] = artwork
		}
	}

	if batch.Checkpoint != nil {
		cp := *batch.Checkpoint
		cp.Source = batch.Source
		if cp.LastSuccessAt.IsZero() {
			cp.LastSuccessAt = time.Now().UTC()
		}
		w.s.checkpoints[batch.Source] = cp
	}
	return nil
}

// SourceStore is an in-memory driven.SourceStore backed by a fixed list.
type SourceStore struct {
	mu      sync.RWMutex
	sources []domain.Source
}

var _ driven.SourceStore = (*SourceStore)(nil)

// NewSourceStore creates a source store with the given sources.
func NewSourceStore(sources ...domain.Source) *SourceStore {
	return &SourceStore{sources: sources}
}

// Get retrieves one source by id.
func (s *SourceStore) Get(_ context.Context, id string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sources {
		if s.sources[i].ID == id {
			source := s.sources[i]
			return &source, nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", id, domain.ErrNotFound)
}

// List returns all sources in configuration order.
func (s *SourceStore) List(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Source, len(s.sources))
	copy(out, s.sources)
	return out, nil
}
