package driven

import (
	"context"
	"time"

	"github.com/artdig/artdig/internal/core/domain"
)

// RawStore is the append-only store of fetched payloads. Versions are
// addressed by (source, entity_type, source_id, version_hash) and are never
// mutated; writes happen through BatchWriter.CommitBatch.
type RawStore interface {
	// Get retrieves one raw record version.
	Get(ctx context.Context, source, entityType, sourceID, versionHash string) (*domain.RawRecord, error)

	// LatestVersions returns the most recently fetched version hash per
	// source id, used by snapshot connectors to diff a new dump against the
	// last observed state.
	LatestVersions(ctx context.Context, source, entityType string) (map[string]string, error)

	// ListVersions returns all stored versions for one source record,
	// newest first.
	ListVersions(ctx context.Context, source, entityType, sourceID string) ([]domain.RawRecord, error)
}

// CatalogueStore reads the canonical artworks table. Writes happen through
// BatchWriter.CommitBatch so canonical rows, raw rows and the checkpoint
// commit together.
type CatalogueStore interface {
	// Get retrieves one artwork by record id.
	Get(ctx context.Context, recordID string) (*domain.Artwork, error)

	// ListBySource returns all artworks for a source, including tombstones.
	ListBySource(ctx context.Context, source string) ([]domain.Artwork, error)

	// ActiveIDs returns the record ids of non-deleted artworks for a source.
	ActiveIDs(ctx context.Context, source string) ([]string, error)

	// Summary computes the aggregate statistics for the stats command.
	Summary(ctx context.Context) (*domain.CatalogueSummary, error)
}

// CheckpointStore reads per-source cursor state. The checkpoint advances
// only inside BatchWriter.CommitBatch.
type CheckpointStore interface {
	// Get retrieves the checkpoint for a source.
	// Returns domain.ErrNotFound before the first successful run.
	Get(ctx context.Context, source string) (*domain.Checkpoint, error)
}

// RunStore persists the run ledger.
type RunStore interface {
	// Create opens a ledger entry at run start.
	Create(ctx context.Context, run *domain.IngestRun) error

	// Update persists status transitions and running stats.
	Update(ctx context.Context, run *domain.IngestRun) error

	// Close finalises the entry; the entry is immutable afterwards.
	Close(ctx context.Context, run *domain.IngestRun) error

	// Get retrieves one entry by run id.
	Get(ctx context.Context, runID string) (*domain.IngestRun, error)

	// List returns recent entries for a source (all sources when source is
	// empty), most recent first.
	List(ctx context.Context, source string, limit int) ([]domain.IngestRun, error)
}

// Batch is one unit of durable progress: everything here commits in a
// single transaction, so a crash either keeps the whole batch and its
// checkpoint or neither.
type Batch struct {
	// Source is the source the batch belongs to.
	Source string

	// Raws are raw record versions to append (INSERT OR IGNORE semantics:
	// re-applying the same version is a no-op).
	Raws []domain.RawRecord

	// Upserts are canonical rows to apply under last-write-wins ordering:
	// a row with an older FetchedAt than the stored one is not applied.
	Upserts []domain.Artwork

	// Tombstones are record ids to soft-delete at DeletedAt.
	Tombstones []string
	DeletedAt  time.Time

	// SeenIDs are record ids observed in a full-snapshot pass; their
	// missing-run counters reset to zero.
	SeenIDs []string

	// MissedIDs are active record ids absent from a full-snapshot pass;
	// their missing-run counters increment by one.
	MissedIDs []string

	// Checkpoint, when non-nil, advances the source cursor as part of the
	// same transaction.
	Checkpoint *domain.Checkpoint
}

// Empty reports whether committing the batch would change nothing.
func (b *Batch) Empty() bool {
	return len(b.Raws) == 0 && len(b.Upserts) == 0 && len(b.Tombstones) == 0 &&
		len(b.SeenIDs) == 0 && len(b.MissedIDs) == 0 && b.Checkpoint == nil
}

// BatchWriter applies a batch atomically.
type BatchWriter interface {
	CommitBatch(ctx context.Context, batch *Batch) error
}
