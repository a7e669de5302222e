package domain

import "time"

// RunStatus is the lifecycle state of an ingest run.
type RunStatus string

const (
	// RunPending means the ledger entry exists but fetching has not begun.
	RunPending RunStatus = "pending"

	// RunFetching means the connector stream is being consumed.
	RunFetching RunStatus = "fetching"

	// RunNormalizing means fetched records are being mapped to the
	// canonical schema.
	RunNormalizing RunStatus = "normalizing"

	// RunCommitting means a batch is being written to the catalogue.
	RunCommitting RunStatus = "committing"

	// RunSucceeded means the run completed and the checkpoint advanced to
	// the end of the window.
	RunSucceeded RunStatus = "succeeded"

	// RunPartial means some batches committed (and the checkpoint advanced
	// that far) but the run did not cover the full window. Skipped records
	// alone do not make a run partial; they are counted in Stats.Errors.
	RunPartial RunStatus = "partial"

	// RunFailed means no batch beyond the prior checkpoint committed.
	RunFailed RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunPartial || s == RunFailed
}

// RunStats counts the outcome of one ingest run.
type RunStats struct {
	// Created is the number of records upserted for the first time.
	Created int

	// Updated is the number of existing records upserted with new content.
	Updated int

	// Deleted is the number of tombstones applied.
	Deleted int

	// Unchanged is the number of snapshot rows seen with identical content.
	Unchanged int

	// Errors is the number of records skipped due to fetch or
	// normalisation errors.
	Errors int

	// Collisions is the number of records skipped because a distinct source
	// payload mapped to an already-claimed record id.
	Collisions int
}

// Total returns the number of records the run touched in any way.
func (s RunStats) Total() int {
	return s.Created + s.Updated + s.Deleted + s.Unchanged + s.Errors + s.Collisions
}

// IngestRun is one ledger entry. Created when a run starts, closed exactly
// once when it ends, immutable afterwards.
type IngestRun struct {
	// RunID is a unique identifier for this run.
	RunID string

	// Source is the source this run ingested.
	Source string

	// StartedAt and EndedAt bound the run. EndedAt is zero while running.
	StartedAt time.Time
	EndedAt   time.Time

	// Status is the current lifecycle state.
	Status RunStatus

	// Stats counts run outcomes.
	Stats RunStats

	// ErrorText holds the failure message for failed or partial runs.
	ErrorText string
}

// WorstStatus returns the more severe of two terminal statuses, used by the
// CLI to derive its exit code from a set of runs.
func WorstStatus(a, b RunStatus) RunStatus {
	rank := func(s RunStatus) int {
		switch s {
		case RunFailed:
			return 2
		case RunPartial:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
