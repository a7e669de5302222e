package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/artdig/artdig/internal/core/domain"
)

// Connector fetches raw records from one museum source.
// Each connector family (bulkcsv, feed, graphql, oaipmh) implements this
// interface, configured per source.
type Connector interface {
	// Type returns the connector family identifier.
	Type() string

	// Source returns the configured source id.
	Source() string

	// Capabilities returns what this connector supports.
	Capabilities() ConnectorCapabilities

	// Validate checks the connector is properly configured and can reach
	// its source. For API connectors this makes a lightweight request; for
	// file-based connectors it checks the dump exists and is readable.
	Validate(ctx context.Context) error

	// Bootstrap streams the full extraction. Used when no checkpoint exists
	// or on a forced re-sync. The stream ends with CheckpointComplete on the
	// error channel on success.
	Bootstrap(ctx context.Context) (<-chan domain.RecordChange, <-chan error)

	// Incremental streams only what changed since the checkpoint. The window
	// is inclusive of the last unconfirmed page: re-invoking with the same
	// checkpoint must not lose records. Connectors supporting page
	// checkpoints send PageComplete after each fully-processed page;
	// the stream ends with CheckpointComplete on success.
	Incremental(ctx context.Context, cp domain.Checkpoint) (<-chan domain.RecordChange, <-chan error)

	// Close releases resources.
	Close() error
}

// ConnectorCapabilities describes what a connector supports.
type ConnectorCapabilities struct {
	// SupportsIncremental indicates the connector can fetch only changes.
	SupportsIncremental bool

	// FullSnapshot indicates every successful pass observes the complete
	// source; absent records are candidates for grace-period tombstoning.
	FullSnapshot bool

	// SupportsPageCheckpoints indicates the connector emits PageComplete
	// markers, letting the reconciler commit and advance the checkpoint
	// batch-by-batch.
	SupportsPageCheckpoints bool

	// RequiresAuth indicates the source needs an API token.
	RequiresAuth bool

	// SupportsValidation indicates Validate performs a real check.
	SupportsValidation bool
}

// PageComplete is sent on the error channel after a page has been fully
// processed with zero fetch errors. The carried checkpoint covers everything
// streamed so far; committing it lets a later run resume past this page.
type PageComplete struct {
	Checkpoint domain.Checkpoint
}

// Error implements the error interface so PageComplete can travel on the
// error channel. Connectors send *PageComplete.
func (*PageComplete) Error() string {
	return "page complete"
}

// CheckpointComplete is sent on the error channel when the stream ends
// successfully. It carries the final checkpoint for the window.
type CheckpointComplete struct {
	Checkpoint domain.Checkpoint
}

// Error implements the error interface. Connectors send *CheckpointComplete.
func (*CheckpointComplete) Error() string {
	return "checkpoint complete"
}

// IsPageComplete checks whether an error is a page boundary marker.
func IsPageComplete(err error) (*PageComplete, bool) {
	var pc *PageComplete
	if errors.As(err, &pc) {
		return pc, true
	}
	return nil, false
}

// IsCheckpointComplete checks whether an error is a successful completion.
func IsCheckpointComplete(err error) (*CheckpointComplete, bool) {
	var cc *CheckpointComplete
	if errors.As(err, &cc) {
		return cc, true
	}
	return nil, false
}

// RecordError attributes a fetch or decode failure to one record or page
// without terminating the stream. The reconciler counts it and continues.
type RecordError struct {
	SourceID string
	Err      error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	if e.SourceID == "" {
		return fmt.Sprintf("record error: %v", e.Err)
	}
	return fmt.Sprintf("record %s: %v", e.SourceID, e.Err)
}

// Unwrap exposes the wrapped error.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordError checks whether an error is attributable to a single record.
func IsRecordError(err error) (*RecordError, bool) {
	var re *RecordError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
