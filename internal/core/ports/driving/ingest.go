package driving

import (
	"context"

	"github.com/artdig/artdig/internal/core/domain"
)

// RunOptions are per-run knobs passed from the CLI. They are explicit
// parameters, never ambient configuration.
type RunOptions struct {
	// ForceBootstrap ignores any stored checkpoint and re-extracts the
	// source from scratch.
	ForceBootstrap bool

	// PageLimit caps the number of pages fetched in this run. Zero means
	// no cap.
	PageLimit int

	// RecordLimit caps the number of records processed in this run. Zero
	// means no cap. A capped run ends PARTIAL.
	RecordLimit int
}

// RunProgress is a point-in-time view of an in-flight run.
type RunProgress struct {
	Source  string
	RunID   string
	Running bool
	Status  domain.RunStatus
	Stats   domain.RunStats
}

// Ingestor triggers and observes ingestion runs.
type Ingestor interface {
	// Run ingests one source. The returned run carries a terminal status;
	// the error is non-nil only when the run itself could not be executed
	// or ended FAILED.
	Run(ctx context.Context, sourceID string, opts RunOptions) (*domain.IngestRun, error)

	// RunAll ingests every configured source sequentially. One source's
	// failure never blocks the others; all terminal runs are returned.
	RunAll(ctx context.Context, opts RunOptions) ([]domain.IngestRun, error)

	// Progress reports the state of an in-flight run for a source.
	Progress(ctx context.Context, sourceID string) (*RunProgress, error)
}
