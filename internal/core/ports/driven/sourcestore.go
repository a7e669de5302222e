package driven

import (
	"context"

	"github.com/artdig/artdig/internal/core/domain"
)

// SourceStore provides the configured sources.
type SourceStore interface {
	// Get retrieves one source by id.
	// Returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Source, error)

	// List returns all configured sources in a stable order.
	List(ctx context.Context) ([]domain.Source, error)
}
