package driven

import (
	"context"

	"github.com/artdig/artdig/internal/core/domain"
)

// Normaliser maps one source's raw records into the canonical artwork
// schema. Normalisation is pure: it reads the payload and produces an
// Artwork or an error, with no side effects.
type Normaliser interface {
	// Source returns the source id this normaliser handles.
	Source() string

	// EntityTypes returns the entity types this normaliser handles.
	// Empty slice means all entity types of the source.
	EntityTypes() []string

	// Normalise maps a raw record to a canonical artwork. Errors wrap
	// domain normalisation sentinels (ErrMissingSourceID,
	// ErrMalformedPayload) and are non-fatal to a run.
	Normalise(ctx context.Context, raw *domain.RawRecord) (*domain.Artwork, error)
}

// NormaliserRegistry dispatches raw records to the normaliser registered
// for their source and entity type.
type NormaliserRegistry interface {
	// Register adds a normaliser. Later registrations for the same
	// source/entity type replace earlier ones.
	Register(n Normaliser)

	// Normalise dispatches to the matching normaliser.
	// Returns domain.ErrNoNormaliser when none matches.
	Normalise(ctx context.Context, raw *domain.RawRecord) (*domain.Artwork, error)
}

// ConnectorFactory creates connectors from source configuration.
type ConnectorFactory interface {
	// Create builds a connector for the source's family.
	// Returns domain.ErrUnsupportedFamily for unknown families.
	Create(ctx context.Context, source domain.Source) (Connector, error)

	// SupportedFamilies returns the registered family identifiers.
	SupportedFamilies() []string
}

// ConnectorBuilder constructs a connector for one family.
type ConnectorBuilder func(ctx context.Context, source domain.Source, raws RawStore) (Connector, error)
