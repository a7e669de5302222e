package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/logger"
)

var (
	_ driven.ConnectorFactory   = (*ConnectorFactory)(nil)
	_ driven.NormaliserRegistry = (*NormaliserRegistry)(nil)
)

// ConnectorFactory builds connectors by family. Families register a builder
// at wiring time; Create dispatches on the source's configured family.
type ConnectorFactory struct {
	mu       sync.RWMutex
	builders map[string]driven.ConnectorBuilder
	raws     driven.RawStore
}

// NewConnectorFactory creates an empty factory. The raw store is handed to
// builders so snapshot connectors can diff dumps against stored versions.
func NewConnectorFactory(raws driven.RawStore) *ConnectorFactory {
	return &ConnectorFactory{
		builders: make(map[string]driven.ConnectorBuilder),
		raws:     raws,
	}
}

// RegisterFamily adds a builder for a connector family.
func (f *ConnectorFactory) RegisterFamily(family string, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[family] = builder
}

// Create builds a connector for the source's family.
func (f *ConnectorFactory) Create(ctx context.Context, source domain.Source) (driven.Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[source.Family]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("family %q: %w", source.Family, domain.ErrUnsupportedFamily)
	}

	connector, err := builder(ctx, source, f.raws)
	if err != nil {
		return nil, fmt.Errorf("build %s connector for %s: %w", source.Family, source.ID, err)
	}
	logger.Debug("Created %s connector for source %s", source.Family, source.ID)
	return connector, nil
}

// SupportedFamilies returns the registered family identifiers, sorted.
func (f *ConnectorFactory) SupportedFamilies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	families := make([]string, 0, len(f.builders))
	for family := range f.builders {
		families = append(families, family)
	}
	sort.Strings(families)
	return families
}

// NormaliserRegistry dispatches raw records by (source, entity type).
type NormaliserRegistry struct {
	mu sync.RWMutex
	// keyed by source, then entity type. The empty entity type key is the
	// source-wide fallback.
	normalisers map[string]map[string]driven.Normaliser
}

// NewNormaliserRegistry creates an empty registry.
func NewNormaliserRegistry() *NormaliserRegistry {
	return &NormaliserRegistry{
		normalisers: make(map[string]map[string]driven.Normaliser),
	}
}

// Register adds a normaliser for its source and entity types.
func (r *NormaliserRegistry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source := n.Source()
	if r.normalisers[source] == nil {
		r.normalisers[source] = make(map[string]driven.Normaliser)
	}
	types := n.EntityTypes()
	if len(types) == 0 {
		r.normalisers[source][""] = n
		return
	}
	for _, entityType := range types {
		r.normalisers[source][entityType] = n
	}
}

// Normalise dispatches to the matching normaliser, preferring an exact
// entity type match over the source-wide fallback.
func (r *NormaliserRegistry) Normalise(ctx context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	r.mu.RLock()
	bySource := r.normalisers[raw.Source]
	n, ok := bySource[raw.EntityType]
	if !ok {
		n, ok = bySource[""]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("source %q entity %q: %w", raw.Source, raw.EntityType, domain.ErrNoNormaliser)
	}
	return n.Normalise(ctx, raw)
}
