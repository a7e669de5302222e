package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

// Ensure SourceStore implements the interface.
var _ driven.SourceStore = (*SourceStore)(nil)

// sourceEntry is the TOML shape of one [sources.<id>] table.
type sourceEntry struct {
	Family    string            `toml:"family"`
	Name      string            `toml:"name"`
	Config    map[string]string `toml:"config"`
	GraceRuns int               `toml:"grace_runs"`
	RateLimit float64           `toml:"rate_limit"`
	PageSize  int               `toml:"page_size"`
	APIToken  string            `toml:"api_token"`
}

type sourcesFile struct {
	Sources map[string]sourceEntry `toml:"sources"`
}

// SourceStore is a file-based implementation of driven.SourceStore using
// TOML. Sources are declared in a sources.toml file within the artdig
// config directory.
type SourceStore struct {
	filePath string
	sources  map[string]domain.Source
	order    []string
}

// NewSourceStore creates a TOML-based source store.
// If configDir is empty, defaults to ~/.artdig/sources.toml.
func NewSourceStore(configDir string) (*SourceStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".artdig")
	}

	s := &SourceStore{
		filePath: filepath.Join(configDir, "sources.toml"),
		sources:  make(map[string]domain.Source),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the configuration file path.
func (s *SourceStore) Path() string {
	return s.filePath
}

// load parses the sources file. A missing file yields an empty store so
// commands can report "no sources configured" instead of failing.
func (s *SourceStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.filePath, err)
	}

	var parsed sourcesFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}

	for id, entry := range parsed.Sources {
		if err := validateEntry(id, entry); err != nil {
			return err
		}
		s.sources[id] = domain.Source{
			ID:        id,
			Family:    entry.Family,
			Name:      entry.Name,
			Config:    entry.Config,
			GraceRuns: entry.GraceRuns,
			RateLimit: entry.RateLimit,
			PageSize:  entry.PageSize,
			APIToken:  resolveToken(entry.APIToken),
		}
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
	return nil
}

// validateEntry rejects entries the connector factory could never build.
func validateEntry(id string, entry sourceEntry) error {
	switch entry.Family {
	case domain.FamilyBulkCSV, domain.FamilyFeed, domain.FamilyGraphQL, domain.FamilyOAIPMH:
		return nil
	case "":
		return fmt.Errorf("%w: source %q has no family", domain.ErrInvalidInput, id)
	default:
		return fmt.Errorf("%w: source %q: %q", domain.ErrUnsupportedFamily, id, entry.Family)
	}
}

// resolveToken expands "env:NAME" references so tokens stay out of the
// config file.
func resolveToken(token string) string {
	if len(token) > 4 && token[:4] == "env:" {
		return os.Getenv(token[4:])
	}
	return token
}

// Get retrieves one source by id.
func (s *SourceStore) Get(_ context.Context, id string) (*domain.Source, error) {
	source, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %q", domain.ErrNotFound, id)
	}
	return &source, nil
}

// List returns all configured sources ordered by id.
func (s *SourceStore) List(_ context.Context) ([]domain.Source, error) {
	out := make([]domain.Source, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sources[id])
	}
	return out, nil
}
