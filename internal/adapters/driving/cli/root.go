// Package cli wires the cobra command tree to the core services.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artdig/artdig/internal/adapters/driven/config/file"
	"github.com/artdig/artdig/internal/adapters/driven/storage/sqlite"
	"github.com/artdig/artdig/internal/connectors/bulkcsv"
	"github.com/artdig/artdig/internal/connectors/feed"
	"github.com/artdig/artdig/internal/connectors/graphql"
	"github.com/artdig/artdig/internal/connectors/oaipmh"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/core/ports/driving"
	"github.com/artdig/artdig/internal/core/services"
	"github.com/artdig/artdig/internal/logger"
	"github.com/artdig/artdig/internal/normalisers/chicago"
	"github.com/artdig/artdig/internal/normalisers/getty"
	"github.com/artdig/artdig/internal/normalisers/met"
	"github.com/artdig/artdig/internal/normalisers/nga"
	"github.com/artdig/artdig/internal/normalisers/nypl"
	"github.com/artdig/artdig/internal/normalisers/rijks"
)

// version is set by Execute from the build's version info.
var version = "dev"

// Persistent flags.
var (
	verbose   bool
	dataDir   string
	configDir string
)

// Services used by the commands. Wired once in initServices; tests inject
// mocks before calling Execute.
var (
	sourceStore driven.SourceStore
	ingestor    driving.Ingestor
	catalogue   driven.CatalogueStore
	runStore    driven.RunStore

	store *sqlite.Store
)

var rootCmd = &cobra.Command{
	Use:   "artdig",
	Short: "Incremental museum collection ingestion",
	Long: `artdig ingests museum collection metadata from configured sources,
normalises it into one canonical artwork schema and keeps a local SQLite
catalogue up to date with incremental, checkpointed runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if ingestor != nil {
			// Already wired, either by a previous command or by a test.
			return nil
		}
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "database directory (default ~/.artdig/data)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.artdig)")
}

// initServices builds the production wiring: TOML sources, SQLite storage,
// the connector factory and the normaliser registry behind one ingestor.
func initServices() error {
	srcStore, err := file.NewSourceStore(configDir)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	sourceStore = srcStore

	store, err = sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening catalogue: %w", err)
	}
	catalogue = store.CatalogueStore()
	runStore = store.RunStore()

	factory := services.NewConnectorFactory(store.RawStore())
	factory.RegisterFamily(domain.FamilyBulkCSV,
		func(_ context.Context, source domain.Source, raws driven.RawStore) (driven.Connector, error) {
			return bulkcsv.New(source, raws)
		})
	factory.RegisterFamily(domain.FamilyFeed,
		func(_ context.Context, source domain.Source, _ driven.RawStore) (driven.Connector, error) {
			return feed.New(source)
		})
	factory.RegisterFamily(domain.FamilyGraphQL,
		func(_ context.Context, source domain.Source, raws driven.RawStore) (driven.Connector, error) {
			return graphql.New(source, raws)
		})
	factory.RegisterFamily(domain.FamilyOAIPMH,
		func(_ context.Context, source domain.Source, _ driven.RawStore) (driven.Connector, error) {
			return oaipmh.New(source)
		})

	registry := services.NewNormaliserRegistry()
	sources, err := sourceStore.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	registerNormalisers(registry, sources)

	ingestor = services.NewIngestor(
		sourceStore,
		store.CheckpointStore(),
		catalogue,
		store.RawStore(),
		runStore,
		store.BatchWriter(),
		factory,
		registry,
	)
	return nil
}

// registerNormalisers attaches a schema mapper to each configured source.
// The mapper kind defaults to the source id and can be overridden with the
// `normaliser` config key, so a renamed source keeps its field mappings.
func registerNormalisers(registry *services.NormaliserRegistry, sources []domain.Source) {
	kinds := map[string]func(string) driven.Normaliser{
		met.SourceID:     func(id string) driven.Normaliser { return met.New(id) },
		chicago.SourceID: func(id string) driven.Normaliser { return chicago.New(id) },
		getty.SourceID:   func(id string) driven.Normaliser { return getty.New(id) },
		nga.SourceID:     func(id string) driven.Normaliser { return nga.New(id) },
		nypl.SourceID:    func(id string) driven.Normaliser { return nypl.New(id) },
		rijks.SourceID:   func(id string) driven.Normaliser { return rijks.New(id) },
	}
	for _, source := range sources {
		kind := source.Config["normaliser"]
		if kind == "" {
			kind = source.ID
		}
		build, ok := kinds[kind]
		if !ok {
			logger.Warn("Source %s has no matching normaliser; its records will be skipped", source.ID)
			continue
		}
		registry.Register(build(source.ID))
	}
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	defer func() {
		if store != nil {
			store.Close() //nolint:errcheck
		}
	}()
	return rootCmd.Execute()
}
