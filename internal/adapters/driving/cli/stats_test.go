package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artdig/artdig/internal/adapters/driven/storage/memory"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

func setupStatsTest(t *testing.T, artworks ...domain.Artwork) func() {
	t.Helper()
	store := memory.NewStore()
	if len(artworks) > 0 {
		require.NoError(t, store.BatchWriter().CommitBatch(context.Background(), &driven.Batch{
			Source:  artworks[0].Source,
			Upserts: artworks,
			Checkpoint: &domain.Checkpoint{
				Source: artworks[0].Source,
				Type:   domain.CheckpointTimestamp,
				Value:  time.Now().UTC().Format(time.RFC3339),
			},
		}))
	}

	oldIngestor, oldCatalogue := ingestor, catalogue
	ingestor = &mockIngestor{}
	catalogue = store.CatalogueStore()
	return func() {
		ingestor, catalogue = oldIngestor, oldCatalogue
	}
}

func year(y int) *int { return &y }

func TestStatsCmd_Summary(t *testing.T) {
	defer setupStatsTest(t,
		domain.Artwork{
			RecordID: "met:1", Source: "met", SourceID: "1",
			Classification: "Paintings", ArtistNationality: "Dutch",
			DateStart: year(1642), DateEnd: year(1642), FetchedAt: time.Now(),
		},
		domain.Artwork{
			RecordID: "met:2", Source: "met", SourceID: "2",
			Classification: "Paintings", ArtistNationality: "French",
			DateStart: year(1884), DateEnd: year(1886), FetchedAt: time.Now(),
		},
	)()

	out, err := execute(t, "stats")
	assert.NoError(t, err)
	assert.Contains(t, out, "Records by source:")
	assert.Contains(t, out, "met")
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "Paintings")
	assert.Contains(t, out, "Dutch")
	assert.Contains(t, out, "1642 to 1886")
}

func TestStatsCmd_EmptyCatalogue(t *testing.T) {
	defer setupStatsTest(t)()

	out, err := execute(t, "stats")
	assert.NoError(t, err)
	assert.Contains(t, out, "total")
	assert.NotContains(t, out, "Date range")
}
