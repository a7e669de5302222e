package getty

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artdig/artdig/internal/core/domain"
)

const irisesPayload = `{
	"id": "https://data.getty.edu/museum/collection/object/c88b3df0-de91-4f5b-a9ef-7b2b9a6d8abb",
	"_label": "Irises",
	"identified_by": [
		{"type": "Name", "content": "Irises",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300404670"}]},
		{"type": "Identifier", "content": "90.PA.20",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300312355"}]}
	],
	"classified_as": [
		{"_label": "Painting",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300435444"}]}
	],
	"referred_to_by": [
		{"content": "Oil on canvas",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300435429"}]},
		{"content": "74.3 × 94.3 cm",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300435430"}]},
		{"content": "Dutch",
		 "classified_as": [{"id": "http://vocab.getty.edu/aat/300055768"}]}
	],
	"produced_by": {
		"carried_out_by": [{"_label": "Vincent van Gogh"}],
		"referred_to_by": [
			{"content": "Dutch, 1853 - 1890",
			 "classified_as": [{"id": "https://data.getty.edu/local/thesaurus/nationality-and-dates"}]}
		],
		"timespan": {
			"identified_by": [{"content": "1889"}],
			"begin_of_the_begin": "1889-01-01T00:00:00",
			"end_of_the_end": "1889-12-31T23:59:59"
		}
	},
	"current_keeper": [{"_label": "J. Paul Getty Museum"}],
	"subject_of": [
		{"id": "https://www.getty.edu/art/collection/object/103JNH"},
		{"id": "https://media.getty.edu/iiif/manifest/c88b3df0",
		 "classified_as": [{"id": "https://data.getty.edu/local/thesaurus/iiif-manifest"}]}
	],
	"subject_to": [
		{"classified_as": [{"id": "http://creativecommons.org/publicdomain/zero/1.0/"}]}
	],
	"representation": [{"id": "https://media.getty.edu/iiif/image/abc/full/full/0/default.jpg"}]
}`

func rawObject(payload string) *domain.RawRecord {
	return &domain.RawRecord{
		Source:      "getty",
		EntityType:  domain.EntityTypeArtwork,
		SourceID:    "c88b3df0-de91-4f5b-a9ef-7b2b9a6d8abb",
		Payload:     []byte(payload),
		VersionHash: domain.HashPayload([]byte(payload)),
		FetchedAt:   time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestNormaliseLinkedArtObject(t *testing.T) {
	art, err := New("getty").Normalise(context.Background(), rawObject(irisesPayload))
	require.NoError(t, err)

	assert.Equal(t, "getty:c88b3df0-de91-4f5b-a9ef-7b2b9a6d8abb", art.RecordID)
	assert.Equal(t, "Irises", art.Title)
	assert.Equal(t, "90.PA.20", art.AccessionNumber)
	assert.Equal(t, "Painting", art.Classification)
	assert.Equal(t, "Oil on canvas", art.Medium)
	assert.Equal(t, "74.3 × 94.3 cm", art.Dimensions)
	assert.Equal(t, "Dutch", art.Culture)
	assert.Equal(t, "Vincent van Gogh", art.ArtistName)
	assert.Equal(t, "Dutch", art.ArtistNationality)
	assert.Equal(t, "1889", art.DateDisplay)
	require.NotNil(t, art.DateStart)
	assert.Equal(t, 1889, *art.DateStart)
	require.NotNil(t, art.DateEnd)
	assert.Equal(t, 1889, *art.DateEnd)
	assert.Equal(t, "J. Paul Getty Museum", art.Department)
	assert.Equal(t, "https://www.getty.edu/art/collection/object/103JNH", art.SourceURL)
	assert.Equal(t, "https://media.getty.edu/iiif/manifest/c88b3df0", art.Extras["iiif_manifest"])
	assert.Equal(t, "https://media.getty.edu/iiif/image/abc/full/full/0/default.jpg", art.ImageURL)
	assert.True(t, art.IsPublicDomain)
	assert.Equal(t, "CC0", art.License)
	assert.Equal(t, "Dutch, 1853 - 1890", art.Extras["artist_nationality_and_dates"])
}

func TestNormaliseTitleFallsBackToLabel(t *testing.T) {
	raw := rawObject(`{
		"id": "https://data.getty.edu/museum/collection/object/abc-123",
		"_label": "Untitled Fragment"
	}`)
	art, err := New("getty").Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", art.SourceID)
	assert.Equal(t, "Untitled Fragment", art.Title)
	assert.False(t, art.IsPublicDomain)
}

func TestNormaliseRightsStatement(t *testing.T) {
	raw := rawObject(`{
		"id": "https://data.getty.edu/museum/collection/object/abc-123",
		"subject_to": [
			{"classified_as": [{"id": "https://data.getty.edu/local/thesaurus/rights-statement"}],
			 "referred_to_by": [{"content": "In copyright"}]}
		]
	}`)
	art, err := New("getty").Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "In copyright", art.RightsStatement)
	assert.False(t, art.IsPublicDomain)
}

func TestNormaliseMissingID(t *testing.T) {
	raw := rawObject(`{"_label": "Orphan"}`)
	raw.SourceID = ""
	_, err := New("getty").Normalise(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrMissingSourceID)
}

func TestNormaliseMalformedPayload(t *testing.T) {
	_, err := New("getty").Normalise(context.Background(), rawObject("<xml?>"))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}
