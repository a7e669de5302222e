package met

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artdig/artdig/internal/core/domain"
)

func rawRow(t *testing.T, row map[string]string) *domain.RawRecord {
	t.Helper()
	payload, err := json.Marshal(row)
	require.NoError(t, err)
	return &domain.RawRecord{
		Source:      "met",
		EntityType:  domain.EntityTypeArtwork,
		SourceID:    row["Object ID"],
		Payload:     payload,
		VersionHash: domain.HashPayload(payload),
		FetchedAt:   time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestNormaliseFullRow(t *testing.T) {
	raw := rawRow(t, map[string]string{
		"Object ID":           "436535",
		"Object Number":       "49.30",
		"Title":               "Wheat Field with Cypresses",
		"Artist Display Name": "Vincent van Gogh",
		"Artist Nationality":  "Dutch",
		"Artist Begin Date":   "1853",
		"Artist End Date":     "1890",
		"Object Date":         "1889",
		"Object Begin Date":   "1889",
		"Object End Date":     "1889",
		"Medium":              "Oil on canvas",
		"Dimensions":          "28 7/8 × 36 3/4 in.",
		"Classification":      "Paintings",
		"Department":          "European Paintings",
		"Credit Line":         "Purchase, The Annenberg Foundation Gift, 1993",
		"Is Public Domain":    "True",
		"Link Resource":       "https://www.metmuseum.org/art/collection/search/436535",
		"Object Wikidata URL": "https://www.wikidata.org/wiki/Q18689458",
		"Object Name":         "Painting",
	})

	art, err := New("met").Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "met:436535", art.RecordID)
	assert.Equal(t, "436535", art.SourceID)
	assert.Equal(t, "Wheat Field with Cypresses", art.Title)
	assert.Equal(t, "Vincent van Gogh", art.ArtistName)
	assert.Equal(t, "Dutch", art.ArtistNationality)
	require.NotNil(t, art.ArtistBirthYear)
	assert.Equal(t, 1853, *art.ArtistBirthYear)
	require.NotNil(t, art.DateStart)
	assert.Equal(t, 1889, *art.DateStart)
	assert.True(t, art.IsPublicDomain)
	assert.Equal(t, "Q18689458", art.WikidataID)
	assert.Equal(t, "49.30", art.AccessionNumber)
	assert.Equal(t, "https://www.metmuseum.org/art/collection/search/436535", art.SourceURL)
	assert.Equal(t, "https://collectionapi.metmuseum.org/public/collection/v1/objects/436535", art.ImageURL)
	assert.Equal(t, "Painting", art.Extras["object_name"])
	assert.Equal(t, raw.VersionHash, art.VersionHash)
	assert.Equal(t, raw.FetchedAt, art.FetchedAt)
}

func TestNormaliseSparseRow(t *testing.T) {
	raw := rawRow(t, map[string]string{
		"Object ID":         "1",
		"Title":             "Fragment",
		"Object Begin Date": "not a year",
		"Is Public Domain":  "False",
	})

	art, err := New("met").Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, art.DateStart)
	assert.Nil(t, art.ArtistBirthYear)
	assert.False(t, art.IsPublicDomain)
	assert.Empty(t, art.WikidataID)
}

func TestNormaliseMissingID(t *testing.T) {
	raw := rawRow(t, map[string]string{"Title": "Orphan"})
	raw.SourceID = ""
	_, err := New("met").Normalise(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrMissingSourceID)
}

func TestNormaliseMalformedPayload(t *testing.T) {
	raw := &domain.RawRecord{SourceID: "1", Payload: []byte("not json")}
	_, err := New("met").Normalise(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestNormaliseRightsStatement(t *testing.T) {
	raw := rawRow(t, map[string]string{
		"Object ID":               "2",
		"Rights and Reproduction": "© Artist Estate",
	})
	art, err := New("met").Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "© Artist Estate", art.RightsStatement)
	assert.False(t, art.IsPublicDomain)
}
