// Package nga normalises National Gallery of Art open-data rows. The dump
// splits one object across several CSVs; the connector merges the primary
// artist, primary image and school/style terms into each row under
// "artist.", "image.", "school." and "style." keys, and this package maps
// the merged row to the canonical schema.
package nga

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

// SourceID is the default source id this normaliser registers under.
const SourceID = "nga"

// sourceURLFormat builds the public object page URL from the object id.
const sourceURLFormat = "https://www.nga.gov/collection/art-object-page.%s.html"

// iiifSuffix turns a bare IIIF identifier URL into a full-size image URL.
const iiifSuffix = "/full/max/0/default.jpg"

// Normaliser maps merged NGA CSV rows to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates an NGA normaliser for the given source id.
func New(source string) *Normaliser {
	if source == "" {
		source = SourceID
	}
	return &Normaliser{source: source}
}

// Source returns the source id this normaliser handles.
func (n *Normaliser) Source() string { return n.source }

// EntityTypes returns the handled entity types; empty means all.
func (n *Normaliser) EntityTypes() []string { return nil }

// Normalise maps one merged row payload to a canonical artwork.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var row map[string]string
	if err := json.Unmarshal(raw.Payload, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := strings.TrimSpace(row["objectid"])
	if sourceID == "" {
		sourceID = raw.SourceID
	}
	if sourceID == "" {
		return nil, domain.ErrMissingSourceID
	}

	art := &domain.Artwork{
		RecordID:          domain.MakeRecordID(n.source, sourceID),
		Source:            n.source,
		SourceID:          sourceID,
		Title:             row["title"],
		ArtistName:        row["artist.preferreddisplayname"],
		ArtistNationality: row["artist.nationality"],
		ArtistBirthYear:   parseYear(row["artist.beginyear"]),
		ArtistDeathYear:   parseYear(row["artist.endyear"]),
		DateDisplay:       row["displaydate"],
		DateStart:         parseYear(row["beginyear"]),
		DateEnd:           parseYear(row["endyear"]),
		Medium:            row["medium"],
		Dimensions:        row["dimensions"],
		Classification:    row["classification"],
		Culture:           row["school.term"],
		Period:            row["style.term"],
		Department:        row["departmentabbr"],
		CreditLine:        row["creditline"],
		ThumbnailURL:      row["image.iiifthumburl"],
		SourceURL:         fmt.Sprintf(sourceURLFormat, sourceID),
		WikidataID:        row["wikidataid"],
		AccessionNumber:   row["accessionnum"],
		IsPublicDomain:    row["accessioned"] == "1",
		VersionHash:       raw.VersionHash,
		FetchedAt:         raw.FetchedAt,
		Extras:            map[string]any{},
	}

	if iiif := row["image.iiifurl"]; iiif != "" {
		art.ImageURL = iiif + iiifSuffix
		art.Extras["derived"] = "image URL built from the IIIF identifier"
	}

	putExtras(art.Extras, row,
		"subclassification", "visualbrowserclassification", "visualbrowsertimespan",
		"parentid", "portfolio", "series", "volume", "inscription", "markings",
		"attributioninverted")
	if row["isvirtual"] == "1" {
		art.Extras["is_virtual"] = true
	}
	return art, nil
}

// parseYear parses an integer year, tolerating surrounding whitespace.
// Returns nil for empty or non-numeric values.
func parseYear(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &year
}

// putExtras copies non-empty row values into extras under their column name.
func putExtras(extras map[string]any, row map[string]string, keys ...string) {
	for _, key := range keys {
		if v := strings.TrimSpace(row[key]); v != "" {
			extras[key] = v
		}
	}
}
