// Package met normalises Met Museum open-access CSV rows. The connector
// delivers each row as a JSON object keyed by the CSV header names.
package met

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/normalisers/rights"
)

// SourceID is the default source id this normaliser registers under.
const SourceID = "met"

// objectsAPIPrefix is the collection API objects endpoint. The CSV dump
// carries no image fields; the per-object API response does, so the object
// URL is recorded as the image reference.
const objectsAPIPrefix = "https://collectionapi.metmuseum.org/public/collection/v1/objects/"

// wikidataID pulls the entity id out of a Wikidata URL.
var wikidataID = regexp.MustCompile(`(Q\d+)`)

// Normaliser maps Met CSV rows to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates a Met normaliser for the given source id.
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

// Normalise maps one CSV row payload to a canonical artwork.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var row map[string]string
	if err := json.Unmarshal(raw.Payload, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := strings.TrimSpace(row["Object ID"])
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
		Title:             row["Title"],
		ArtistName:        row["Artist Display Name"],
		ArtistNationality: row["Artist Nationality"],
		DateDisplay:       row["Object Date"],
		DateStart:         parseYear(row["Object Begin Date"]),
		DateEnd:           parseYear(row["Object End Date"]),
		Medium:            row["Medium"],
		Dimensions:        row["Dimensions"],
		Classification:    row["Classification"],
		Culture:           row["Culture"],
		Period:            row["Period"],
		Department:        row["Department"],
		CreditLine:        row["Credit Line"],
		ImageURL:          objectsAPIPrefix + sourceID,
		SourceURL:         row["Link Resource"],
		AccessionNumber:   row["Object Number"],
		IsPublicDomain:    row["Is Public Domain"] == "True",
		VersionHash:       raw.VersionHash,
		FetchedAt:         raw.FetchedAt,
		Extras:            map[string]any{},
	}

	// Artist lifespan columns hold years, sometimes with era suffixes the
	// parser rejects; those stay display-only.
	art.ArtistBirthYear = parseYear(row["Artist Begin Date"])
	art.ArtistDeathYear = parseYear(row["Artist End Date"])

	if url := row["Object Wikidata URL"]; url != "" {
		art.WikidataID = wikidataID.FindString(url)
	}

	if marker := row["Rights and Reproduction"]; marker != "" {
		rc := rights.Classify(marker)
		art.RightsStatement = rc.RightsStatement
		if rc.License != "" {
			art.License = rc.License
		}
	}

	putExtras(art.Extras, row,
		"Object Name", "Is Highlight", "Gallery Number", "AccessionYear",
		"Dynasty", "Reign", "Portfolio", "Artist Display Bio", "Artist Role",
		"Artist Gender", "Artist ULAN URL", "Artist Wikidata URL",
		"Country", "City", "Region", "Repository", "Tags")
	if art.ArtistBirthYear != nil || art.ArtistDeathYear != nil {
		art.Extras["derived"] = "artist years parsed from lifespan columns"
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

// putExtras copies non-empty row values into extras under snake_case keys.
func putExtras(extras map[string]any, row map[string]string, keys ...string) {
	for _, key := range keys {
		if v := strings.TrimSpace(row[key]); v != "" {
			extras[snakeCase(key)] = v
		}
	}
}

func snakeCase(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", "_"))
}
