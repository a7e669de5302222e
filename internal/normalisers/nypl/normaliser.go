// Package nypl normalises NYPL Digital Collections public-domain items. The
// connector streams one NDJSON record per item; every item in the dump is a
// public-domain work by construction.
package nypl

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
const SourceID = "nypl"

// contributor is one entry of an item's contributor list.
type contributor struct {
	ContributorName string `json:"contributorName"`
	ContributorRole string `json:"contributorRole"`
}

// genre is one entry of an item's genre list.
type genre struct {
	Text string `json:"text"`
}

// itemDoc is the NDJSON item shape. Year fields vary between string and
// number across the dump, so they decode loosely.
type itemDoc struct {
	UUID              string        `json:"UUID"`
	Title             string        `json:"title"`
	ResourceType      []string      `json:"resourceType"`
	Contributor       []contributor `json:"contributor"`
	Date              []string      `json:"date"`
	DateStart         any           `json:"dateStart"`
	DateEnd           any           `json:"dateEnd"`
	DescriptionForm   []string      `json:"physicalDescriptionForm"`
	DescriptionExtent []string      `json:"physicalDescriptionExtent"`
	Genre             []genre       `json:"genre"`
	Captures          []string      `json:"captures"`
	NumberOfCaptures  any           `json:"numberOfCaptures"`
	CollectionsURL    string        `json:"digitalCollectionsURL"`
	CollectionUUID    string        `json:"collectionUUID"`
	CollectionTitle   string        `json:"collectionTitle"`
	ContainerUUID     string        `json:"containerUUID"`
	ContainerTitle    string        `json:"containerTitle"`
	ParentHierarchy   string        `json:"parentHierarchy"`
	AccessionNumber   string        `json:"identifierAccessionNumber"`
	CallNumber        string        `json:"identifierCallNumber"`
	BNumber           string        `json:"identifierBNumber"`
}

// Normaliser maps NYPL dump items to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates an NYPL normaliser for the given source id.
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

// Normalise maps one item payload to a canonical artwork.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var doc itemDoc
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := strings.TrimSpace(doc.UUID)
	if sourceID == "" {
		sourceID = raw.SourceID
	}
	if sourceID == "" {
		return nil, domain.ErrMissingSourceID
	}

	art := &domain.Artwork{
		RecordID:        domain.MakeRecordID(n.source, sourceID),
		Source:          n.source,
		SourceID:        sourceID,
		Title:           doc.Title,
		DateStart:       yearOf(doc.DateStart),
		DateEnd:         yearOf(doc.DateEnd),
		Medium:          strings.Join(doc.DescriptionForm, ", "),
		Dimensions:      strings.Join(doc.DescriptionExtent, ", "),
		Classification:  genreText(doc.Genre),
		SourceURL:       doc.CollectionsURL,
		AccessionNumber: doc.AccessionNumber,
		// The dump is the library's public-domain export; every item in
		// it is out of copyright.
		IsPublicDomain: true,
		VersionHash:    raw.VersionHash,
		FetchedAt:      raw.FetchedAt,
		Extras:         map[string]any{},
	}

	if len(doc.Contributor) > 0 {
		art.ArtistName = doc.Contributor[0].ContributorName
	}
	if len(doc.Date) > 0 {
		art.DateDisplay = doc.Date[0]
	}
	if len(doc.Captures) > 0 {
		art.ImageURL = doc.Captures[0]
	}

	putExtra(art.Extras, "resource_type", strings.Join(doc.ResourceType, ", "))
	putExtra(art.Extras, "collection_uuid", doc.CollectionUUID)
	putExtra(art.Extras, "collection_title", doc.CollectionTitle)
	putExtra(art.Extras, "container_uuid", doc.ContainerUUID)
	putExtra(art.Extras, "container_title", doc.ContainerTitle)
	putExtra(art.Extras, "parent_hierarchy", doc.ParentHierarchy)
	putExtra(art.Extras, "call_number", doc.CallNumber)
	putExtra(art.Extras, "bnumber", doc.BNumber)
	if captures := yearOf(doc.NumberOfCaptures); captures != nil {
		art.Extras["num_captures"] = *captures
	}
	return art, nil
}

// genreText joins the genre labels into one classification string.
func genreText(genres []genre) string {
	var parts []string
	for _, g := range genres {
		if g.Text != "" {
			parts = append(parts, g.Text)
		}
	}
	return strings.Join(parts, ", ")
}

// yearOf coerces a loosely typed numeric field. Returns nil for missing or
// non-numeric values.
func yearOf(v any) *int {
	switch t := v.(type) {
	case string:
		year, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return &year
	case float64:
		year := int(t)
		return &year
	default:
		return nil
	}
}

// putExtra records a non-empty source-specific value.
func putExtra(extras map[string]any, key, value string) {
	if value != "" {
		extras[key] = value
	}
}
