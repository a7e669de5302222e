// Package chicago normalises Art Institute of Chicago artwork JSON.
package chicago

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
)

// SourceID is the default source id this normaliser registers under.
const SourceID = "chicago"

// iiifTemplate builds the public image URL from an image id.
const iiifTemplate = "https://www.artic.edu/iiif/2/%s/full/843,/0/default.jpg"

// sourceURLPrefix is the public artwork page prefix.
const sourceURLPrefix = "https://www.artic.edu/artworks/"

type artworkDoc struct {
	ID                   json.Number `json:"id"`
	Title                string      `json:"title"`
	ArtworkTypeTitle     string      `json:"artwork_type_title"`
	ArtistDisplay        string      `json:"artist_display"`
	ArtistTitle          string      `json:"artist_title"`
	PlaceOfOrigin        string      `json:"place_of_origin"`
	DateDisplay          string      `json:"date_display"`
	DateStart            *int        `json:"date_start"`
	DateEnd              *int        `json:"date_end"`
	MediumDisplay        string      `json:"medium_display"`
	Dimensions           string      `json:"dimensions"`
	ClassificationTitles []string    `json:"classification_titles"`
	ImageID              string      `json:"image_id"`
	IsPublicDomain       bool        `json:"is_public_domain"`
	DepartmentTitle      string      `json:"department_title"`
	CreditLine           string      `json:"credit_line"`
	MainReferenceNumber  string      `json:"main_reference_number"`
	CopyrightNotice      string      `json:"copyright_notice"`
	StyleTitles          []string    `json:"style_titles"`
	TermTitles           []string    `json:"term_titles"`
	Inscriptions         string      `json:"inscriptions"`
	ProvenanceText       string      `json:"provenance_text"`
	IsOnView             bool        `json:"is_on_view"`
	GalleryTitle         string      `json:"gallery_title"`
}

// Normaliser maps Art Institute of Chicago JSON to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates a Chicago normaliser for the given source id.
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

// Normalise maps one artwork document to a canonical artwork.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var doc artworkDoc
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := doc.ID.String()
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
		ArtistName:      artistName(doc),
		DateDisplay:     doc.DateDisplay,
		DateStart:       doc.DateStart,
		DateEnd:         doc.DateEnd,
		Medium:          doc.MediumDisplay,
		Dimensions:      doc.Dimensions,
		Classification:  strings.Join(doc.ClassificationTitles, ", "),
		Culture:         doc.PlaceOfOrigin,
		Department:      doc.DepartmentTitle,
		CreditLine:      doc.CreditLine,
		IsPublicDomain:  doc.IsPublicDomain,
		RightsStatement: doc.CopyrightNotice,
		SourceURL:       sourceURLPrefix + sourceID,
		AccessionNumber: doc.MainReferenceNumber,
		VersionHash:     raw.VersionHash,
		FetchedAt:       raw.FetchedAt,
		Extras:          map[string]any{},
	}
	if doc.IsPublicDomain {
		art.License = "CC0"
	}
	if doc.ImageID != "" {
		art.ImageURL = fmt.Sprintf(iiifTemplate, doc.ImageID)
		art.Extras["derived"] = "image_url built from image_id via IIIF template"
	}

	if doc.ArtworkTypeTitle != "" {
		art.Extras["artwork_type"] = doc.ArtworkTypeTitle
	}
	if len(doc.StyleTitles) > 0 {
		art.Extras["style_titles"] = doc.StyleTitles
	}
	if len(doc.TermTitles) > 0 {
		art.Extras["term_titles"] = doc.TermTitles
	}
	if doc.Inscriptions != "" {
		art.Extras["inscriptions"] = doc.Inscriptions
	}
	if doc.ProvenanceText != "" {
		art.Extras["provenance_text"] = doc.ProvenanceText
	}
	if doc.GalleryTitle != "" {
		art.Extras["gallery_title"] = doc.GalleryTitle
		art.Extras["is_on_view"] = doc.IsOnView
	}
	return art, nil
}

// artistName prefers the full display string over the bare artist title.
func artistName(doc artworkDoc) string {
	if doc.ArtistDisplay != "" {
		// The display string may carry nationality and dates on a second
		// line; the first line is the name.
		if i := strings.IndexByte(doc.ArtistDisplay, '\n'); i > 0 {
			return strings.TrimSpace(doc.ArtistDisplay[:i])
		}
		return doc.ArtistDisplay
	}
	return doc.ArtistTitle
}
