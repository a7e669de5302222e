// Package getty normalises Getty Museum Linked Art JSON-LD objects. Values
// live in deeply nested nodes keyed by AAT vocabulary classifications, so
// most of the work is walking classified_as chains.
package getty

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/normalisers/rights"
)

// SourceID is the default source id this normaliser registers under.
const SourceID = "getty"

// AAT and Getty-local vocabulary URIs used for classification lookups.
const (
	aatPreferredTerm   = "http://vocab.getty.edu/aat/300404670"
	aatPrimaryTitle    = "https://data.getty.edu/local/thesaurus/object-title-primary"
	aatAccessionNumber = "http://vocab.getty.edu/aat/300312355"
	aatMaterials       = "http://vocab.getty.edu/aat/300435429"
	aatCreditLine      = "http://vocab.getty.edu/aat/300435418"
	aatCulture         = "http://vocab.getty.edu/aat/300055768"
	aatObjectType      = "http://vocab.getty.edu/aat/300435443"
	aatDimensionsDesc  = "http://vocab.getty.edu/aat/300435430"
	aatClassCategory   = "http://vocab.getty.edu/aat/300435444"
	aatCC0             = "http://creativecommons.org/publicdomain/zero/1.0/"

	localIIIFManifest    = "https://data.getty.edu/local/thesaurus/iiif-manifest"
	localRightsStatement = "https://data.getty.edu/local/thesaurus/rights-statement"
	localProducerNatDate = "https://data.getty.edu/local/thesaurus/nationality-and-dates"

	objectPrefix = "https://data.getty.edu/museum/collection/object/"
)

type node struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Label        string `json:"_label"`
	Content      string `json:"content"`
	ClassifiedAs []node `json:"classified_as"`
	IdentifiedBy []node `json:"identified_by"`
	ReferredToBy []node `json:"referred_to_by"`
}

type timespan struct {
	IdentifiedBy   []node `json:"identified_by"`
	BeginOfTheOpen string `json:"begin_of_the_begin"`
	EndOfTheEnd    string `json:"end_of_the_end"`
}

type production struct {
	CarriedOutBy []node   `json:"carried_out_by"`
	ReferredToBy []node   `json:"referred_to_by"`
	Timespan     timespan `json:"timespan"`
}

type linkedArtObject struct {
	ID             string     `json:"id"`
	Label          string     `json:"_label"`
	IdentifiedBy   []node     `json:"identified_by"`
	ReferredToBy   []node     `json:"referred_to_by"`
	ClassifiedAs   []node     `json:"classified_as"`
	ProducedBy     production `json:"produced_by"`
	CurrentKeeper  []node     `json:"current_keeper"`
	SubjectOf      []node     `json:"subject_of"`
	SubjectTo      []node     `json:"subject_to"`
	Representation []node     `json:"representation"`
}

// Normaliser maps Getty Linked Art objects to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates a Getty normaliser for the given source id.
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

// Normalise maps one Linked Art object to a canonical artwork.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	var obj linkedArtObject
	if err := json.Unmarshal(raw.Payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sourceID := objectID(obj.ID)
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
		Title:           title(obj),
		AccessionNumber: content(findByClass(obj.IdentifiedBy, aatAccessionNumber)),
		Medium:          content(findByClass(obj.ReferredToBy, aatMaterials)),
		Culture:         content(findByClass(obj.ReferredToBy, aatCulture)),
		CreditLine:      content(findByClass(obj.ReferredToBy, aatCreditLine)),
		Dimensions:      content(findByClass(obj.ReferredToBy, aatDimensionsDesc)),
		VersionHash:     raw.VersionHash,
		FetchedAt:       raw.FetchedAt,
		Extras:          map[string]any{},
	}

	// Classification labels sit on classified_as entries tagged with the
	// classification-category marker.
	var classes []string
	for _, cls := range obj.ClassifiedAs {
		if hasClass(cls.ClassifiedAs, aatClassCategory) && cls.Label != "" {
			classes = append(classes, cls.Label)
		}
	}
	art.Classification = strings.Join(classes, ", ")
	if objType := content(findByClass(obj.ReferredToBy, aatObjectType)); objType != "" {
		art.Extras["object_type"] = objType
	}

	n.applyProduction(art, obj.ProducedBy)

	for _, keeper := range obj.CurrentKeeper {
		if keeper.Label != "" {
			art.Department = keeper.Label
			break
		}
	}

	for _, item := range obj.SubjectOf {
		switch {
		case strings.Contains(item.ID, "getty.edu/art/collection/object/"):
			art.SourceURL = item.ID
		case hasClass(item.ClassifiedAs, localIIIFManifest):
			art.Extras["iiif_manifest"] = item.ID
		}
	}
	if len(obj.Representation) > 0 {
		art.ImageURL = obj.Representation[0].ID
	}

	n.applyRights(art, obj.SubjectTo)
	return art, nil
}

// applyProduction fills artist and date fields from the produced_by node.
func (n *Normaliser) applyProduction(art *domain.Artwork, prod production) {
	for _, person := range prod.CarriedOutBy {
		if person.Label != "" {
			art.ArtistName = person.Label
			break
		}
	}
	if natDates := content(findByClass(prod.ReferredToBy, localProducerNatDate)); natDates != "" {
		// "Dutch, 1853 - 1890" style strings carry nationality before the
		// first comma.
		if i := strings.IndexByte(natDates, ','); i > 0 {
			art.ArtistNationality = strings.TrimSpace(natDates[:i])
		}
		art.Extras["artist_nationality_and_dates"] = natDates
		art.Extras["derived"] = "artist nationality split from nationality-and-dates statement"
	}

	for _, ident := range prod.Timespan.IdentifiedBy {
		if ident.Content != "" {
			art.DateDisplay = ident.Content
			break
		}
	}
	art.DateStart = isoYear(prod.Timespan.BeginOfTheOpen)
	art.DateEnd = isoYear(prod.Timespan.EndOfTheEnd)
}

// applyRights reads the subject_to nodes for CC0 markers and rights
// statements.
func (n *Normaliser) applyRights(art *domain.Artwork, subjectTo []node) {
	for _, right := range subjectTo {
		if hasClass(right.ClassifiedAs, aatCC0) {
			rc := rights.Classify(aatCC0)
			art.IsPublicDomain = true
			art.License = rc.License
		}
		if hasClass(right.ClassifiedAs, localRightsStatement) {
			for _, ref := range right.ReferredToBy {
				if ref.Content != "" {
					art.RightsStatement = ref.Content
					break
				}
			}
		}
	}
}

// title prefers the Name entry with a preferred-term classification, then
// the first Name, then the object label.
func title(obj linkedArtObject) string {
	first := ""
	for _, entry := range obj.IdentifiedBy {
		if entry.Type != "Name" || entry.Content == "" {
			continue
		}
		if first == "" {
			first = entry.Content
		}
		if hasClass(entry.ClassifiedAs, aatPreferredTerm) || hasClass(entry.ClassifiedAs, aatPrimaryTitle) {
			return entry.Content
		}
	}
	if first != "" {
		return first
	}
	return obj.Label
}

// objectID extracts the object UUID from its Linked Art URL.
func objectID(id string) string {
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, objectPrefix) {
		return strings.TrimPrefix(id, objectPrefix)
	}
	trimmed := strings.TrimRight(id, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// hasClass reports whether any classification (or nested classification)
// carries the given vocabulary URI.
func hasClass(classes []node, uri string) bool {
	for _, cls := range classes {
		if cls.ID == uri {
			return true
		}
		for _, inner := range cls.ClassifiedAs {
			if inner.ID == uri {
				return true
			}
		}
	}
	return false
}

// findByClass returns the first node classified with the given URI.
func findByClass(items []node, uri string) *node {
	for i := range items {
		if hasClass(items[i].ClassifiedAs, uri) {
			return &items[i]
		}
	}
	return nil
}

// content returns a node's trimmed content, or empty for nil nodes.
func content(item *node) string {
	if item == nil {
		return ""
	}
	return strings.TrimSpace(item.Content)
}

// isoYear extracts the year from an ISO timestamp like
// "1889-01-01T00:00:00".
func isoYear(s string) *int {
	if len(s) < 4 {
		return nil
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return nil
	}
	return &year
}
