// Package rijks normalises Rijksmuseum EDM records harvested over OAI-PMH.
// The payload is the RDF metadata fragment of one record; concept and agent
// details are resolved by matching rdf:about URIs inside the same fragment.
package rijks

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driven"
	"github.com/artdig/artdig/internal/normalisers/rights"
)

// SourceID is the default source id this normaliser registers under.
const SourceID = "rijks"

// sourceURLPrefix is the public collection page prefix, keyed by object
// number.
const sourceURLPrefix = "https://www.rijksmuseum.nl/nl/collectie/"

// XML namespace URIs used in EDM records.
const (
	nsRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDC      = "http://purl.org/dc/elements/1.1/"
	nsDCTerms = "http://purl.org/dc/terms/"
	nsEDM     = "http://www.europeana.eu/schemas/edm/"
	nsSKOS    = "http://www.w3.org/2004/02/skos/core#"
	nsRDAGr2  = "http://rdvocab.info/ElementsGr2/"
	nsOWL     = "http://www.w3.org/2002/07/owl#"
)

var wikidataID = regexp.MustCompile(`(Q\d+)`)

type langString struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

type resourceRef struct {
	Resource string `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# resource,attr"`
}

type providedCHO struct {
	Identifier   string       `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Titles       []langString `xml:"http://purl.org/dc/elements/1.1/ title"`
	Descriptions []langString `xml:"http://purl.org/dc/elements/1.1/ description"`
	Creator      resourceRef  `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Types        []resourceRef `xml:"http://purl.org/dc/elements/1.1/ type"`
	Created      []langString `xml:"http://purl.org/dc/terms/ created"`
	Extent       []langString `xml:"http://purl.org/dc/terms/ extent"`
	Mediums      []resourceRef `xml:"http://purl.org/dc/terms/ medium"`
}

type webResource struct {
	About string `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# about,attr"`
}

type shownBy struct {
	Resource    string       `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# resource,attr"`
	WebResource *webResource `xml:"http://www.europeana.eu/schemas/edm/ WebResource"`
}

type aggregation struct {
	IsShownBy shownBy     `xml:"http://www.europeana.eu/schemas/edm/ isShownBy"`
	Rights    resourceRef `xml:"http://www.europeana.eu/schemas/edm/ rights"`
}

type agent struct {
	About      string        `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# about,attr"`
	PrefLabels []langString  `xml:"http://www.w3.org/2004/02/skos/core# prefLabel"`
	BirthDate  string        `xml:"http://rdvocab.info/ElementsGr2/ dateOfBirth"`
	DeathDate  string        `xml:"http://rdvocab.info/ElementsGr2/ dateOfDeath"`
	SameAs     []resourceRef `xml:"http://www.w3.org/2002/07/owl# sameAs"`
}

type concept struct {
	About      string       `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# about,attr"`
	PrefLabels []langString `xml:"http://www.w3.org/2004/02/skos/core# prefLabel"`
}

type rdfDoc struct {
	XMLName      xml.Name     `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# RDF"`
	CHO          *providedCHO `xml:"http://www.europeana.eu/schemas/edm/ ProvidedCHO"`
	Aggregation  *aggregation `xml:"http://www.openarchives.org/ore/terms/ Aggregation"`
	Descriptions []agent      `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Description"`
	Agents       []agent      `xml:"http://www.europeana.eu/schemas/edm/ Agent"`
	Concepts     []concept    `xml:"http://www.w3.org/2004/02/skos/core# Concept"`
}

// Normaliser maps EDM record fragments to canonical artworks.
type Normaliser struct {
	source string
}

var _ driven.Normaliser = (*Normaliser)(nil)

// New creates a Rijksmuseum normaliser for the given source id.
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

// Normalise maps one EDM fragment to a canonical artwork. The source id is
// the OAI identifier carried on the raw record, not a payload field.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawRecord) (*domain.Artwork, error) {
	if raw.SourceID == "" {
		return nil, domain.ErrMissingSourceID
	}
	var doc rdfDoc
	if err := xml.Unmarshal(raw.Payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if doc.CHO == nil {
		return nil, fmt.Errorf("%w: record %s has no ProvidedCHO", domain.ErrMalformedPayload, raw.SourceID)
	}

	art := &domain.Artwork{
		RecordID:        domain.MakeRecordID(n.source, raw.SourceID),
		Source:          n.source,
		SourceID:        raw.SourceID,
		Title:           preferEnglish(doc.CHO.Titles),
		DateDisplay:     preferEnglish(doc.CHO.Created),
		Dimensions:      preferEnglish(doc.CHO.Extent),
		Medium:          conceptLabels(doc.Concepts, doc.CHO.Mediums),
		Classification:  conceptLabels(doc.Concepts, doc.CHO.Types),
		AccessionNumber: doc.CHO.Identifier,
		VersionHash:     raw.VersionHash,
		FetchedAt:       raw.FetchedAt,
		Extras:          map[string]any{},
	}
	if doc.CHO.Identifier != "" {
		art.SourceURL = sourceURLPrefix + doc.CHO.Identifier
	}
	if desc := preferEnglish(doc.CHO.Descriptions); desc != "" {
		art.Extras["description"] = desc
	}

	// A bare year in dcterms:created doubles as the date range.
	if year := parseYear(art.DateDisplay); year != nil {
		art.DateStart = year
		art.DateEnd = year
		art.Extras["derived"] = "date range read from single-year created statement"
	}

	n.applyCreator(art, &doc)

	if doc.Aggregation != nil {
		art.ImageURL = doc.Aggregation.IsShownBy.Resource
		if art.ImageURL == "" && doc.Aggregation.IsShownBy.WebResource != nil {
			art.ImageURL = doc.Aggregation.IsShownBy.WebResource.About
		}
		if marker := doc.Aggregation.Rights.Resource; marker != "" {
			rc := rights.Classify(marker)
			art.IsPublicDomain = rc.IsPublicDomain
			art.License = rc.License
			art.RightsStatement = rc.RightsStatement
		}
	}
	return art, nil
}

// applyCreator resolves the dc:creator URI against the agents embedded in
// the same RDF fragment.
func (n *Normaliser) applyCreator(art *domain.Artwork, doc *rdfDoc) {
	uri := doc.CHO.Creator.Resource
	if uri == "" {
		return
	}
	candidates := make([]agent, 0, len(doc.Descriptions)+len(doc.Agents))
	candidates = append(candidates, doc.Descriptions...)
	candidates = append(candidates, doc.Agents...)
	for _, cand := range candidates {
		if cand.About != uri {
			continue
		}
		art.ArtistName = preferEnglish(cand.PrefLabels)
		art.ArtistBirthYear = parseYear(cand.BirthDate)
		art.ArtistDeathYear = parseYear(cand.DeathDate)
		for _, same := range cand.SameAs {
			if strings.Contains(same.Resource, "wikidata.org") {
				art.WikidataID = wikidataID.FindString(same.Resource)
				break
			}
		}
		return
	}
}

// preferEnglish picks the xml:lang="en" value, falling back to the first
// non-empty one.
func preferEnglish(values []langString) string {
	first := ""
	for _, v := range values {
		text := strings.TrimSpace(v.Text)
		if text == "" {
			continue
		}
		if v.Lang == "en" {
			return text
		}
		if first == "" {
			first = text
		}
	}
	return first
}

// conceptLabels resolves resource references to skos concept labels and
// joins them.
func conceptLabels(concepts []concept, refs []resourceRef) string {
	var labels []string
	for _, ref := range refs {
		if ref.Resource == "" {
			continue
		}
		for _, c := range concepts {
			if c.About == ref.Resource {
				if label := preferEnglish(c.PrefLabels); label != "" {
					labels = append(labels, label)
				}
				break
			}
		}
	}
	return strings.Join(labels, " | ")
}

// parseYear extracts a leading four-digit year from a date string.
func parseYear(s string) *int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return nil
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return nil
	}
	return &year
}
