package domain

import "time"

// Artwork is the canonical, source-agnostic representation of one museum
// object. One logical row per artwork, keyed by RecordID.
type Artwork struct {
	// RecordID is "{source}:{source_id}". It is derived only from stable
	// source identity, never from descriptive fields.
	RecordID string

	// Source is the namespace identifier of the producing source.
	Source string

	// SourceID is the source's native identifier.
	SourceID string

	// Descriptive fields.
	Title             string
	ArtistName        string
	ArtistNationality string
	ArtistBirthYear   *int
	ArtistDeathYear   *int
	DateDisplay       string
	DateStart         *int
	DateEnd           *int
	Medium            string
	Dimensions        string
	Classification    string
	Culture           string
	Period            string
	Department        string
	CreditLine        string

	// Rights fields. IsPublicDomain refers to the work itself, independent
	// of the metadata licence.
	IsPublicDomain  bool
	License         string
	RightsStatement string

	// URLs and external identifiers.
	ImageURL        string
	ThumbnailURL    string
	SourceURL       string
	WikidataID      string
	AccessionNumber string

	// Extras holds source-specific fields that do not fit the shared schema,
	// including provenance notes for derived values.
	Extras map[string]any

	// VersionHash and FetchedAt identify the raw record version this row was
	// normalised from. Upserts with an older FetchedAt never overwrite a
	// newer row.
	VersionHash string
	FetchedAt   time.Time

	// Tombstone state. Rows are soft-deleted, never removed.
	IsDeleted bool
	DeletedAt *time.Time

	// MissingRuns counts consecutive full-snapshot runs in which this record
	// was absent. Reset to zero whenever the record is seen again.
	MissingRuns int
}

// MakeRecordID builds the canonical record identifier for a source object.
func MakeRecordID(source, sourceID string) string {
	return source + ":" + sourceID
}

// CatalogueSummary holds the aggregate statistics reported by the stats
// command.
type CatalogueSummary struct {
	// CountsBySource maps source id to active (non-deleted) record count.
	CountsBySource map[string]int

	// TopClassifications is ordered by descending count.
	TopClassifications []FieldCount

	// TopNationalities is ordered by descending count.
	TopNationalities []FieldCount

	// EarliestYear and LatestYear bound date_start/date_end across the
	// catalogue. Zero when no dated records exist.
	EarliestYear int
	LatestYear   int
}

// FieldCount is a value/count pair used in summaries.
type FieldCount struct {
	Value string
	Count int
}
