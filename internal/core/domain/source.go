package domain

// Connector family identifiers.
const (
	FamilyBulkCSV = "bulkcsv"
	FamilyFeed    = "feed"
	FamilyGraphQL = "graphql"
	FamilyOAIPMH  = "oaipmh"
)

// DefaultGraceRuns is the number of consecutive absent-snapshot runs before a
// missing record is tombstoned, unless the source configures its own.
const DefaultGraceRuns = 2

// Source is one configured museum source.
type Source struct {
	// ID is the namespace identifier, e.g. "met", "getty".
	ID string

	// Family identifies the connector family (bulkcsv, feed, graphql, oaipmh).
	Family string

	// Name is the human-readable institution name.
	Name string

	// Config contains family-specific settings (endpoint, csv_path, set…).
	Config map[string]string

	// GraceRuns is the tombstone grace period for full-snapshot sources.
	// Zero means DefaultGraceRuns.
	GraceRuns int

	// RateLimit is the per-source request rate in requests/second.
	// Zero means the connector family default.
	RateLimit float64

	// PageSize overrides the family's default page size when non-zero.
	PageSize int

	// APIToken is an optional bearer token for authenticated endpoints.
	APIToken string
}

// EffectiveGraceRuns returns the configured grace period or the default.
func (s *Source) EffectiveGraceRuns() int {
	if s.GraceRuns > 0 {
		return s.GraceRuns
	}
	return DefaultGraceRuns
}
