// Package rights classifies licence URIs and rights statements into the
// shared public-domain, licence and rights-statement fields. All source
// normalisers funnel their rights metadata through here so the catalogue
// stays comparable across museums.
package rights

import "strings"

// Classification is the canonical reading of one rights marker.
type Classification struct {
	// IsPublicDomain reports whether the work itself is free of copyright.
	IsPublicDomain bool

	// License is a short licence label (CC0, CC BY, Public Domain Mark).
	// Empty when the marker is a restriction rather than a licence.
	License string

	// RightsStatement is the normalised statement text or URI label.
	RightsStatement string
}

// Known licence and rights-statement URI fragments. Matching is on
// fragments because museums publish these with and without scheme, trailing
// slashes and version suffixes.
const (
	cc0Fragment       = "creativecommons.org/publicdomain/zero"
	pdMarkFragment    = "creativecommons.org/publicdomain/mark"
	ccByFragment      = "creativecommons.org/licenses/by"
	inCopyright       = "rightsstatements.org/vocab/InC"
	noCopyrightUS     = "rightsstatements.org/vocab/NoC-US"
	noCopyrightOther  = "rightsstatements.org/vocab/NoC-OKLR"
	copyrightNotEval  = "rightsstatements.org/vocab/CNE"
	undeterminedRight = "rightsstatements.org/vocab/UND"
)

// Classify maps a licence URI or free-text rights marker to a
// classification. Unrecognised input is passed through as the rights
// statement with no public-domain claim.
func Classify(marker string) Classification {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return Classification{}
	}
	lower := strings.ToLower(marker)

	switch {
	case strings.Contains(lower, cc0Fragment):
		return Classification{IsPublicDomain: true, License: "CC0", RightsStatement: marker}
	case strings.Contains(lower, pdMarkFragment):
		return Classification{IsPublicDomain: true, License: "Public Domain Mark", RightsStatement: marker}
	case strings.Contains(lower, strings.ToLower(noCopyrightUS)),
		strings.Contains(lower, strings.ToLower(noCopyrightOther)):
		return Classification{IsPublicDomain: true, RightsStatement: marker}
	case strings.Contains(lower, ccByFragment):
		return Classification{License: ccByLabel(lower), RightsStatement: marker}
	case strings.Contains(lower, strings.ToLower(inCopyright)):
		return Classification{RightsStatement: marker}
	case strings.Contains(lower, strings.ToLower(copyrightNotEval)),
		strings.Contains(lower, strings.ToLower(undeterminedRight)):
		return Classification{RightsStatement: marker}
	}

	// Free-text markers.
	switch {
	case strings.Contains(lower, "public domain"), lower == "cc0":
		return Classification{IsPublicDomain: true, RightsStatement: marker}
	case strings.Contains(lower, "no known copyright"):
		return Classification{IsPublicDomain: true, RightsStatement: marker}
	}
	return Classification{RightsStatement: marker}
}

// ccByLabel distinguishes the CC BY variants by their URI path.
func ccByLabel(lower string) string {
	switch {
	case strings.Contains(lower, "/by-nc-nd"):
		return "CC BY-NC-ND"
	case strings.Contains(lower, "/by-nc-sa"):
		return "CC BY-NC-SA"
	case strings.Contains(lower, "/by-nc"):
		return "CC BY-NC"
	case strings.Contains(lower, "/by-nd"):
		return "CC BY-ND"
	case strings.Contains(lower, "/by-sa"):
		return "CC BY-SA"
	default:
		return "CC BY"
	}
}
