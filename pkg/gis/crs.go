package gis

import (
	"regexp"
	"strings"
)

var authorityRe = regexp.MustCompile(`AUTHORITY\[\s*"([A-Za-z0-9_]+)"\s*,\s*"?(\d+)"?\s*\]`)

// AuthorityCode extracts the top-level authority identifier from a CRS
// definition, normalized to the "EPSG:4326" form. The last AUTHORITY node in
// a WKT string belongs to the outermost object, so the final match wins.
// Definitions that already look like "EPSG:4326" are normalized and returned.
// Returns an empty string when no authority can be determined.
func AuthorityCode(def string) string {
	def = strings.TrimSpace(def)
	if def == "" {
		return ""
	}

	if idx := strings.IndexByte(def, ':'); idx > 0 && !strings.ContainsAny(def, "[(") {
		auth := strings.ToUpper(strings.TrimSpace(def[:idx]))
		code := strings.TrimSpace(def[idx+1:])
		if auth != "" && code != "" {
			return auth + ":" + code
		}
	}

	matches := authorityRe.FindAllStringSubmatch(def, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1]
	return strings.ToUpper(last[1]) + ":" + last[2]
}

// SameCRS reports whether two CRS definitions refer to the same reference
// system. Definitions resolving to an authority code are compared by code;
// otherwise the raw strings are compared after whitespace normalization.
// Two empty definitions compare equal.
func SameCRS(a, b string) bool {
	ca, cb := AuthorityCode(a), AuthorityCode(b)
	if ca != "" && cb != "" {
		return ca == cb
	}
	return normalizeWKT(a) == normalizeWKT(b)
}

func normalizeWKT(s string) string {
	return strings.Join(strings.Fields(s), "")
}
