package core

import (
	"regexp"
	"strconv"
	"strings"
)

// versionSuffix matches a trailing arXiv-style revision marker, e.g. "v2" in
// "2501.12345v2".
var versionSuffix = regexp.MustCompile(`v(\d+)$`)

// NormalizeID reduces a paper ID to its canonical comparison form: lowercase,
// source prefix (everything up to the first ':') stripped, trailing version
// suffix stripped. Two records describing the same logical paper normalize to
// the same string regardless of feed, revision or case. Raw IDs, version
// included, remain the key for permanent dedup.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

// ParseVersion extracts the revision number from an ID's trailing version
// suffix. IDs without a suffix are version 1.
func ParseVersion(id string) int {
	m := versionSuffix.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return 1
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 1 {
		return 1
	}
	return v
}
