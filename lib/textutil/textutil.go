package textutil

import (
	"regexp"
	"strings"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

// NormalizeKey canonicalizes a dictionary natural key (mechanic, category,
// designer or publisher name) before lookup so that upstream variations in
// casing and whitespace never create duplicate dictionary rows.
// Inner whitespace collapses to a single space since these names are
// multi-word display values ("Worker Placement").
func NormalizeKey(name string) string {
	name = strings.Trim(name, " \n\t")
	name = innerWhitespace.ReplaceAllString(name, " ")
	return strings.ToLower(name)
}

// CleanName trims and collapses whitespace but preserves the original casing,
// for the display form stored alongside the normalized key.
func CleanName(name string) string {
	name = strings.Trim(name, " \n\t")
	return innerWhitespace.ReplaceAllString(name, " ")
}
