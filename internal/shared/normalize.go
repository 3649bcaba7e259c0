package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// NormalizeFilename returns the comparison key for a file name: lowercased, with every
// run of non-alphanumeric characters collapsed into a single underscore.
//
// Two names that only differ by punctuation, spacing or case map to the same key, so a
// display name and its filesystem-safe rendition compare equal.
func NormalizeFilename(name string) string {
	var b strings.Builder
	sep := false
	for _, r := range lower.String(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			sep = false
			continue
		}
		if !sep {
			b.WriteByte('_')
			sep = true
		}
	}
	return b.String()
}

// SafeFilename replaces characters that are not allowed in file names on common
// filesystems and trims leading/trailing dots and spaces.
func SafeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)

	name = strings.Trim(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}
