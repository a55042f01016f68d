package label

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const stripSet = "\n\t "

// asciiPunctuation is the set removed from section keys.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// StripText trims newlines, tabs and spaces from both ends of s.
func StripText(s string) string {
	return strings.Trim(s, stripSet)
}

// JoinFragments strips each fragment, drops the empty ones and joins the rest
// with a single space.
func JoinFragments(frags []string) string {
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		if f = StripText(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// ASCIIOnly drops every rune outside 7-bit ASCII. Non-ASCII content is
// removed, not transliterated: "café" becomes "caf". Section bodies have
// always been rendered this way; metadata fields are not.
func ASCIIOnly(s string) string {
	t := runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII }))
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

// SectionKey turns a section title into its map key: the first
// space-separated token lower-cased, the rest title-cased, joined without a
// separator, with ASCII punctuation removed.
//
//	"INDICATIONS & USAGE" -> "indicationsUsage"
//	"PACKAGE LABEL.PRINCIPAL DISPLAY PANEL" -> "packageLabelPrincipalDisplayPanel"
func SectionKey(title string) string {
	tokens := strings.Split(title, " ")

	var b strings.Builder
	for i, tok := range tokens {
		if i == 0 {
			b.WriteString(strings.ToLower(tok))
			continue
		}
		b.WriteString(titleToken(tok))
	}

	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, b.String())
}

// titleToken upper-cases every cased letter that follows an uncased rune and
// lower-cases the others, so "LABEL.PRINCIPAL" becomes "Label.Principal" and
// "PATIENT'S" becomes "Patient'S".
func titleToken(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	prevCased := false
	for _, r := range tok {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && prevCased:
			b.WriteRune(unicode.ToLower(r))
		case cased:
			b.WriteRune(unicode.ToTitle(r))
		default:
			b.WriteRune(r)
		}
		prevCased = cased
	}
	return b.String()
}
