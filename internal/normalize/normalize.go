// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize canonicalizes raw candidate metadata into the forms
// used for matching and scoring. All functions are pure: no I/O, and
// malformed input degrades to empty fields rather than erroring.
package normalize

import (
	"strings"
	"unicode"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// identifierPrefixes lists URL and scheme variants stripped from
// persistent identifiers so equivalent identifiers compare equal.
var identifierPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// Fields holds the canonical forms of a candidate's matching fields.
type Fields struct {
	Identifier string
	Title      string
	Venue      string
	Authors    []string
}

// Candidate returns the canonical fields for a raw candidate.
func Candidate(raw types.RawCandidate) Fields {
	return Fields{
		Identifier: Identifier(raw.Identifier),
		Title:      Title(raw.Title),
		Venue:      Title(raw.Venue),
		Authors:    Authors(raw.Authors),
	}
}

// Identifier lower-cases an identifier and strips URL-prefix and
// whitespace variants. "https://doi.org/10.1/ABC " and "10.1/abc" yield
// the same value.
func Identifier(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range identifierPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = id[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(id)
}

// Title lower-cases, strips punctuation, and collapses whitespace. Venues
// use the same canonical form.
func Title(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Authors normalizes whitespace within each name, preserving order.
// Blank entries are dropped.
func Authors(authors []string) []string {
	var out []string
	for _, a := range authors {
		name := strings.Join(strings.Fields(a), " ")
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
