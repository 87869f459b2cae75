// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score computes topical relevance scores for candidate records
// from a configured keyword set. Scoring is deterministic and idempotent:
// the same record and configuration always produce the same score.
package score

import (
	"sort"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Default field weights. Title matches dominate abstract matches.
const (
	DefaultTitleWeight    = 0.8
	DefaultAbstractWeight = 0.2
)

// Scorer matches record text against a configured keyword set. Single-word
// keywords match unigrams; two-word keywords match adjacent-word bigrams.
type Scorer struct {
	unigrams  map[string]string // normalized token → original keyword
	bigrams   map[string]string
	titleW    float64
	abstractW float64
}

// New builds a Scorer from cfg. Zero weights fall back to the defaults.
// An empty keyword list is valid and scores everything 0.0.
func New(cfg types.ScoringConfig) *Scorer {
	s := &Scorer{
		unigrams:  make(map[string]string),
		bigrams:   make(map[string]string),
		titleW:    cfg.TitleWeight,
		abstractW: cfg.AbstractWeight,
	}
	if s.titleW == 0 && s.abstractW == 0 {
		s.titleW = DefaultTitleWeight
		s.abstractW = DefaultAbstractWeight
	}
	for _, kw := range cfg.Keywords {
		tokens := tokenize(kw)
		switch len(tokens) {
		case 0:
		case 1:
			s.unigrams[tokens[0]] = kw
		default:
			// Longer phrases match on their adjacent-word pairs.
			for i := 0; i+1 < len(tokens); i++ {
				s.bigrams[tokens[i]+" "+tokens[i+1]] = kw
			}
		}
	}
	return s
}

// Score returns the relevance of a record in [0, 1] together with the
// sorted list of configured keywords that matched, for explainability.
func (s *Scorer) Score(rec *types.Record) (float64, []string) {
	titleHits, titleFound := s.matches(rec.TitleNorm)
	abstractHits, abstractFound := s.matches(normalize.Title(rec.Abstract))

	combined := s.titleW*saturate(titleHits) + s.abstractW*saturate(abstractHits)
	if combined > 1 {
		combined = 1
	}

	found := make(map[string]struct{})
	for _, k := range titleFound {
		found[k] = struct{}{}
	}
	for _, k := range abstractFound {
		found[k] = struct{}{}
	}
	keywords := make([]string, 0, len(found))
	for k := range found {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return combined, keywords
}

// matches counts unigram and bigram hits in normalized text and returns the
// originating keywords.
func (s *Scorer) matches(text string) (int, []string) {
	if text == "" || (len(s.unigrams) == 0 && len(s.bigrams) == 0) {
		return 0, nil
	}
	tokens := strings.Fields(text)
	hits := 0
	var found []string
	for _, tok := range tokens {
		if kw, ok := s.unigrams[tok]; ok {
			hits++
			found = append(found, kw)
		}
	}
	for i := 0; i+1 < len(tokens); i++ {
		if kw, ok := s.bigrams[tokens[i]+" "+tokens[i+1]]; ok {
			hits++
			found = append(found, kw)
		}
	}
	return hits, found
}

// saturate maps a hit count to [0, 1) without external calibration:
// 0 → 0, 1 → 0.5, 2 → 0.667, monotone and bounded.
func saturate(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	h := float64(hits)
	return h / (h + 1)
}

// tokenize lower-cases, strips punctuation, and splits on whitespace.
func tokenize(s string) []string {
	return strings.Fields(normalize.Title(s))
}
