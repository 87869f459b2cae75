// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// openAlexWorksBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexWorksBase = "https://api.openalex.org/works"

// OpenAlexSource discovers candidates from the OpenAlex Works API.
type OpenAlexSource struct {
	Client *http.Client
}

func (s *OpenAlexSource) Name() string { return "openalex" }

// Discover queries OpenAlex with the configured keywords and maps each
// work to a raw candidate.
func (s *OpenAlexSource) Discover(ctx context.Context, cfg types.DiscoveryConfig) ([]types.RawCandidate, error) {
	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("no discovery keywords configured")
	}

	perPage := cfg.MaxRecords
	if perPage <= 0 {
		perPage = 25
	}
	if perPage > 200 {
		perPage = 200
	}

	params := url.Values{
		"search":   {strings.Join(cfg.Keywords, " ")},
		"per_page": {fmt.Sprintf("%d", perPage)},
	}
	if cfg.YearFrom > 0 {
		params.Set("filter", fmt.Sprintf("from_publication_date:%d-01-01", cfg.YearFrom))
	}
	if cfg.ContactEmail != "" {
		// Polite pool access.
		params.Set("mailto", cfg.ContactEmail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexWorksBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex returned HTTP %d", resp.StatusCode)
	}

	var body openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(body.Results))
	for _, work := range body.Results {
		raw := types.RawCandidate{
			Identifier: work.DOI,
			Title:      work.Title,
			Venue:      work.PrimaryLocation.Source.DisplayName,
			Abstract:   reconstructAbstract(work.AbstractInvertedIndex),
			Year:       work.PublicationYear,
			Source:     "openalex",
			LandingURL: work.PrimaryLocation.LandingPageURL,
		}
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				raw.Authors = append(raw.Authors, a.Author.DisplayName)
			}
		}
		if work.BestOALocation.PDFURL != "" {
			raw.OAPDFURL = work.BestOALocation.PDFURL
		} else if work.OpenAccess.OAURL != "" {
			raw.OAPDFURL = work.OpenAccess.OAURL
		}
		candidates = append(candidates, raw)
	}
	return candidates, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where it
// appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
	BestOALocation        openAlexLocation     `json:"best_oa_location"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
	Source         struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}
