// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// crossrefWorksBase is the Crossref Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefWorksBase = "https://api.crossref.org/works"

// CrossrefSource discovers candidates from the Crossref Works API.
type CrossrefSource struct {
	Client *http.Client

	// APIToken, when set, is sent as a Crossref Plus token for the higher
	// rate tier.
	APIToken string
}

func (s *CrossrefSource) Name() string { return "crossref" }

// Discover queries Crossref with the configured keywords and maps each
// work to a raw candidate.
func (s *CrossrefSource) Discover(ctx context.Context, cfg types.DiscoveryConfig) ([]types.RawCandidate, error) {
	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("no discovery keywords configured")
	}

	rows := cfg.MaxRecords
	if rows <= 0 {
		rows = 25
	}
	if rows > 1000 {
		rows = 1000
	}

	params := url.Values{
		"query.bibliographic": {strings.Join(cfg.Keywords, " ")},
		"rows":                {fmt.Sprintf("%d", rows)},
	}
	if cfg.YearFrom > 0 {
		params.Set("filter", fmt.Sprintf("from-pub-date:%d-01-01", cfg.YearFrom))
	}
	if cfg.ContactEmail != "" {
		params.Set("mailto", cfg.ContactEmail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefWorksBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if s.APIToken != "" {
		req.Header.Set("Crossref-Plus-API-Token", "Bearer "+s.APIToken)
	}

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("Crossref request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Crossref returned HTTP %d", resp.StatusCode)
	}

	var body crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing Crossref response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(body.Message.Items))
	for _, item := range body.Message.Items {
		raw := types.RawCandidate{
			Identifier: item.DOI,
			Title:      first(item.Title),
			Venue:      first(item.ContainerTitle),
			Abstract:   stripMarkup(item.Abstract),
			Year:       item.year(),
			Source:     "crossref",
			LandingURL: item.URL,
		}
		for _, a := range item.Author {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name != "" {
				raw.Authors = append(raw.Authors, name)
			}
		}
		for _, link := range item.Link {
			if strings.Contains(link.ContentType, "pdf") {
				raw.OAPDFURL = link.URL
				break
			}
		}
		candidates = append(candidates, raw)
	}
	return candidates, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// stripMarkup removes the JATS tags Crossref embeds in abstracts.
func stripMarkup(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI            string           `json:"DOI"`
	Title          []string         `json:"title"`
	ContainerTitle []string         `json:"container-title"`
	Abstract       string           `json:"abstract"`
	URL            string           `json:"URL"`
	Author         []crossrefAuthor `json:"author"`
	Link           []crossrefLink   `json:"link"`
	Issued         crossrefDate     `json:"issued"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefLink struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (w crossrefWork) year() int {
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		return w.Issued.DateParts[0][0]
	}
	return 0
}
