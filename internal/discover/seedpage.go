// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// SeedPageSource harvests PDF links from configured HTML listing pages
// (workshop programs, lab publication lists). Link text becomes the
// candidate title; such candidates carry no identifier and rely on title
// matching for deduplication.
type SeedPageSource struct {
	Client *http.Client
}

func (s *SeedPageSource) Name() string { return "seedpage" }

// Discover fetches each seed page and extracts its PDF links. A page that
// fails to load is reported but does not abort the remaining pages.
func (s *SeedPageSource) Discover(ctx context.Context, cfg types.DiscoveryConfig) ([]types.RawCandidate, error) {
	var candidates []types.RawCandidate
	var firstErr error

	for _, page := range cfg.SeedPages {
		found, err := s.harvest(ctx, page, cfg)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("seed page %s: %w", page, err)
			}
			continue
		}
		candidates = append(candidates, found...)
		if cfg.MaxRecords > 0 && len(candidates) >= cfg.MaxRecords {
			candidates = candidates[:cfg.MaxRecords]
			break
		}
	}
	if len(candidates) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return candidates, nil
}

func (s *SeedPageSource) harvest(ctx context.Context, page string, cfg types.DiscoveryConfig) ([]types.RawCandidate, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	var candidates []types.RawCandidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !strings.HasSuffix(strings.ToLower(resolved.Path), ".pdf") {
			return
		}
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" {
			return
		}
		candidates = append(candidates, types.RawCandidate{
			Title:      title,
			Source:     "seedpage",
			OAPDFURL:   resolved.String(),
			LandingURL: page,
		})
	})
	return candidates, nil
}
