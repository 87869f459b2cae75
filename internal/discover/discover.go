// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discover pulls candidate metadata from configured sources,
// normalizes it, and inserts new records into the repository. Candidates
// whose identifier or normalized title already exists are skipped, so
// repeated discovery runs converge instead of accumulating duplicates.
package discover

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/corpus-engine/internal/normalize"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// doiResolverBase is the DOI content-negotiation endpoint, ranked between
// an explicit open-access PDF URL and the landing page.
var doiResolverBase = "https://doi.org"

// Source yields raw candidates from one upstream collaborator.
type Source interface {
	Name() string
	Discover(ctx context.Context, cfg types.DiscoveryConfig) ([]types.RawCandidate, error)
}

// Repository is the narrow store contract discovery depends on.
type Repository interface {
	HasIdentifier(ctx context.Context, identifier string) (bool, error)
	HasTitleNorm(ctx context.Context, titleNorm string) (bool, error)
	InsertCandidate(ctx context.Context, rec *types.Record) error
}

// Runner ingests candidates from a set of sources.
type Runner struct {
	repo    Repository
	sources []Source
	cfg     types.DiscoveryConfig
	logger  zerolog.Logger
}

func NewRunner(repo Repository, sources []Source, cfg types.DiscoveryConfig, logger zerolog.Logger) *Runner {
	return &Runner{repo: repo, sources: sources, cfg: cfg, logger: logger}
}

// Run queries each source in turn and inserts the candidates it does not
// already hold. A failing source is logged and the remaining sources still
// run; per-candidate insert failures are tallied, not fatal.
func (r *Runner) Run(ctx context.Context) (types.DiscoverReport, error) {
	report := types.DiscoverReport{RunID: uuid.NewString()}

	for _, src := range r.sources {
		raws, err := src.Discover(ctx, r.cfg)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			r.logger.Warn().Err(err).Str("source", src.Name()).Msg("discovery source failed")
			continue
		}
		for _, raw := range raws {
			if err := r.ingest(ctx, raw, &report); err != nil {
				r.logger.Warn().Err(err).Str("source", src.Name()).Str("title", raw.Title).Msg("candidate rejected")
				report.Failed++
			}
		}
		r.logger.Info().Str("source", src.Name()).Int("candidates", len(raws)).Msg("source drained")
	}
	return report, nil
}

// ingest normalizes one candidate and inserts it unless an equivalent
// record already exists.
func (r *Runner) ingest(ctx context.Context, raw types.RawCandidate, report *types.DiscoverReport) error {
	fields := normalize.Candidate(raw)
	if fields.Title == "" {
		return fmt.Errorf("candidate without a usable title")
	}
	if r.cfg.YearFrom > 0 && raw.Year > 0 && raw.Year < r.cfg.YearFrom {
		report.Skipped++
		return nil
	}

	if fields.Identifier != "" {
		known, err := r.repo.HasIdentifier(ctx, fields.Identifier)
		if err != nil {
			return fmt.Errorf("checking identifier: %w", err)
		}
		if known {
			report.Skipped++
			return nil
		}
	} else {
		known, err := r.repo.HasTitleNorm(ctx, fields.Title)
		if err != nil {
			return fmt.Errorf("checking title: %w", err)
		}
		if known {
			report.Skipped++
			return nil
		}
	}

	rec := &types.Record{
		Identifier:      fields.Identifier,
		Title:           strings.TrimSpace(raw.Title),
		Venue:           strings.TrimSpace(raw.Venue),
		Authors:         raw.Authors,
		TitleNorm:       fields.Title,
		VenueNorm:       fields.Venue,
		AuthorsNorm:     fields.Authors,
		Abstract:        strings.TrimSpace(raw.Abstract),
		Year:            raw.Year,
		Source:          raw.Source,
		OACandidateURLs: candidateURLs(raw, fields.Identifier),
		Status:          types.StatusMetadataOnly,
	}
	if err := r.repo.InsertCandidate(ctx, rec); err != nil {
		return fmt.Errorf("inserting candidate: %w", err)
	}
	report.Inserted++
	return nil
}

// candidateURLs assembles the ordered retrieval list: an explicit
// open-access PDF first, then DOI content negotiation, then the landing
// page. Duplicates and blanks are dropped.
func candidateURLs(raw types.RawCandidate, identifier string) []string {
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		for _, seen := range urls {
			if seen == u {
				return
			}
		}
		urls = append(urls, u)
	}

	add(raw.OAPDFURL)
	if isDOI(identifier) {
		add(doiResolverBase + "/" + identifier)
	}
	add(raw.LandingURL)
	return urls
}

// isDOI reports whether a normalized identifier is a resolvable DOI.
func isDOI(identifier string) bool {
	return strings.HasPrefix(identifier, "10.") && strings.Contains(identifier, "/")
}
