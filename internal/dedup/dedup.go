// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup groups records by identity key, picks one survivor per
// group, and merges the rest away. Resolution is deterministic: the
// survivor choice is a total order, so repeated runs over a stable working
// set produce identical results, and a second run produces no state change.
package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Repository is the narrow store contract the resolver depends on.
type Repository interface {
	// ListEligibleForDedup returns all non-merged_away records ordered by
	// id ascending.
	ListEligibleForDedup(ctx context.Context) ([]*types.Record, error)

	// ApplyMerge persists the survivor's merged fields and transitions
	// mergedIDs to merged_away in a single transaction. Rows are never
	// physically deleted here; that is a separate maintenance step.
	ApplyMerge(ctx context.Context, survivor *types.Record, mergedIDs []int64) error
}

// Resolver resolves duplicate records under a configured source-trust table.
type Resolver struct {
	repo   Repository
	rank   map[string]int
	logger zerolog.Logger
}

// New returns a Resolver. SourceRank may be nil, in which case all sources
// rank equally and ties fall through to the id tie-break.
func New(repo Repository, cfg types.DedupConfig, logger zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, rank: cfg.SourceRank, logger: logger}
}

// group is an ephemeral merge group: records sharing an identity key.
// Groups are built at the start of a run and discarded when it ends.
type group struct {
	key     string
	records []*types.Record
}

// Run partitions the working set into merge groups, resolves each, and
// returns a report. Groups whose members carry distinct non-empty
// identifiers are skipped and reported as conflicts, never auto-merged.
// A repository failure on one group does not abort the others.
func (r *Resolver) Run(ctx context.Context) (types.MergeReport, error) {
	report := types.MergeReport{RunID: uuid.NewString()}

	records, err := r.repo.ListEligibleForDedup(ctx)
	if err != nil {
		return report, fmt.Errorf("listing records for dedup: %w", err)
	}

	// Identifier groups first: an exact identifier match is the strongest
	// identity signal. Members of an identifier group are settled by that
	// pass and do not re-enter title grouping in the same run.
	handled := make(map[int64]bool)
	for _, g := range groupByIdentifier(records) {
		for _, rec := range g.records {
			handled[rec.ID] = true
		}
		if err := r.resolveGroup(ctx, g, &report); err != nil {
			r.logger.Error().Err(err).Str("key", g.key).Msg("merge group failed")
			report.Failed++
		}
	}

	remaining := make([]*types.Record, 0, len(records))
	for _, rec := range records {
		if !handled[rec.ID] {
			remaining = append(remaining, rec)
		}
	}
	for _, g := range groupByTitle(remaining) {
		ids, conflict := identifierConflict(g.records)
		if conflict {
			c := types.IdentityConflict{TitleNorm: g.key, Identifiers: ids}
			for _, rec := range g.records {
				c.RecordIDs = append(c.RecordIDs, rec.ID)
			}
			report.Conflicts = append(report.Conflicts, c)
			r.logger.Warn().
				Str("title", g.key).
				Strs("identifiers", ids).
				Msg("identifier conflict, group skipped")
			continue
		}
		if err := r.resolveGroup(ctx, g, &report); err != nil {
			r.logger.Error().Err(err).Str("key", g.key).Msg("merge group failed")
			report.Failed++
		}
	}

	return report, nil
}

// resolveGroup picks the survivor, migrates missing fields from the losers,
// and persists the merge.
func (r *Resolver) resolveGroup(ctx context.Context, g group, report *types.MergeReport) error {
	if len(g.records) < 2 {
		return nil
	}
	report.Groups++

	ordered := make([]*types.Record, len(g.records))
	copy(ordered, g.records)
	sort.Slice(ordered, func(i, j int) bool {
		return r.compare(ordered[i], ordered[j]) > 0
	})

	survivor := ordered[0]
	var mergedIDs []int64
	for _, loser := range ordered[1:] {
		fillMissing(survivor, loser)
		mergedIDs = append(mergedIDs, loser.ID)
	}

	if err := r.repo.ApplyMerge(ctx, survivor, mergedIDs); err != nil {
		return fmt.Errorf("applying merge for record %d: %w", survivor.ID, err)
	}
	report.MergedAway += len(mergedIDs)
	r.logger.Info().
		Int64("survivor", survivor.ID).
		Ints64("merged", mergedIDs).
		Msg("merge group resolved")
	return nil
}

// compare is the total order over survivor-selection criteria. It returns
// >0 when a should survive over b. Criteria, in precedence order: already
// fetched, richer metadata, higher source trust, lower id. The final id
// tie-break makes the order total, so resolution is reproducible.
func (r *Resolver) compare(a, b *types.Record) int {
	if c := boolCmp(a.Status == types.StatusFetched, b.Status == types.StatusFetched); c != 0 {
		return c
	}
	if c := richness(a) - richness(b); c != 0 {
		return c
	}
	if c := r.rank[a.Source] - r.rank[b.Source]; c != 0 {
		return c
	}
	// Earliest discovered wins.
	if a.ID < b.ID {
		return 1
	}
	if a.ID > b.ID {
		return -1
	}
	return 0
}

// richness counts non-empty core metadata fields.
func richness(rec *types.Record) int {
	n := 0
	if rec.Identifier != "" {
		n++
	}
	if rec.TitleNorm != "" {
		n++
	}
	if rec.VenueNorm != "" {
		n++
	}
	if len(rec.AuthorsNorm) > 0 {
		n++
	}
	if rec.Abstract != "" {
		n++
	}
	if rec.Year != 0 {
		n++
	}
	if len(rec.OACandidateURLs) > 0 {
		n++
	}
	return n
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// fillMissing migrates loser data onto the survivor only where the
// survivor lacks it. Artifact pointers move the same way, and a survivor
// gaining an artifact is promoted to fetched so provenance and status stay
// a single unit.
func fillMissing(survivor, loser *types.Record) {
	if survivor.Identifier == "" && loser.Identifier != "" {
		survivor.Identifier = loser.Identifier
	}
	if survivor.TitleNorm == "" && loser.TitleNorm != "" {
		survivor.Title = loser.Title
		survivor.TitleNorm = loser.TitleNorm
	}
	if survivor.VenueNorm == "" && loser.VenueNorm != "" {
		survivor.Venue = loser.Venue
		survivor.VenueNorm = loser.VenueNorm
	}
	if len(survivor.AuthorsNorm) == 0 && len(loser.AuthorsNorm) > 0 {
		survivor.Authors = loser.Authors
		survivor.AuthorsNorm = loser.AuthorsNorm
	}
	if survivor.Abstract == "" && loser.Abstract != "" {
		survivor.Abstract = loser.Abstract
	}
	if survivor.Year == 0 && loser.Year != 0 {
		survivor.Year = loser.Year
	}
	if len(survivor.OACandidateURLs) == 0 && len(loser.OACandidateURLs) > 0 {
		survivor.OACandidateURLs = loser.OACandidateURLs
	}
	if survivor.Artifact == nil && loser.Artifact != nil {
		survivor.Artifact = loser.Artifact
		if survivor.Status != types.StatusFetched {
			survivor.Status = types.StatusFetched
		}
	}
}

// groupByIdentifier partitions records with a non-empty identifier.
// Iteration order is made deterministic by sorting group keys.
func groupByIdentifier(records []*types.Record) []group {
	byID := make(map[string][]*types.Record)
	for _, rec := range records {
		if rec.Identifier != "" {
			byID[rec.Identifier] = append(byID[rec.Identifier], rec)
		}
	}
	return sortedGroups(byID)
}

// groupByTitle partitions records by normalized title and compatible venue.
// Venues are compatible when equal or when one side is empty. When a title
// set spans two or more distinct non-empty venues, records are grouped per
// venue and venue-less records are left alone: under-merging is preferred
// over a wrong merge.
func groupByTitle(records []*types.Record) []group {
	byTitle := make(map[string][]*types.Record)
	for _, rec := range records {
		if rec.TitleNorm != "" {
			byTitle[rec.TitleNorm] = append(byTitle[rec.TitleNorm], rec)
		}
	}

	out := make(map[string][]*types.Record)
	for title, recs := range byTitle {
		venues := distinctVenues(recs)
		switch {
		case len(venues) <= 1:
			out[title] = recs
		default:
			for _, rec := range recs {
				if rec.VenueNorm == "" {
					continue
				}
				key := title + "\x00" + rec.VenueNorm
				out[key] = append(out[key], rec)
			}
		}
	}
	return sortedGroups(out)
}

func distinctVenues(records []*types.Record) []string {
	seen := make(map[string]bool)
	var venues []string
	for _, rec := range records {
		if rec.VenueNorm != "" && !seen[rec.VenueNorm] {
			seen[rec.VenueNorm] = true
			venues = append(venues, rec.VenueNorm)
		}
	}
	return venues
}

// identifierConflict reports whether a group carries two or more distinct
// non-empty identifiers, a hard signal the records are distinct documents.
func identifierConflict(records []*types.Record) ([]string, bool) {
	seen := make(map[string]bool)
	var ids []string
	for _, rec := range records {
		if rec.Identifier != "" && !seen[rec.Identifier] {
			seen[rec.Identifier] = true
			ids = append(ids, rec.Identifier)
		}
	}
	sort.Strings(ids)
	return ids, len(ids) > 1
}

func sortedGroups(m map[string][]*types.Record) []group {
	keys := make([]string, 0, len(m))
	for k := range m {
		if len(m[k]) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	groups := make([]group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, group{key: k, records: m[k]})
	}
	return groups
}
