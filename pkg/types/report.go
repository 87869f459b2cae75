// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Run-level tallies are returned as values rather than kept as shared
// counters so that concurrent or repeated runs compose cleanly.

// DiscoverReport summarizes a discovery ingestion run.
type DiscoverReport struct {
	RunID    string
	Inserted int
	Skipped  int
	Failed   int
}

// Total returns the number of candidates processed.
func (r DiscoverReport) Total() int {
	return r.Inserted + r.Skipped + r.Failed
}

// ScoreReport summarizes a scoring pass.
type ScoreReport struct {
	RunID  string
	Scored int
	Failed int
}

// IdentityConflict describes a merge group the resolver refused to merge
// because its members carry distinct non-empty identifiers.
type IdentityConflict struct {
	TitleNorm   string
	RecordIDs   []int64
	Identifiers []string
}

// MergeReport summarizes a duplicate resolution run.
type MergeReport struct {
	RunID string

	// Groups is the number of merge groups of size > 1 examined.
	Groups int

	// MergedAway counts records transitioned to merged_away.
	MergedAway int

	// Conflicts lists groups skipped because identifiers disagreed.
	Conflicts []IdentityConflict

	// Failed counts groups whose repository write failed.
	Failed int
}

// HasConflicts reports whether any group was skipped for identifier conflicts.
func (r MergeReport) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// DuplicateArtifact flags two records whose fetched bytes hashed identically.
// The pair is reported for resolver attention, never merged automatically.
type DuplicateArtifact struct {
	RecordID    int64
	DuplicateOf int64
	ContentHash string
}

// FetchFailure records a per-record fetch failure with resume context.
type FetchFailure struct {
	RecordID int64
	URL      string
	Attempts int
	Err      string
}

// FetchReport summarizes an artifact fetch run.
type FetchReport struct {
	RunID string

	// Fetched counts records that gained an artifact this run.
	Fetched int

	// Failed counts records transitioned to fetch_failed.
	Failed int

	// Skipped counts eligible records not attempted (run limit reached).
	Skipped int

	// Attempts is the total number of HTTP attempts made.
	Attempts int

	// Duplicates lists cross-record identical-artifact pairs.
	Duplicates []DuplicateArtifact

	// Failures carries per-record failure detail.
	Failures []FetchFailure
}

// Total returns the number of records the run settled.
func (r FetchReport) Total() int {
	return r.Fetched + r.Failed
}

// HasFailures reports whether any record failed to fetch.
func (r FetchReport) HasFailures() bool {
	return r.Failed > 0
}
