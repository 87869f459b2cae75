// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "corpus-engine/0.1 (mailto:ops@example.org)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DiscoveryConfig holds settings for the discovery ingestion stage.
type DiscoveryConfig struct {
	HTTPConfig `yaml:",inline"`

	// Keywords is the topic keyword list sent as the discovery query.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// MaxRecords bounds how many candidates each source yields per run.
	MaxRecords int `json:"max_records" yaml:"max_records"`

	// YearFrom filters out candidates published before this year (0 = no filter).
	YearFrom int `json:"year_from" yaml:"year_from"`

	// ContactEmail is sent to polite-pool APIs (OpenAlex mailto, Crossref).
	ContactEmail string `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`

	// SeedPages lists HTML listing pages to harvest as candidates.
	SeedPages []string `json:"seed_pages,omitempty" yaml:"seed_pages,omitempty"`
}

// ScoringConfig holds settings for the relevance scoring stage.
type ScoringConfig struct {
	// Keywords is the ordered keyword/topic term list. Multi-word terms
	// match as adjacent-word bigrams.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// TitleWeight and AbstractWeight combine the per-field match
	// densities. Defaults: 0.8 title, 0.2 abstract.
	TitleWeight    float64 `json:"title_weight" yaml:"title_weight"`
	AbstractWeight float64 `json:"abstract_weight" yaml:"abstract_weight"`
}

// DedupConfig holds settings for the duplicate resolution stage.
type DedupConfig struct {
	// SourceRank maps source names to trust ranks; higher wins survivor
	// selection when fetch state and metadata richness tie.
	SourceRank map[string]int `json:"source_rank" yaml:"source_rank"`
}

// FetchConfig holds settings for the artifact fetch stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// RetryBudget is the number of attempts per candidate URL before
	// advancing to the next one (default 3).
	RetryBudget int `json:"retry_budget" yaml:"retry_budget"`

	// BackoffBase is the base delay for exponential backoff between
	// retries of the same URL (default 1s).
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base"`

	// HostInterval is the minimum spacing between requests to the same
	// host (default 1s).
	HostInterval time.Duration `json:"host_interval" yaml:"host_interval"`

	// JitterBound is the maximum random jitter added to pacing and
	// backoff delays (default 250ms).
	JitterBound time.Duration `json:"jitter_bound" yaml:"jitter_bound"`

	// Workers caps concurrent fetches across hosts (default 4). Per-host
	// pacing holds regardless of this value.
	Workers int `json:"workers" yaml:"workers"`

	// ArtifactsDir is the directory artifacts are written under.
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`
}

// ExportConfig holds settings for the export stage, consumed downstream of
// the core pipeline.
type ExportConfig struct {
	// MinScore filters out records scoring below this threshold.
	MinScore float64 `json:"min_score" yaml:"min_score"`

	// YearFrom filters out records published before this year (0 = no filter).
	YearFrom int `json:"year_from" yaml:"year_from"`
}

// StoreConfig holds settings for the repository.
type StoreConfig struct {
	// DBPath is the SQLite database file path.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Store     StoreConfig     `json:"store" yaml:"store"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Scoring   ScoringConfig   `json:"scoring" yaml:"scoring"`
	Dedup     DedupConfig     `json:"dedup" yaml:"dedup"`
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch"`
	Export    ExportConfig    `json:"export" yaml:"export"`
}
