// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RecordStatus tracks where a record sits in the ingestion pipeline.
type RecordStatus string

const (
	// StatusMetadataOnly marks a freshly ingested candidate that has not
	// been scored yet.
	StatusMetadataOnly RecordStatus = "metadata_only"

	// StatusScored marks a record with a computed relevance score.
	StatusScored RecordStatus = "scored"

	// StatusMergedAway marks a record consumed by duplicate resolution.
	// Its data lives on in the surviving record.
	StatusMergedAway RecordStatus = "merged_away"

	// StatusFetched marks a record whose artifact was retrieved and
	// persisted with complete provenance.
	StatusFetched RecordStatus = "fetched"

	// StatusFetchFailed marks a record whose candidate URLs are exhausted.
	StatusFetchFailed RecordStatus = "fetch_failed"
)

// Record is a document candidate flowing through the pipeline.
//
// The normalized fields (Identifier, TitleNorm, VenueNorm, AuthorsNorm) are
// the only values ever used for matching; the raw fields are preserved for
// display and export.
type Record struct {
	// ID is the surrogate key assigned by the repository on first insert.
	ID int64 `json:"id" yaml:"id"`

	// Identifier is the normalized persistent identifier (DOI-like),
	// empty when the source supplied none. Unique across records whose
	// status is not merged_away.
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`

	// Title, Venue, and Authors are the raw fields as supplied by the
	// discovery source.
	Title   string   `json:"title,omitempty" yaml:"title,omitempty"`
	Venue   string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// TitleNorm, VenueNorm, and AuthorsNorm are the canonicalized forms
	// used for matching and scoring.
	TitleNorm   string   `json:"title_norm,omitempty" yaml:"title_norm,omitempty"`
	VenueNorm   string   `json:"venue_norm,omitempty" yaml:"venue_norm,omitempty"`
	AuthorsNorm []string `json:"authors_norm,omitempty" yaml:"authors_norm,omitempty"`

	// Abstract is the candidate abstract, when the source supplies one.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Year is the publication year, 0 when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Source names the discovery collaborator that produced the record
	// (e.g. "openalex", "crossref", "seedpage").
	Source string `json:"source" yaml:"source"`

	// RelevanceScore is nil until the record is scored. Recomputed, not
	// accumulated, on each scoring pass.
	RelevanceScore *float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`

	// KeywordsFound lists the configured keywords that matched during the
	// last scoring pass, sorted, for explainability.
	KeywordsFound []string `json:"keywords_found,omitempty" yaml:"keywords_found,omitempty"`

	// OACandidateURLs is the ordered retrieval URL list, most
	// authoritative first.
	OACandidateURLs []string `json:"oa_candidate_urls,omitempty" yaml:"oa_candidate_urls,omitempty"`

	// Artifact is nil until a fetch succeeds.
	Artifact *Provenance `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	// FetchAttempts counts HTTP attempts made across all fetch runs.
	FetchAttempts int `json:"fetch_attempts,omitempty" yaml:"fetch_attempts,omitempty"`

	// LastError records the most recent fetch failure, enough to resume
	// without re-deriving context.
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`

	// Status is the pipeline state of the record.
	Status RecordStatus `json:"status" yaml:"status"`
}

// Scored reports whether the record carries a relevance score.
func (r *Record) Scored() bool {
	return r.RelevanceScore != nil
}

// Provenance records how and when an artifact was retrieved and verified.
// A record is never in StatusFetched without a complete Provenance, and
// never gains one without the status flip; the repository commits both as
// one unit.
type Provenance struct {
	// ContentHash is the hex SHA-256 digest of the raw retrieved bytes,
	// computed before any persistence decision.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// ByteSize is the artifact size in bytes.
	ByteSize int64 `json:"byte_size" yaml:"byte_size"`

	// MIMEType is the Content-Type reported by the serving host.
	MIMEType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`

	// HTTPStatus is the status code of the successful response.
	HTTPStatus int `json:"http_status" yaml:"http_status"`

	// RetrievedAt is the completion time of the successful download.
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`

	// SourceURL is the candidate URL that succeeded.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// StorageRef addresses the stored bytes in the artifact store.
	StorageRef string `json:"storage_ref" yaml:"storage_ref"`
}

// RawCandidate is a candidate metadata record as yielded by a discovery
// collaborator, before normalization.
type RawCandidate struct {
	Identifier string
	Title      string
	Venue      string
	Authors    []string
	Abstract   string
	Year       int
	Source     string

	// OAPDFURL is an explicit open-access PDF URL when the source knows
	// one; it ranks first among candidate URLs.
	OAPDFURL string

	// LandingURL is the landing or host page, the fallback candidate URL.
	LandingURL string
}
