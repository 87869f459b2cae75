// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the durable repository for candidate records and their
// artifact references, backed by SQLite. Each exported write method is a
// single logical transaction from the caller's perspective.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Store manages the records database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at cfg.DBPath, creating the
// schema and applying lightweight column migrations when needed.
func Open(cfg types.StoreConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identifier TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			venue TEXT NOT NULL DEFAULT '',
			authors TEXT NOT NULL DEFAULT '[]',
			title_norm TEXT NOT NULL DEFAULT '',
			venue_norm TEXT NOT NULL DEFAULT '',
			authors_norm TEXT NOT NULL DEFAULT '[]',
			abstract TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			relevance_score REAL,
			keywords_found TEXT NOT NULL DEFAULT '[]',
			oa_candidate_urls TEXT NOT NULL DEFAULT '[]',
			fetch_attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'metadata_only',
			content_hash TEXT NOT NULL DEFAULT '',
			byte_size INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT NOT NULL DEFAULT '',
			http_status INTEGER NOT NULL DEFAULT 0,
			retrieved_at TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			storage_ref TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_records_title_norm ON records(title_norm)`,
		`CREATE INDEX IF NOT EXISTS idx_records_content_hash ON records(content_hash)`,
		// A live identifier is unique: merged_away rows keep theirs for audit.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_records_identifier_live
			ON records(identifier) WHERE identifier != '' AND status != 'merged_away'`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// migrate adds columns introduced after the initial schema so older
// databases keep working.
func (s *Store) migrate() error {
	rows, err := s.db.Query(`PRAGMA table_info(records)`)
	if err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scanning table info: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	additions := map[string]string{
		"keywords_found": `ALTER TABLE records ADD COLUMN keywords_found TEXT NOT NULL DEFAULT '[]'`,
		"fetch_attempts": `ALTER TABLE records ADD COLUMN fetch_attempts INTEGER NOT NULL DEFAULT 0`,
		"last_error":     `ALTER TABLE records ADD COLUMN last_error TEXT NOT NULL DEFAULT ''`,
	}
	for col, stmt := range additions {
		if !names[col] {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("adding column %s: %w", col, err)
			}
		}
	}
	return nil
}

const recordColumns = `id, identifier, title, venue, authors,
	title_norm, venue_norm, authors_norm, abstract, year, source,
	relevance_score, keywords_found, oa_candidate_urls,
	fetch_attempts, last_error, status,
	content_hash, byte_size, mime_type, http_status, retrieved_at,
	source_url, storage_ref`

// InsertCandidate inserts a new record and assigns its surrogate id.
func (s *Store) InsertCandidate(ctx context.Context, rec *types.Record) error {
	if rec.Status == "" {
		rec.Status = types.StatusMetadataOnly
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (identifier, title, venue, authors,
			title_norm, venue_norm, authors_norm, abstract, year, source,
			oa_candidate_urls, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Identifier, rec.Title, rec.Venue, jsonList(rec.Authors),
		rec.TitleNorm, rec.VenueNorm, jsonList(rec.AuthorsNorm),
		rec.Abstract, rec.Year, rec.Source,
		jsonList(rec.OACandidateURLs), string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}
	rec.ID = id
	return nil
}

// HasIdentifier reports whether a live record already carries identifier.
func (s *Store) HasIdentifier(ctx context.Context, identifier string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM records
		 WHERE identifier = ? AND identifier != '' AND status != 'merged_away'`,
		identifier,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking identifier: %w", err)
	}
	return n > 0, nil
}

// HasTitleNorm reports whether a live record already carries the
// normalized title.
func (s *Store) HasTitleNorm(ctx context.Context, titleNorm string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM records
		 WHERE title_norm = ? AND title_norm != '' AND status != 'merged_away'`,
		titleNorm,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking title: %w", err)
	}
	return n > 0, nil
}

// ListEligibleForScoring returns all live records, by id ascending. The
// scorer recomputes every live record so configuration changes propagate.
func (s *Store) ListEligibleForScoring(ctx context.Context) ([]*types.Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM records
		WHERE status != 'merged_away' ORDER BY id ASC`)
}

// ListEligibleForDedup returns all live records, by id ascending.
func (s *Store) ListEligibleForDedup(ctx context.Context) ([]*types.Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM records
		WHERE status != 'merged_away' ORDER BY id ASC`)
}

// ListEligibleForFetch returns records awaiting artifact retrieval: scored
// or previously failed, with at least one candidate URL, by id ascending.
// Already fetched records are never returned, so re-running the fetch
// engine performs no network activity for them.
func (s *Store) ListEligibleForFetch(ctx context.Context, limit int) ([]*types.Record, error) {
	q := `SELECT ` + recordColumns + ` FROM records
		WHERE status IN ('scored', 'fetch_failed') AND oa_candidate_urls != '[]'
		ORDER BY id ASC`
	if limit > 0 {
		return s.list(ctx, q+` LIMIT ?`, limit)
	}
	return s.list(ctx, q)
}

// ListForExport returns all live records, by id ascending.
func (s *Store) ListForExport(ctx context.Context) ([]*types.Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM records
		WHERE status != 'merged_away' ORDER BY id ASC`)
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id int64) (*types.Record, error) {
	recs, err := s.list(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("record %d not found", id)
	}
	return recs[0], nil
}

// UpdateScore writes the recomputed relevance score and matched keywords,
// and promotes metadata_only to scored. Status is never regressed.
func (s *Store) UpdateScore(ctx context.Context, id int64, score float64, keywordsFound []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET relevance_score = ?, keywords_found = ?,
			status = CASE WHEN status = 'metadata_only' THEN 'scored' ELSE status END
		 WHERE id = ?`,
		score, jsonList(keywordsFound), id,
	)
	if err != nil {
		return fmt.Errorf("updating score for record %d: %w", id, err)
	}
	return nil
}

// ApplyMerge persists the survivor's merged fields and transitions the
// merged-away records in one transaction. Merged rows are kept for audit;
// physical deletion is PurgeMergedAway.
func (s *Store) ApplyMerge(ctx context.Context, survivor *types.Record, mergedIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback()

	// Release the losers' identifiers from the live-uniqueness index
	// before the survivor potentially adopts one of them.
	for _, id := range mergedIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET status = 'merged_away' WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("marking record %d merged_away: %w", id, err)
		}
	}

	prov := survivor.Artifact
	if prov == nil {
		prov = &types.Provenance{}
	}
	var score sql.NullFloat64
	if survivor.RelevanceScore != nil {
		score = sql.NullFloat64{Float64: *survivor.RelevanceScore, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET identifier = ?, title = ?, venue = ?, authors = ?,
			title_norm = ?, venue_norm = ?, authors_norm = ?, abstract = ?,
			year = ?, source = ?, relevance_score = ?, keywords_found = ?,
			oa_candidate_urls = ?, status = ?,
			content_hash = ?, byte_size = ?, mime_type = ?, http_status = ?,
			retrieved_at = ?, source_url = ?, storage_ref = ?
		 WHERE id = ?`,
		survivor.Identifier, survivor.Title, survivor.Venue, jsonList(survivor.Authors),
		survivor.TitleNorm, survivor.VenueNorm, jsonList(survivor.AuthorsNorm),
		survivor.Abstract, survivor.Year, survivor.Source,
		score, jsonList(survivor.KeywordsFound),
		jsonList(survivor.OACandidateURLs), string(survivor.Status),
		prov.ContentHash, prov.ByteSize, prov.MIMEType, prov.HTTPStatus,
		timeString(prov.RetrievedAt), prov.SourceURL, prov.StorageRef,
		survivor.ID,
	); err != nil {
		return fmt.Errorf("updating survivor %d: %w", survivor.ID, err)
	}

	return tx.Commit()
}

// RecordFetchSuccess commits the provenance fields and the status flip to
// fetched as one unit.
func (s *Store) RecordFetchSuccess(ctx context.Context, id int64, prov types.Provenance, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = 'fetched', last_error = '',
			fetch_attempts = fetch_attempts + ?,
			content_hash = ?, byte_size = ?, mime_type = ?, http_status = ?,
			retrieved_at = ?, source_url = ?, storage_ref = ?
		 WHERE id = ?`,
		attempts,
		prov.ContentHash, prov.ByteSize, prov.MIMEType, prov.HTTPStatus,
		timeString(prov.RetrievedAt), prov.SourceURL, prov.StorageRef,
		id,
	)
	if err != nil {
		return fmt.Errorf("recording fetch success for record %d: %w", id, err)
	}
	return nil
}

// RecordFetchFailure marks a record fetch_failed with enough context to
// resume later.
func (s *Store) RecordFetchFailure(ctx context.Context, id int64, errorSummary string, attempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = 'fetch_failed', last_error = ?,
			fetch_attempts = fetch_attempts + ?
		 WHERE id = ?`,
		errorSummary, attempts, id,
	)
	if err != nil {
		return fmt.Errorf("recording fetch failure for record %d: %w", id, err)
	}
	return nil
}

// FindByContentHash returns the id of the earliest fetched record carrying
// contentHash, or false when none does.
func (s *Store) FindByContentHash(ctx context.Context, contentHash string) (int64, string, bool, error) {
	var (
		id  int64
		ref string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, storage_ref FROM records
		 WHERE content_hash = ? AND status = 'fetched'
		 ORDER BY id ASC LIMIT 1`,
		contentHash,
	).Scan(&id, &ref)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("looking up content hash: %w", err)
	}
	return id, ref, true, nil
}

// PurgeMergedAway physically deletes merged_away rows. This is the
// explicit maintenance step kept separate from resolution itself.
func (s *Store) PurgeMergedAway(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE status = 'merged_away'`)
	if err != nil {
		return 0, fmt.Errorf("purging merged records: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*types.Record, error) {
	var (
		rec                       types.Record
		authors, authorsNorm      string
		keywordsFound, candidates string
		score                     sql.NullFloat64
		status                    string
		hash, mime, retrievedAt   string
		byteSize                  int64
		httpStatus                int
		sourceURL, storageRef     string
	)
	err := rows.Scan(
		&rec.ID, &rec.Identifier, &rec.Title, &rec.Venue, &authors,
		&rec.TitleNorm, &rec.VenueNorm, &authorsNorm, &rec.Abstract,
		&rec.Year, &rec.Source, &score, &keywordsFound, &candidates,
		&rec.FetchAttempts, &rec.LastError, &status,
		&hash, &byteSize, &mime, &httpStatus, &retrievedAt,
		&sourceURL, &storageRef,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Status = types.RecordStatus(status)
	rec.Authors = fromJSONList(authors)
	rec.AuthorsNorm = fromJSONList(authorsNorm)
	rec.KeywordsFound = fromJSONList(keywordsFound)
	rec.OACandidateURLs = fromJSONList(candidates)
	if score.Valid {
		v := score.Float64
		rec.RelevanceScore = &v
	}
	if hash != "" {
		rec.Artifact = &types.Provenance{
			ContentHash: hash,
			ByteSize:    byteSize,
			MIMEType:    mime,
			HTTPStatus:  httpStatus,
			RetrievedAt: parseTime(retrievedAt),
			SourceURL:   sourceURL,
			StorageRef:  storageRef,
		}
	}
	return &rec, nil
}

func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func fromJSONList(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
