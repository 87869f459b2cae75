// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DBPath: filepath.Join(t.TempDir(), "corpus.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insert(t *testing.T, s *Store, rec *types.Record) *types.Record {
	t.Helper()
	require.NoError(t, s.InsertCandidate(context.Background(), rec))
	return rec
}

func TestInsertAssignsID(t *testing.T) {
	s := newTestStore(t)
	a := insert(t, s, &types.Record{Title: "A", TitleNorm: "a", Source: "openalex"})
	b := insert(t, s, &types.Record{Title: "B", TitleNorm: "b", Source: "crossref"})
	assert.Greater(t, a.ID, int64(0))
	assert.Greater(t, b.ID, a.ID)
}

func TestLiveIdentifierUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insert(t, s, &types.Record{Identifier: "10.1/abc", TitleNorm: "a", Source: "openalex"})

	err := s.InsertCandidate(ctx, &types.Record{Identifier: "10.1/abc", TitleNorm: "b", Source: "crossref"})
	assert.Error(t, err, "duplicate live identifier must be rejected")

	ok, err := s.HasIdentifier(ctx, "10.1/abc")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasIdentifier(ctx, "10.1/xyz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateScorePromotesStatusOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := insert(t, s, &types.Record{TitleNorm: "a", Source: "openalex"})

	require.NoError(t, s.UpdateScore(ctx, rec.ID, 0.42, []string{"sonar"}))
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RelevanceScore)
	assert.Equal(t, 0.42, *got.RelevanceScore)
	assert.Equal(t, types.StatusScored, got.Status)
	assert.Equal(t, []string{"sonar"}, got.KeywordsFound)

	// Re-scoring never regresses a later status.
	prov := types.Provenance{ContentHash: "aa", HTTPStatus: 200, RetrievedAt: time.Now(), SourceURL: "u", StorageRef: "r"}
	require.NoError(t, s.RecordFetchSuccess(ctx, rec.ID, prov, 1))
	require.NoError(t, s.UpdateScore(ctx, rec.ID, 0.9, nil))
	got, err = s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFetched, got.Status)
	assert.Equal(t, 0.9, *got.RelevanceScore)
}

func TestListEligibleForFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scored := insert(t, s, &types.Record{TitleNorm: "a", Source: "x",
		OACandidateURLs: []string{"https://example.org/a.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, scored.ID, 0.5, nil))

	failed := insert(t, s, &types.Record{TitleNorm: "b", Source: "x",
		OACandidateURLs: []string{"https://example.org/b.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, failed.ID, 0.5, nil))
	require.NoError(t, s.RecordFetchFailure(ctx, failed.ID, "HTTP 404", 1))

	// Unscored, fetched, and URL-less records are not eligible.
	insert(t, s, &types.Record{TitleNorm: "c", Source: "x",
		OACandidateURLs: []string{"https://example.org/c.pdf"}})
	done := insert(t, s, &types.Record{TitleNorm: "d", Source: "x",
		OACandidateURLs: []string{"https://example.org/d.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, done.ID, 0.5, nil))
	require.NoError(t, s.RecordFetchSuccess(ctx, done.ID,
		types.Provenance{ContentHash: "aa", HTTPStatus: 200, SourceURL: "u", StorageRef: "r"}, 1))
	noURLs := insert(t, s, &types.Record{TitleNorm: "e", Source: "x"})
	require.NoError(t, s.UpdateScore(ctx, noURLs.ID, 0.5, nil))

	got, err := s.ListEligibleForFetch(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Stable order by id ascending.
	assert.Equal(t, scored.ID, got[0].ID)
	assert.Equal(t, failed.ID, got[1].ID)

	limited, err := s.ListEligibleForFetch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, scored.ID, limited[0].ID)
}

func TestRecordFetchSuccessCommitsProvenanceWithStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := insert(t, s, &types.Record{TitleNorm: "a", Source: "x",
		OACandidateURLs: []string{"https://example.org/a.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, rec.ID, 0.5, nil))

	retrieved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prov := types.Provenance{
		ContentHash: "deadbeef",
		ByteSize:    1234,
		MIMEType:    "application/pdf",
		HTTPStatus:  200,
		RetrievedAt: retrieved,
		SourceURL:   "https://example.org/a.pdf",
		StorageRef:  "/tmp/artifacts/1-deadbeef.pdf",
	}
	require.NoError(t, s.RecordFetchSuccess(ctx, rec.ID, prov, 3))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFetched, got.Status)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, prov.ContentHash, got.Artifact.ContentHash)
	assert.Equal(t, prov.ByteSize, got.Artifact.ByteSize)
	assert.Equal(t, prov.MIMEType, got.Artifact.MIMEType)
	assert.True(t, retrieved.Equal(got.Artifact.RetrievedAt))
	assert.Equal(t, 3, got.FetchAttempts)
	assert.Empty(t, got.LastError)
}

func TestRecordFetchFailureKeepsResumeContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := insert(t, s, &types.Record{TitleNorm: "a", Source: "x",
		OACandidateURLs: []string{"https://example.org/a.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, rec.ID, 0.5, nil))
	require.NoError(t, s.RecordFetchFailure(ctx, rec.ID, "HTTP 404 from https://example.org/a.pdf", 1))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFetchFailed, got.Status)
	assert.Contains(t, got.LastError, "HTTP 404")
	assert.Equal(t, 1, got.FetchAttempts)
	assert.Nil(t, got.Artifact)
}

func TestApplyMergeTransitionsAndAdoptsIdentifier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	survivor := insert(t, s, &types.Record{TitleNorm: "same", Source: "openalex", Status: types.StatusScored})
	loser := insert(t, s, &types.Record{Identifier: "10.1/abc", TitleNorm: "same", Source: "crossref", Status: types.StatusScored})

	// Survivor adopts the loser's identifier during field migration; the
	// live-uniqueness index must accept this inside one transaction.
	survivor.Identifier = loser.Identifier
	require.NoError(t, s.ApplyMerge(ctx, survivor, []int64{loser.ID}))

	gotSurvivor, err := s.Get(ctx, survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.1/abc", gotSurvivor.Identifier)
	assert.NotEqual(t, types.StatusMergedAway, gotSurvivor.Status)

	gotLoser, err := s.Get(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusMergedAway, gotLoser.Status)
	// Audit trail preserved until purge.
	assert.Equal(t, "10.1/abc", gotLoser.Identifier)
}

func TestFindByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := insert(t, s, &types.Record{TitleNorm: "a", Source: "x",
		OACandidateURLs: []string{"https://example.org/a.pdf"}})
	require.NoError(t, s.UpdateScore(ctx, rec.ID, 0.5, nil))
	require.NoError(t, s.RecordFetchSuccess(ctx, rec.ID,
		types.Provenance{ContentHash: "cafe", HTTPStatus: 200, SourceURL: "u", StorageRef: "ref-1"}, 1))

	id, ref, ok, err := s.FindByContentHash(ctx, "cafe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec.ID, id)
	assert.Equal(t, "ref-1", ref)

	_, _, ok, err = s.FindByContentHash(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeMergedAway(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	keep := insert(t, s, &types.Record{TitleNorm: "same", Source: "x", Status: types.StatusScored})
	gone := insert(t, s, &types.Record{TitleNorm: "same", Source: "y", Status: types.StatusScored})
	require.NoError(t, s.ApplyMerge(ctx, keep, []int64{gone.ID}))

	n, err := s.PurgeMergedAway(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, gone.ID)
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.db")
	s, err := Open(types.StoreConfig{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an existing database re-runs schema and migrations.
	s, err = Open(types.StoreConfig{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestFSArtifactSinkPut(t *testing.T) {
	dir := t.TempDir()
	sink := NewFSArtifactSink(filepath.Join(dir, "artifacts"))

	ref, err := sink.Put("7-deadbeef.pdf", bytes.NewReader([]byte("%PDF-1.4 fake")))
	require.NoError(t, err)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7-deadbeef.pdf", entries[0].Name())
}
