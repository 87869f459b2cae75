// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pdiddy/corpus-engine/internal/store"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// fakeRepo keeps records in memory and mimics the repository's
// eligibility and commit semantics.
type fakeRepo struct {
	mu      sync.Mutex
	records map[int64]*types.Record
}

func newFakeRepo(records ...*types.Record) *fakeRepo {
	f := &fakeRepo{records: make(map[int64]*types.Record)}
	for _, rec := range records {
		if rec.Status == "" {
			rec.Status = types.StatusScored
		}
		f.records[rec.ID] = rec
	}
	return f
}

func (f *fakeRepo) ListEligibleForFetch(ctx context.Context, limit int) ([]*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Record
	for id := int64(1); int(id) <= len(f.records); id++ {
		rec, ok := f.records[id]
		if !ok {
			continue
		}
		if rec.Status != types.StatusScored && rec.Status != types.StatusFetchFailed {
			continue
		}
		if len(rec.OACandidateURLs) == 0 {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) RecordFetchSuccess(ctx context.Context, id int64, prov types.Provenance, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	p := prov
	rec.Artifact = &p
	rec.Status = types.StatusFetched
	rec.FetchAttempts += attempts
	rec.LastError = ""
	return nil
}

func (f *fakeRepo) RecordFetchFailure(ctx context.Context, id int64, errorSummary string, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	rec.Status = types.StatusFetchFailed
	rec.LastError = errorSummary
	rec.FetchAttempts += attempts
	return nil
}

func (f *fakeRepo) FindByContentHash(ctx context.Context, contentHash string) (int64, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := int64(1); int(id) <= len(f.records); id++ {
		rec, ok := f.records[id]
		if !ok || rec.Status != types.StatusFetched || rec.Artifact == nil {
			continue
		}
		if rec.Artifact.ContentHash == contentHash {
			return id, rec.Artifact.StorageRef, true, nil
		}
	}
	return 0, "", false, nil
}

func (f *fakeRepo) get(id int64) *types.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

func testConfig(t *testing.T) types.FetchConfig {
	t.Helper()
	// Nanosecond pacing keeps the pacing paths exercised without the
	// production defaults slowing tests down.
	return types.FetchConfig{
		HTTPConfig:   types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "corpus-engine-test/0.1"},
		RetryBudget:  3,
		BackoffBase:  1 * time.Millisecond,
		JitterBound:  time.Nanosecond,
		HostInterval: time.Nanosecond,
		Workers:      2,
		ArtifactsDir: t.TempDir(),
	}
}

func newTestEngine(t *testing.T, repo Repository, cfg types.FetchConfig) *Engine {
	t.Helper()
	sink := store.NewFSArtifactSink(cfg.ArtifactsDir)
	return New(repo, sink, cfg, nil, zerolog.Nop())
}

// counter tracks per-path request counts inside test handlers.
type counter struct {
	mu sync.Mutex
	n  map[string]int
}

func newCounter() *counter { return &counter{n: make(map[string]int)} }

func (c *counter) inc(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[path]++
	return c.n[path]
}

func (c *counter) get(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[path]
}

func TestRunFetchesAndRecordsProvenance(t *testing.T) {
	body := "%PDF-1.4 test artifact"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/a.pdf"}})
	engine := newTestEngine(t, repo, testConfig(t))

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, report.Attempts)

	rec := repo.get(1)
	assert.Equal(t, types.StatusFetched, rec.Status)
	require.NotNil(t, rec.Artifact)
	assert.Equal(t, ts.URL+"/a.pdf", rec.Artifact.SourceURL)
	assert.Equal(t, "application/pdf", rec.Artifact.MIMEType)
	assert.Equal(t, int64(len(body)), rec.Artifact.ByteSize)
	assert.Equal(t, http.StatusOK, rec.Artifact.HTTPStatus)
	assert.False(t, rec.Artifact.RetrievedAt.IsZero())

	// Round trip: the stored hash equals the digest of the stored bytes.
	stored, err := os.ReadFile(rec.Artifact.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(stored)), rec.Artifact.ContentHash)
	assert.Equal(t, body, string(stored))
}

// First two URLs return 503 through the whole retry budget; the third
// succeeds. The record ends fetched from the third URL with the attempt
// count reflecting the exhausted retries.
func TestRunAdvancesThroughCandidateURLs(t *testing.T) {
	calls := newCounter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		switch r.URL.Path {
		case "/bad1", "/bad2":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4 third time lucky")
		}
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{
		ts.URL + "/bad1", ts.URL + "/bad2", ts.URL + "/good",
	}})
	engine := newTestEngine(t, repo, testConfig(t))

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)

	rec := repo.get(1)
	assert.Equal(t, types.StatusFetched, rec.Status)
	require.NotNil(t, rec.Artifact)
	assert.Equal(t, ts.URL+"/good", rec.Artifact.SourceURL)
	// Full retry budget on each failing URL, one attempt on the winner.
	assert.Equal(t, 3, calls.get("/bad1"))
	assert.Equal(t, 3, calls.get("/bad2"))
	assert.Equal(t, 1, calls.get("/good"))
	assert.Equal(t, 7, rec.FetchAttempts)
}

// A permanent 4xx is never retried: one attempt, then fetch_failed.
func TestRunPermanent404FailsWithoutRetry(t *testing.T) {
	calls := newCounter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/gone.pdf"}})
	engine := newTestEngine(t, repo, testConfig(t))

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Attempts)

	rec := repo.get(1)
	assert.Equal(t, types.StatusFetchFailed, rec.Status)
	assert.Contains(t, rec.LastError, "HTTP 404")
	assert.Equal(t, 1, calls.get("/gone.pdf"))
}

// Once fetched, a record triggers no further network activity.
func TestRunIdempotentAfterFetch(t *testing.T) {
	calls := newCounter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 once")
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/a.pdf"}})
	engine := newTestEngine(t, repo, testConfig(t))

	_, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, calls.get("/a.pdf"))

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fetched+report.Failed+report.Attempts)
	assert.Equal(t, 1, calls.get("/a.pdf"), "second run must make no network calls")
}

// Identical bytes fetched for two records are stored once; the second
// record links the first artifact and the pair is flagged, not merged.
func TestRunFlagsDuplicateArtifacts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 identical bytes")
	}))
	defer ts.Close()

	repo := newFakeRepo(
		&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/one.pdf"}},
		&types.Record{ID: 2, OACandidateURLs: []string{ts.URL + "/two.pdf"}},
	)
	cfg := testConfig(t)
	cfg.Workers = 1 // deterministic ordering for the assertion below
	engine := newTestEngine(t, repo, cfg)

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	require.Len(t, report.Duplicates, 1)
	dup := report.Duplicates[0]
	assert.Equal(t, int64(2), dup.RecordID)
	assert.Equal(t, int64(1), dup.DuplicateOf)

	first, second := repo.get(1), repo.get(2)
	require.NotNil(t, first.Artifact)
	require.NotNil(t, second.Artifact)
	assert.Equal(t, first.Artifact.ContentHash, second.Artifact.ContentHash)
	assert.Equal(t, first.Artifact.StorageRef, second.Artifact.StorageRef, "identical bytes stored once")

	entries, err := os.ReadDir(cfg.ArtifactsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunHonorsRetryAfter(t *testing.T) {
	calls := newCounter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.inc(r.URL.Path) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 after backoff")
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/a.pdf"}})
	cfg := testConfig(t)
	// A long computed backoff: only an honored Retry-After lets this pass
	// within the deadline.
	cfg.BackoffBase = 30 * time.Second
	engine := newTestEngine(t, repo, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := engine.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 2, calls.get("/a.pdf"))
}

func TestRunEmptyBodyIsPermanent(t *testing.T) {
	calls := newCounter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	repo := newFakeRepo(&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/empty"}})
	engine := newTestEngine(t, repo, testConfig(t))

	report, err := engine.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, calls.get("/empty"), "malformed artifact is not retried")
}

func TestRunRespectsLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 "+r.URL.Path)
	}))
	defer ts.Close()

	repo := newFakeRepo(
		&types.Record{ID: 1, OACandidateURLs: []string{ts.URL + "/1.pdf"}},
		&types.Record{ID: 2, OACandidateURLs: []string{ts.URL + "/2.pdf"}},
		&types.Record{ID: 3, OACandidateURLs: []string{ts.URL + "/3.pdf"}},
	)
	engine := newTestEngine(t, repo, testConfig(t))

	report, err := engine.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, types.StatusScored, repo.get(3).Status)
}

// A zero-value configuration must still pace: the documented defaults
// apply to every field, so a default run never issues unpaced requests.
func TestNewAppliesPacingDefaults(t *testing.T) {
	engine := New(newFakeRepo(), store.NewFSArtifactSink(t.TempDir()), types.FetchConfig{}, nil, zerolog.Nop())

	assert.Equal(t, defaultRetryBudget, engine.cfg.RetryBudget)
	assert.Equal(t, defaultBackoffBase, engine.cfg.BackoffBase)
	assert.Equal(t, defaultHostInterval, engine.cfg.HostInterval)
	assert.Equal(t, defaultJitterBound, engine.cfg.JitterBound)
	assert.Equal(t, defaultWorkers, engine.cfg.Workers)

	// The pacer is built from the defaulted values, not the raw config.
	assert.Equal(t, defaultHostInterval, engine.pacer.interval)
	assert.Equal(t, defaultJitterBound, engine.pacer.jitter)
	assert.Equal(t, rate.Every(defaultHostInterval), engine.pacer.limiter("example.org").Limit())
}

func TestHostPacerSpacesSameHost(t *testing.T) {
	pacer := newHostPacer(20*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, pacer.wait(ctx, "https://example.org/file"))
	}
	elapsed := time.Since(start)
	// Two inter-request gaps at 20ms minimum each.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestHostPacerIndependentHosts(t *testing.T) {
	pacer := newHostPacer(200*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, pacer.wait(ctx, "https://a.example.org/x"))
	require.NoError(t, pacer.wait(ctx, "https://b.example.org/x"))
	require.NoError(t, pacer.wait(ctx, "https://c.example.org/x"))
	assert.Less(t, time.Since(start), 150*time.Millisecond,
		"different hosts must not wait on each other")
}

func TestAttemptStateAdvance(t *testing.T) {
	st := attemptState{URLIndex: 0, Attempt: 3, NextTry: time.Now()}
	st.advanceURL()
	assert.Equal(t, 1, st.URLIndex)
	assert.Equal(t, 0, st.Attempt)
	assert.True(t, st.NextTry.IsZero())
}
