// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch turns scored records into records with persisted,
// content-addressed artifacts. Each record walks its candidate URL list in
// order under a retry budget with exponential backoff; successful downloads
// are hashed before any persistence decision and committed together with
// their provenance. Records are claimed by exactly one worker per run, and
// requests to the same host are paced regardless of worker count.
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Defaults applied by New when the configuration leaves them zero.
const (
	defaultRetryBudget  = 3
	defaultBackoffBase  = 1 * time.Second
	defaultHostInterval = 1 * time.Second
	defaultJitterBound  = 250 * time.Millisecond
	defaultWorkers      = 4
	defaultTimeout      = 60 * time.Second
)

// Repository is the narrow store contract the engine depends on.
type Repository interface {
	// ListEligibleForFetch returns records awaiting retrieval, by id
	// ascending, at most limit when limit > 0.
	ListEligibleForFetch(ctx context.Context, limit int) ([]*types.Record, error)

	// RecordFetchSuccess commits provenance and the fetched status as one unit.
	RecordFetchSuccess(ctx context.Context, id int64, prov types.Provenance, attempts int) error

	// RecordFetchFailure marks the record fetch_failed with resume context.
	RecordFetchFailure(ctx context.Context, id int64, errorSummary string, attempts int) error

	// FindByContentHash locates an already-fetched record with the same
	// artifact bytes, returning its id and storage ref.
	FindByContentHash(ctx context.Context, contentHash string) (int64, string, bool, error)
}

// ArtifactSink persists retrieved bytes under a caller-supplied key.
type ArtifactSink interface {
	Put(key string, r io.Reader) (ref string, err error)
}

// Engine retrieves artifacts with bounded concurrency.
type Engine struct {
	repo   Repository
	sink   ArtifactSink
	client *http.Client
	cfg    types.FetchConfig
	pacer  *hostPacer
	logger zerolog.Logger

	// commitMu serializes the hash-lookup-then-persist section so two
	// workers downloading identical bytes cannot both store them.
	commitMu sync.Mutex
}

// New returns an Engine with defaults filled in. client may be nil, in
// which case one is built from the configured timeout.
func New(repo Repository, sink ArtifactSink, cfg types.FetchConfig, client *http.Client, logger zerolog.Logger) *Engine {
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = defaultRetryBudget
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.HostInterval <= 0 {
		cfg.HostInterval = defaultHostInterval
	}
	if cfg.JitterBound <= 0 {
		cfg.JitterBound = defaultJitterBound
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Engine{
		repo:   repo,
		sink:   sink,
		client: client,
		cfg:    cfg,
		pacer:  newHostPacer(cfg.HostInterval, cfg.JitterBound),
		logger: logger,
	}
}

// Run fetches up to limit eligible records (0 = all) and returns the run
// report. Cancellation is cooperative: in-flight attempts finish or hit
// their own timeout, but no new record is started once ctx is done; those
// records are counted as skipped. A failure on one record never aborts the
// batch.
func (e *Engine) Run(ctx context.Context, limit int) (types.FetchReport, error) {
	report := types.FetchReport{RunID: uuid.NewString()}

	records, err := e.repo.ListEligibleForFetch(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("listing records for fetch: %w", err)
	}
	if len(records) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	recCh := make(chan *types.Record)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(recCh)
		for _, rec := range records {
			select {
			case recCh <- rec:
			case <-gctx.Done():
				mu.Lock()
				report.Skipped++
				mu.Unlock()
			}
		}
		return nil
	})

	// Receiving from recCh is the claim: each record is owned by exactly
	// one worker for the whole run.
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for rec := range recCh {
				e.process(gctx, rec, &report, &mu)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// process walks one record's candidate URLs under the retry state machine
// and settles the record as fetched or fetch_failed.
func (e *Engine) process(ctx context.Context, rec *types.Record, report *types.FetchReport, mu *sync.Mutex) {
	st := attemptState{}
	attempts := 0
	lastErr := "candidate URL list exhausted"

	for st.URLIndex < len(rec.OACandidateURLs) {
		if ctx.Err() != nil {
			// Cooperative cancellation: leave the record eligible for a
			// later run rather than recording a failure.
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			return
		}
		candidateURL := rec.OACandidateURLs[st.URLIndex]

		if !st.NextTry.IsZero() {
			if err := sleepUntil(ctx, st.NextTry); err != nil {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return
			}
		}
		if err := e.pacer.wait(ctx, candidateURL); err != nil {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			return
		}

		attempts++
		out := e.attempt(ctx, candidateURL)

		switch out.kind {
		case succeeded:
			if err := e.commit(ctx, rec, candidateURL, out, attempts, report, mu); err != nil {
				e.logger.Error().Err(err).Int64("record", rec.ID).Msg("fetch commit failed")
				mu.Lock()
				report.Failed++
				report.Attempts += attempts
				report.Failures = append(report.Failures, types.FetchFailure{
					RecordID: rec.ID, URL: candidateURL, Attempts: attempts, Err: err.Error(),
				})
				mu.Unlock()
			}
			return

		case retryableFailure:
			lastErr = summarize(out, candidateURL)
			st.Attempt++
			if st.Attempt >= e.cfg.RetryBudget {
				st.advanceURL()
				continue
			}
			delay := httputil.Backoff(e.cfg.BackoffBase, st.Attempt-1, e.cfg.JitterBound)
			if out.hasRetryAfter {
				// An explicit server directive beats the computed backoff.
				delay = out.retryAfter
			}
			st.NextTry = time.Now().Add(delay)

		case terminalFailure:
			lastErr = summarize(out, candidateURL)
			st.advanceURL()
		}
	}

	if err := e.repo.RecordFetchFailure(ctx, rec.ID, lastErr, attempts); err != nil {
		e.logger.Error().Err(err).Int64("record", rec.ID).Msg("recording fetch failure failed")
	}
	e.logger.Warn().Int64("record", rec.ID).Int("attempts", attempts).Str("err", lastErr).Msg("fetch failed")
	mu.Lock()
	report.Failed++
	report.Attempts += attempts
	report.Failures = append(report.Failures, types.FetchFailure{
		RecordID: rec.ID, Attempts: attempts, Err: lastErr,
	})
	mu.Unlock()
}

// attempt performs one download try against one candidate URL.
func (e *Engine) attempt(ctx context.Context, candidateURL string) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidateURL, nil)
	if err != nil {
		return outcome{kind: terminalFailure, err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf, */*")

	resp, err := e.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return outcome{kind: retryableFailure, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		out := outcome{kind: classifyStatus(resp.StatusCode), status: resp.StatusCode}
		if d, ok := httputil.RetryAfter(resp); ok {
			out.retryAfter = d
			out.hasRetryAfter = true
		}
		return out
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome{kind: retryableFailure, status: resp.StatusCode, err: fmt.Errorf("reading body: %w", err)}
	}
	if len(body) == 0 {
		// An empty 2xx body is a malformed artifact, a permanent source error.
		return outcome{kind: terminalFailure, status: resp.StatusCode, err: fmt.Errorf("empty response body")}
	}

	return outcome{
		kind:     succeeded,
		status:   resp.StatusCode,
		mimeType: contentType(resp),
		body:     body,
	}
}

// commit hashes the bytes, stores them (or links an existing identical
// artifact), and persists provenance with the status flip.
func (e *Engine) commit(ctx context.Context, rec *types.Record, sourceURL string, out outcome, attempts int, report *types.FetchReport, mu *sync.Mutex) error {
	sum := sha256.Sum256(out.body)
	contentHash := fmt.Sprintf("%x", sum)

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var (
		ref string
		dup *types.DuplicateArtifact
	)
	dupID, dupRef, found, err := e.repo.FindByContentHash(ctx, contentHash)
	if err != nil {
		return fmt.Errorf("checking content hash: %w", err)
	}
	if found && dupID != rec.ID {
		// Identical bytes already stored for another record: link both to
		// the one artifact and flag the pair for resolver attention. The
		// records are not merged on content hash alone.
		ref = dupRef
		dup = &types.DuplicateArtifact{RecordID: rec.ID, DuplicateOf: dupID, ContentHash: contentHash}
	} else {
		key := fmt.Sprintf("%d-%s%s", rec.ID, contentHash[:12], extensionFor(out.mimeType))
		ref, err = e.sink.Put(key, bytes.NewReader(out.body))
		if err != nil {
			return fmt.Errorf("storing artifact: %w", err)
		}
	}

	prov := types.Provenance{
		ContentHash: contentHash,
		ByteSize:    int64(len(out.body)),
		MIMEType:    out.mimeType,
		HTTPStatus:  out.status,
		RetrievedAt: time.Now().UTC(),
		SourceURL:   sourceURL,
		StorageRef:  ref,
	}
	if err := e.repo.RecordFetchSuccess(ctx, rec.ID, prov, attempts); err != nil {
		return fmt.Errorf("recording fetch success: %w", err)
	}

	e.logger.Info().
		Int64("record", rec.ID).
		Str("url", sourceURL).
		Str("hash", contentHash[:12]).
		Int("attempts", attempts).
		Msg("artifact fetched")

	mu.Lock()
	report.Fetched++
	report.Attempts += attempts
	if dup != nil {
		report.Duplicates = append(report.Duplicates, *dup)
	}
	mu.Unlock()
	return nil
}

func summarize(out outcome, candidateURL string) string {
	if out.err != nil {
		return fmt.Sprintf("%v (%s)", out.err, candidateURL)
	}
	return fmt.Sprintf("HTTP %d from %s", out.status, candidateURL)
}

func contentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return parsed
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "pdf"):
		return ".pdf"
	case strings.Contains(mimeType, "html"):
		return ".html"
	case strings.Contains(mimeType, "xml"):
		return ".xml"
	default:
		return ".bin"
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
