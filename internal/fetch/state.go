// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"net/http"
	"time"
)

// attemptState is the per-record retry state machine, represented as data
// (current URL index, attempts on it, earliest next try) rather than nested
// loops, so a surrounding system could pause and resume it.
type attemptState struct {
	// URLIndex points into the record's candidate URL list.
	URLIndex int

	// Attempt counts tries against the current URL.
	Attempt int

	// NextTry is the earliest time the next attempt may start.
	NextTry time.Time
}

// advanceURL moves to the next candidate URL, resetting the retry budget.
func (s *attemptState) advanceURL() {
	s.URLIndex++
	s.Attempt = 0
	s.NextTry = time.Time{}
}

// outcomeKind classifies a single fetch attempt.
type outcomeKind int

const (
	// succeeded: artifact bytes obtained with an acceptable status code.
	succeeded outcomeKind = iota

	// retryableFailure: network error, timeout, or HTTP 429/5xx.
	retryableFailure

	// terminalFailure: HTTP 4xx other than 429; the current URL is
	// abandoned without further retries.
	terminalFailure
)

// outcome is the result of one attempt against one candidate URL.
type outcome struct {
	kind          outcomeKind
	status        int
	mimeType      string
	body          []byte
	err           error
	retryAfter    time.Duration
	hasRetryAfter bool
}

// classifyStatus maps a non-2xx HTTP status to an outcome kind. 429 and
// 5xx are transient; remaining 4xx are permanent source errors.
func classifyStatus(status int) outcomeKind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return retryableFailure
	}
	return terminalFailure
}
