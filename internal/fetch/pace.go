// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostPacer spaces requests to the same host by a minimum interval plus
// random jitter, independent of which record triggered them. One limiter
// per host; workers fetching different hosts do not wait on each other.
type hostPacer struct {
	interval time.Duration
	jitter   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostPacer(interval, jitter time.Duration) *hostPacer {
	return &hostPacer{
		interval: interval,
		jitter:   jitter,
		limiters: make(map[string]*rate.Limiter),
	}
}

// wait blocks until the host's pacing slot opens, then applies jitter.
func (p *hostPacer) wait(ctx context.Context, rawURL string) error {
	lim := p.limiter(hostOf(rawURL))
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if p.jitter > 0 {
		d := time.Duration(rand.Int63n(int64(p.jitter)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return nil
}

func (p *hostPacer) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[host]
	if !ok {
		limit := rate.Inf
		if p.interval > 0 {
			limit = rate.Every(p.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		p.limiters[host] = lim
	}
	return lim
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
