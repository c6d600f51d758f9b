// Package ratelimit gates outbound REST and gateway calls against
// per-bucket quotas.
//
// A bucket admits a call only while Remaining > 0. Callers that find a
// bucket exhausted are suspended until its reset time rather than failed;
// a suspension longer than MaxWait turns into a rate-limit error. The
// server is authoritative: response headers overwrite the local estimate
// and a 429 forces a deficit regardless of what the bucket believes.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/metrics"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderResetAfter = "X-RateLimit-Reset-After"
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderGlobal     = "X-RateLimit-Global"
	HeaderScope      = "X-RateLimit-Scope"
)

// Well-known gateway bucket keys.
const (
	GatewaySend     = "gateway:send"
	GatewayIdentify = "gateway:identify"
)

var ErrMaxWaitExceeded = errors.New("rate limit wait exceeds maximum")

// Bucket is a snapshot of one quota scope.
type Bucket struct {
	Key       string
	Limit     int
	Remaining int
	// ResetAt is zero while the reset time is unknown.
	ResetAt time.Time
	// Window is non-zero for statically configured buckets; the window
	// starts at the first admission after a reset.
	Window time.Duration
}

type bucket struct {
	Bucket
	deficitUntil time.Time
	// learned is the last reset-after the server reported. It re-arms
	// the window once a server bucket resets without fresh headers.
	learned time.Duration
	// scoutUntil holds back other callers while a single call is out
	// learning the state of an exhausted bucket with no known reset.
	scoutUntil time.Time
}

// scoutWait is how long callers queue behind the scouting call before
// another one may try.
const scoutWait = time.Second

type Options struct {
	Clock clock.Clock
	// MaxWait bounds how long a single Acquire may stay suspended.
	// Defaults to 5 minutes.
	MaxWait time.Duration
	// MaxInFlight caps concurrently admitted calls across all buckets.
	// Zero means unlimited.
	MaxInFlight int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	aliases     map[string]string
	globalUntil time.Time

	inflight chan struct{}
	clock    clock.Clock
	maxWait  time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func New(opts Options) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		aliases: make(map[string]string),
		clock:   opts.Clock,
		maxWait: opts.MaxWait,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.maxWait <= 0 {
		l.maxWait = 5 * time.Minute
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if opts.MaxInFlight > 0 {
		l.inflight = make(chan struct{}, opts.MaxInFlight)
	}
	return l
}

func (l *Limiter) MaxWait() time.Duration {
	return l.maxWait
}

// Configure declares a static bucket admitting limit calls per window.
func (l *Limiter) Configure(key string, limit int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(key)
	b.Limit = limit
	b.Remaining = limit
	b.Window = window
	b.ResetAt = time.Time{}
}

// Acquire blocks until key admits a call, ctx is done, or the wait would
// exceed MaxWait. The returned release func frees the in-flight slot and
// must be called once the call finished.
func (l *Limiter) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "ratelimit.Acquire"
	start := l.clock.Now()
	deadline := start.Add(l.maxWait)
	for {
		wait, ok := l.admit(key)
		if ok {
			break
		}
		if l.clock.Now().Add(wait).After(deadline) {
			l.metrics.RateLimited("max_wait")
			return nil, &errs.Error{Kind: errs.KindRateLimit, Op: op, RetryAfter: wait, Err: ErrMaxWaitExceeded}
		}
		l.log.Debug("rate limited, waiting", "bucket", key, "wait", wait)
		timer := l.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if waited := l.clock.Since(start); waited > 0 {
		l.metrics.RateLimitWait(waited)
	}
	if l.inflight == nil {
		return func() {}, nil
	}
	select {
	case l.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-l.inflight })
	}, nil
}

// admit decides a single admission. It returns how long to wait when the
// call cannot be admitted yet.
func (l *Limiter) admit(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Before(l.globalUntil) {
		return l.globalUntil.Sub(now), false
	}
	b := l.lookupLocked(key)
	if b == nil {
		return 0, true
	}
	if now.Before(b.deficitUntil) {
		return b.deficitUntil.Sub(now), false
	}
	if !b.ResetAt.IsZero() && !now.Before(b.ResetAt) {
		b.Remaining = b.Limit
		b.ResetAt = time.Time{}
	}
	if b.Limit <= 0 && b.Remaining <= 0 {
		// Only a deficit was ever recorded; the quota itself is unknown.
		return 0, true
	}
	if b.Remaining > 0 {
		b.Remaining--
		window := b.Window
		if window == 0 {
			window = b.learned
		}
		if window > 0 && b.ResetAt.IsZero() {
			b.ResetAt = now.Add(window)
		}
		return 0, true
	}
	if !b.ResetAt.IsZero() {
		return b.ResetAt.Sub(now), false
	}
	// Exhausted with no known reset: one call goes out to fetch the
	// server's state, the rest wait for its headers.
	if now.Before(b.scoutUntil) {
		return b.scoutUntil.Sub(now), false
	}
	b.scoutUntil = now.Add(scoutWait)
	return 0, true
}

// Update applies the rate limit headers of a response to key's bucket.
// It is called after every REST response, successful or not.
func (l *Limiter) Update(key string, h http.Header) {
	limit, hasLimit := atoi(h.Get(HeaderLimit))
	remaining, hasRemaining := atoi(h.Get(HeaderRemaining))
	resetAfter, hasReset := seconds(h.Get(HeaderResetAfter))
	id := h.Get(HeaderBucket)
	if !hasLimit && !hasRemaining && !hasReset {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	target := l.resolveLocked(key)
	if id != "" && id != target {
		l.aliases[key] = id
		target = id
		if b, ok := l.buckets[key]; ok && b.Window == 0 {
			delete(l.buckets, key)
		}
	}
	b := l.bucketLocked(target)
	if hasLimit {
		b.Limit = limit
	}
	if hasRemaining {
		b.Remaining = remaining
	}
	if hasReset {
		b.ResetAt = l.clock.Now().Add(resetAfter)
		if b.Window == 0 && resetAfter > 0 {
			b.learned = resetAfter
		}
	}
	b.scoutUntil = time.Time{}
}

// Deficit forces key's bucket (or every bucket when global) closed for
// retryAfter, overriding local state.
func (l *Limiter) Deficit(key string, retryAfter time.Duration, global bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.clock.Now().Add(retryAfter)
	if global {
		l.metrics.RateLimited("global")
		if until.After(l.globalUntil) {
			l.globalUntil = until
		}
		return
	}
	l.metrics.RateLimited("bucket")
	b := l.bucketLocked(l.resolveLocked(key))
	b.deficitUntil = until
	b.Remaining = 0
	b.ResetAt = until
}

// Snapshot returns a copy of key's bucket.
func (l *Limiter) Snapshot(key string) (Bucket, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.lookupLocked(key)
	if b == nil {
		return Bucket{}, false
	}
	return b.Bucket, true
}

func (l *Limiter) resolveLocked(key string) string {
	if id, ok := l.aliases[key]; ok {
		return id
	}
	return key
}

func (l *Limiter) lookupLocked(key string) *bucket {
	return l.buckets[l.resolveLocked(key)]
}

func (l *Limiter) bucketLocked(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{Bucket: Bucket{Key: key}}
		l.buckets[key] = b
	}
	return b
}

func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func seconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
