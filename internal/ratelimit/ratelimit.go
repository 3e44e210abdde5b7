// Package ratelimit implements the per-key limiter registry the
// ratelimit_route stock filter consults, grounded on
// ratelimit/registry.go's synchronized lookup-map-of-limiters shape but
// backed by golang.org/x/time/rate instead of skipper's leaky-bucket
// implementation, matching the rate limiter every other pack repo
// (bjaus-api) reaches for.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is the interface the dispatcher context exposes to filters.
type Limiter interface {
	// Allow reports whether a call keyed by key may proceed under the
	// given rate/burst, creating that key's limiter on first use.
	Allow(key string, ratePerSecond float64, burst int) bool
}

// Registry is a synchronized map of key to *rate.Limiter, one entry per
// distinct (service, path, method) or client-IP key ever seen.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{limiters: map[string]*rate.Limiter{}}
}

func (r *Registry) Allow(key string, ratePerSecond float64, burst int) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Reset drops every tracked key, used by tests that need a clean
// window between assertions.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.limiters = map[string]*rate.Limiter{}
	r.mu.Unlock()
}

// Noop never throttles; used when no rate-limiter backend is injected.
func Noop() Limiter { return noopLimiter{} }

type noopLimiter struct{}

func (noopLimiter) Allow(string, float64, int) bool { return true }

// Key builds the ratelimit_route lookup key: "(service, path, method)"
// or a bare client IP, per §4.7.
func Key(service, path, method string) string {
	return service + "|" + path + "|" + method
}
