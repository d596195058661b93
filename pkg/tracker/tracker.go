package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageviewinfo",
		Name:      "api_requests_total",
		Help:      "Reporting API calls by scope and outcome.",
	}, []string{"scope", "result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pageviewinfo",
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups by scope and outcome.",
	}, []string{"scope", "result"})
)

// Tracker tracks usage statistics per query scope.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ScopeStats
}

// ScopeStats holds metrics for a specific scope.
// Fields are accessed atomically.
type ScopeStats struct {
	CacheHits     int64
	CacheMisses   int64
	APISuccess    int64
	APIFailures   int64
	APIZeroResult int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ScopeStats),
	}
}

// getStats returns the stats object for a scope, creating it if needed.
func (t *Tracker) getStats(scope string) *ScopeStats {
	t.mu.RLock()
	s, ok := t.stats[scope]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[scope]; ok {
		return s
	}
	s = &ScopeStats{}
	t.stats[scope] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(scope string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(scope).CacheHits, 1)
	cacheLookups.WithLabelValues(scope, "hit").Inc()
}

func (t *Tracker) TrackCacheMiss(scope string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(scope).CacheMisses, 1)
	cacheLookups.WithLabelValues(scope, "miss").Inc()
}

func (t *Tracker) TrackAPISuccess(scope string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(scope).APISuccess, 1)
	apiRequests.WithLabelValues(scope, "success").Inc()
}

func (t *Tracker) TrackAPIFailure(scope string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(scope).APIFailures, 1)
	apiRequests.WithLabelValues(scope, "failure").Inc()
}

// TrackAPIZero counts successful calls that returned no rows.
func (t *Tracker) TrackAPIZero(scope string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(scope).APIZeroResult, 1)
	apiRequests.WithLabelValues(scope, "empty").Inc()
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ScopeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ScopeStats)
	for k, v := range t.stats {
		result[k] = ScopeStats{
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			APISuccess:    atomic.LoadInt64(&v.APISuccess),
			APIFailures:   atomic.LoadInt64(&v.APIFailures),
			APIZeroResult: atomic.LoadInt64(&v.APIZeroResult),
		}
	}
	return result
}

// Reset zeroes all counters but keeps known scopes listed.
// Prometheus counters are monotonic and are left untouched.
func (t *Tracker) Reset() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stats {
		atomic.StoreInt64(&s.CacheHits, 0)
		atomic.StoreInt64(&s.CacheMisses, 0)
		atomic.StoreInt64(&s.APISuccess, 0)
		atomic.StoreInt64(&s.APIFailures, 0)
		atomic.StoreInt64(&s.APIZeroResult, 0)
	}
}
