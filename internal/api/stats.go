package api

import (
	"net/http"
	"sort"

	"pageviewinfo/pkg/logging"
	"pageviewinfo/pkg/tracker"
)

type StatsHandler struct {
	tracker *tracker.Tracker
}

func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t}
}

type ScopeStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	HitRate       int64 `json:"hit_rate"`
}

type StatsResponse struct {
	Scopes  map[string]ScopeStatsDTO `json:"scopes"`
	Order   []string                 `json:"order"`
	LastLog string                   `json:"last_log"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Scopes:  make(map[string]ScopeStatsDTO, len(snapshot)),
		Order:   make([]string, 0, len(snapshot)),
		LastLog: formatLogLine(logging.GlobalLogCapture.GetLastLine()),
	}

	for scope, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Scopes[scope] = ScopeStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			HitRate:       hitRate,
		}
		resp.Order = append(resp.Order, scope)
	}
	sort.Strings(resp.Order)

	writeJSON(w, http.StatusOK, resp)
}
