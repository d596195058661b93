package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pageviewinfo/pkg/version"
)

// NewServer creates and configures the HTTP server.
func NewServer(addr string, pv *PageviewHandler, siteH *SiteHandler, stats *StatsHandler) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Pageview endpoints
	mux.HandleFunc("GET /api/pageviews/pages", pv.HandlePages)
	mux.HandleFunc("GET /api/pageviews/site", pv.HandleSite)
	mux.HandleFunc("GET /api/pageviews/top", pv.HandleTop)

	// 3. Site customization
	if siteH != nil {
		mux.HandleFunc("GET /api/site/head", siteH.HandleHead)
		mux.HandleFunc("GET /api/site/link", siteH.HandleLink)
		mux.HandleFunc("GET /api/site/redlink", siteH.HandleRedlink)
		mux.HandleFunc("GET /api/site/footer", siteH.HandleFooter)
		mux.HandleFunc("POST /api/site/sidebar", siteH.HandleSidebar)
	}

	// 4. Diagnostics
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      RequestID(LogRequests(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
