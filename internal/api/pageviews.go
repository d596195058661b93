package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pageviewinfo/pkg/pageview"
)

// DefaultDays is the window used when a request names none.
const DefaultDays = 30

// PageviewHandler serves pageview queries.
type PageviewHandler struct {
	svc     pageview.Service
	maxDays int
}

// NewPageviewHandler creates a handler that accepts windows of up to maxDays.
func NewPageviewHandler(svc pageview.Service, maxDays int) *PageviewHandler {
	return &PageviewHandler{svc: svc, maxDays: maxDays}
}

type pagesResponse struct {
	Metric       pageview.Metric                `json:"metric"`
	Days         int                            `json:"days"`
	Values       map[string]pageview.DateSeries `json:"values"`
	Success      map[string]bool                `json:"success"`
	SuccessCount int                            `json:"success_count"`
	FailCount    int                            `json:"fail_count"`
	Errors       []string                       `json:"errors,omitempty"`
}

type siteResponse struct {
	Metric pageview.Metric     `json:"metric"`
	Days   int                 `json:"days"`
	Values pageview.DateSeries `json:"values"`
	Error  string              `json:"error,omitempty"`
}

type topResponse struct {
	Metric pageview.Metric    `json:"metric"`
	Pages  []pageview.TopPage `json:"pages"`
	Error  string             `json:"error,omitempty"`
}

// HandlePages serves GET /api/pageviews/pages?titles=A|B&days=N&metric=M.
func (h *PageviewHandler) HandlePages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	titles := splitTitles(q.Get("titles"))
	if len(titles) == 0 {
		writeError(w, http.StatusBadRequest, "titles is required")
		return
	}
	days, metric, ok := h.parseWindow(w, r)
	if !ok {
		return
	}

	res, err := h.svc.PageData(r.Context(), titles, days, metric)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := pagesResponse{
		Metric:       metric,
		Days:         days,
		Values:       res.Values,
		Success:      res.Success,
		SuccessCount: res.SuccessCount,
		FailCount:    res.FailCount,
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	if !res.OK() {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	h.setCacheControl(w, metric, pageview.ScopeArticle)
	writeJSON(w, http.StatusOK, resp)
}

// HandleSite serves GET /api/pageviews/site?days=N&metric=M.
func (h *PageviewHandler) HandleSite(w http.ResponseWriter, r *http.Request) {
	days, metric, ok := h.parseWindow(w, r)
	if !ok {
		return
	}

	res, err := h.svc.SiteData(r.Context(), days, metric)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := siteResponse{Metric: metric, Days: days, Values: res.Values}
	if !res.OK() {
		resp.Error = res.Error.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	h.setCacheControl(w, metric, pageview.ScopeSite)
	writeJSON(w, http.StatusOK, resp)
}

// HandleTop serves GET /api/pageviews/top?metric=M.
func (h *PageviewHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	metric, err := pageview.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.TopPages(r.Context(), metric)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := topResponse{Metric: metric, Pages: res.Pages}
	if resp.Pages == nil {
		resp.Pages = []pageview.TopPage{}
	}
	if !res.OK() {
		resp.Error = res.Error.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	h.setCacheControl(w, metric, pageview.ScopeTop)
	writeJSON(w, http.StatusOK, resp)
}

// parseWindow reads days and metric, writing a 400 response when either is invalid.
func (h *PageviewHandler) parseWindow(w http.ResponseWriter, r *http.Request) (int, pageview.Metric, bool) {
	q := r.URL.Query()

	days := DefaultDays
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return 0, "", false
		}
		days = n
	}
	if h.maxDays > 0 && days > h.maxDays {
		writeError(w, http.StatusBadRequest, "days must not exceed "+strconv.Itoa(h.maxDays))
		return 0, "", false
	}

	metric, err := pageview.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, "", false
	}
	return days, metric, true
}

func (h *PageviewHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pageview.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("Pageview query failed", "id", RequestIDFrom(r.Context()), "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *PageviewHandler) setCacheControl(w http.ResponseWriter, metric pageview.Metric, scope pageview.Scope) {
	ttl := h.svc.CacheExpiry(metric, scope)
	if ttl <= 0 {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(ttl/time.Second)))
}

// splitTitles splits a "|" separated title list, turning spaces into
// underscores and dropping empty entries.
func splitTitles(s string) []string {
	var titles []string
	for _, t := range strings.Split(s, "|") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		titles = append(titles, strings.ReplaceAll(t, " ", "_"))
	}
	return titles
}
