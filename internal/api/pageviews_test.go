package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageviewinfo/pkg/pageview"
)

type pageDataCall struct {
	titles []string
	days   int
	metric pageview.Metric
}

type fakeService struct {
	pageData *pageview.PageDataResult
	site     *pageview.SiteDataResult
	top      *pageview.TopPagesResult
	err      error
	calls    []pageDataCall
}

func (f *fakeService) PageData(_ context.Context, titles []string, days int, metric pageview.Metric) (*pageview.PageDataResult, error) {
	f.calls = append(f.calls, pageDataCall{titles: titles, days: days, metric: metric})
	return f.pageData, f.err
}

func (f *fakeService) SiteData(_ context.Context, days int, metric pageview.Metric) (*pageview.SiteDataResult, error) {
	f.calls = append(f.calls, pageDataCall{days: days, metric: metric})
	return f.site, f.err
}

func (f *fakeService) TopPages(_ context.Context, metric pageview.Metric) (*pageview.TopPagesResult, error) {
	f.calls = append(f.calls, pageDataCall{metric: metric})
	return f.top, f.err
}

func (f *fakeService) CacheExpiry(pageview.Metric, pageview.Scope) time.Duration {
	return 90 * time.Minute
}

func (f *fakeService) Supports(pageview.Metric, pageview.Scope) bool { return true }

func ptr(i int) *int { return &i }

func serve(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandlePages(t *testing.T) {
	svc := &fakeService{pageData: &pageview.PageDataResult{
		Values: map[string]pageview.DateSeries{
			"Main_Page": {"2000-01-04": ptr(3), "2000-01-05": nil},
		},
		Success:      map[string]bool{"Main_Page": true},
		SuccessCount: 1,
	}}
	h := NewPageviewHandler(svc, 60)

	rec := serve(t, h.HandlePages, "/api/pageviews/pages?titles=Main%20Page&days=2&metric=uniques")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=5400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.Len(t, svc.calls, 1)
	assert.Equal(t, pageDataCall{titles: []string{"Main_Page"}, days: 2, metric: pageview.MetricUnique}, svc.calls[0])

	var body struct {
		Metric       string                     `json:"metric"`
		Days         int                        `json:"days"`
		Values       map[string]map[string]*int `json:"values"`
		SuccessCount int                        `json:"success_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "uniques", body.Metric)
	assert.Equal(t, 2, body.Days)
	assert.Equal(t, 1, body.SuccessCount)
	assert.Equal(t, map[string]*int{"2000-01-04": ptr(3), "2000-01-05": nil}, body.Values["Main_Page"])
}

func TestHandlePages_BadRequests(t *testing.T) {
	h := NewPageviewHandler(&fakeService{}, 60)

	for _, target := range []string{
		"/api/pageviews/pages",
		"/api/pageviews/pages?titles=%7C%7C",
		"/api/pageviews/pages?titles=A&days=0",
		"/api/pageviews/pages?titles=A&days=abc",
		"/api/pageviews/pages?titles=A&days=61",
		"/api/pageviews/pages?titles=A&metric=edits",
	} {
		rec := serve(t, h.HandlePages, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandlePages_DefaultsAndSplit(t *testing.T) {
	svc := &fakeService{pageData: &pageview.PageDataResult{}}
	h := NewPageviewHandler(svc, 60)

	rec := serve(t, h.HandlePages, "/api/pageviews/pages?titles=A%7C%20B%20C%20%7C")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, []string{"A", "B_C"}, svc.calls[0].titles)
	assert.Equal(t, DefaultDays, svc.calls[0].days)
	assert.Equal(t, pageview.MetricView, svc.calls[0].metric)
}

func TestHandlePages_AllFailed(t *testing.T) {
	svc := &fakeService{pageData: &pageview.PageDataResult{
		Values:    map[string]pageview.DateSeries{"A": {"2000-01-05": nil}},
		Success:   map[string]bool{"A": false},
		FailCount: 1,
		Errors:    []error{fmt.Errorf("%w: quota", pageview.ErrInvalidResponse)},
	}}
	h := NewPageviewHandler(svc, 60)

	rec := serve(t, h.HandlePages, "/api/pageviews/pages?titles=A&days=1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "quota")
}

func TestHandlePages_ServiceErrors(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("%w: invalid days", pageview.ErrInvalidArgument)}
	rec := serve(t, NewPageviewHandler(svc, 0).HandlePages, "/api/pageviews/pages?titles=A&days=400")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc = &fakeService{err: errors.New("disk full")}
	rec = serve(t, NewPageviewHandler(svc, 60).HandlePages, "/api/pageviews/pages?titles=A")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestHandleSite(t *testing.T) {
	svc := &fakeService{site: &pageview.SiteDataResult{Values: pageview.DateSeries{"2000-01-05": ptr(11)}}}
	h := NewPageviewHandler(svc, 60)

	rec := serve(t, h.HandleSite, "/api/pageviews/site?days=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"metric":"pageviews","days":1,"values":{"2000-01-05":11}}`, rec.Body.String())

	svc.site = &pageview.SiteDataResult{
		Values: pageview.DateSeries{"2000-01-05": nil},
		Error:  errors.New("backend unavailable"),
	}
	rec = serve(t, h.HandleSite, "/api/pageviews/site?days=1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"metric":"pageviews","days":1,"values":{"2000-01-05":null},"error":"backend unavailable"}`, rec.Body.String())
}

func TestHandleTop(t *testing.T) {
	svc := &fakeService{top: &pageview.TopPagesResult{Pages: []pageview.TopPage{
		{Title: "Main_Page", Count: 30},
		{Title: "Help", Count: 4},
	}}}
	h := NewPageviewHandler(svc, 60)

	rec := serve(t, h.HandleTop, "/api/pageviews/top?metric=pageviews")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"metric":"pageviews","pages":[{"title":"Main_Page","count":30},{"title":"Help","count":4}]}`, rec.Body.String())

	svc.top = &pageview.TopPagesResult{Error: errors.New("quota")}
	rec = serve(t, h.HandleTop, "/api/pageviews/top")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"metric":"pageviews","pages":[],"error":"quota"}`, rec.Body.String())

	rec = serve(t, h.HandleTop, "/api/pageviews/top?metric=edits")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
