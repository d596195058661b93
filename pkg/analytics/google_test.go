package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *GoogleSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src, err := NewGoogleSource(context.Background(), GoogleConfig{PropertyID: "123456"},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return src
}

func TestGoogleSource_BatchGet(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"reports": [
				{"rows": [
					{"dimensionValues": [{"value": "20000101"}, {"value": "Foo - Wiki"}], "metricValues": [{"value": "12"}]},
					{"dimensionValues": [{"value": "20000102"}, {"value": "Foo - Wiki"}], "metricValues": [{"value": "3"}]}
				]},
				{}
			]
		}`))
	})

	reqs := []*ReportRequest{
		{
			StartDate:  "5daysAgo",
			EndDate:    "yesterday",
			Metric:     "screenPageViews",
			Dimensions: []string{DimensionDate, DimensionPageTitle},
			Filter:     &DimensionFilter{Dimension: DimensionPageTitle, MatchType: MatchRegexp, Expression: "^Foo - [^-]+$"},
		},
		{
			StartDate:  "yesterday",
			EndDate:    "yesterday",
			Metric:     "screenPageViews",
			Dimensions: []string{DimensionPageTitle},
			OrderDesc:  true,
		},
	}

	reports, err := src.BatchGet(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.True(t, strings.HasSuffix(gotPath, "properties/123456:batchRunReports"), "path %q", gotPath)
	sent, ok := gotBody["requests"].([]any)
	require.True(t, ok)
	assert.Len(t, sent, 2)

	assert.Equal(t, []Row{
		{Dimensions: []string{"20000101", "Foo - Wiki"}, Metrics: []string{"12"}},
		{Dimensions: []string{"20000102", "Foo - Wiki"}, Metrics: []string{"3"}},
	}, reports[0].Rows)
	assert.Empty(t, reports[1].Rows)
}

func TestGoogleSource_BatchGet_TooMany(t *testing.T) {
	called := false
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	reqs := make([]*ReportRequest, MaxBatchRequests+1)
	for i := range reqs {
		reqs[i] = &ReportRequest{Metric: "screenPageViews"}
	}
	_, err := src.BatchGet(context.Background(), reqs)
	assert.True(t, errors.Is(err, ErrTooManyRequests))
	assert.False(t, called, "no HTTP call expected")
}

func TestGoogleSource_BatchGet_APIError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "denied"}}`))
	})

	_, err := src.BatchGet(context.Background(), []*ReportRequest{{Metric: "screenPageViews"}})
	assert.Error(t, err)
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "properties/42", PropertyName("42"))
	assert.Equal(t, "properties/42", PropertyName("properties/42"))
}

func TestFilterExpressions(t *testing.T) {
	reqs := []*ReportRequest{
		{Filter: &DimensionFilter{Expression: "a"}},
		{},
		{Filter: &DimensionFilter{Expression: "b"}},
	}
	assert.Equal(t, []string{"a", "b"}, FilterExpressions(reqs))
}
