package analytics

import (
	"context"
	"errors"
)

// MaxBatchRequests is the number of report requests the reporting API
// accepts in one batch call.
const MaxBatchRequests = 5

// ErrTooManyRequests is returned when a batch exceeds MaxBatchRequests.
var ErrTooManyRequests = errors.New("too many report requests in one batch")

// Match types for dimension filters.
const (
	MatchExact  = "EXACT"
	MatchRegexp = "FULL_REGEXP"
)

// Well-known dimension names.
const (
	DimensionDate      = "date"
	DimensionPageTitle = "pageTitle"
)

// Source runs batches of report requests.
type Source interface {
	BatchGet(ctx context.Context, reqs []*ReportRequest) ([]*Report, error)
}

// ReportRequest is one query unit: a metric grouped by dimensions over
// a relative date window, optionally filtered and sorted.
type ReportRequest struct {
	// StartDate and EndDate use the API's relative form ("5daysAgo", "yesterday").
	StartDate  string
	EndDate    string
	Metric     string
	Dimensions []string
	Filter     *DimensionFilter
	// OrderDesc sorts rows by Metric, highest first.
	OrderDesc bool
	Limit     int64
}

// DimensionFilter restricts rows to those whose dimension matches Expression.
type DimensionFilter struct {
	Dimension  string
	MatchType  string
	Expression string
}

// Report is the response to a single ReportRequest.
type Report struct {
	Rows []Row
}

// Row holds dimension values followed by metric values, in request order.
type Row struct {
	Dimensions []string
	Metrics    []string
}

// FilterExpressions collects the filter expressions of the given requests,
// in order. Requests without a filter are skipped.
func FilterExpressions(reqs []*ReportRequest) []string {
	exps := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.Filter == nil {
			continue
		}
		exps = append(exps, r.Filter.Expression)
	}
	return exps
}
