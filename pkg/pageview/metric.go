package pageview

import "fmt"

// Metric selects what is counted.
type Metric string

const (
	// MetricView counts every page view.
	MetricView Metric = "pageviews"
	// MetricUnique counts distinct visitors per page and day.
	MetricUnique Metric = "uniques"
)

// Scope selects the granularity of a query.
type Scope string

const (
	ScopeArticle Scope = "article"
	ScopeTop     Scope = "top"
	ScopeSite    Scope = "site"
)

// ParseMetric maps a request parameter to a Metric. An empty string
// selects MetricView.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricView:
		return MetricView, nil
	case MetricUnique:
		return MetricUnique, nil
	}
	return "", fmt.Errorf("%w: invalid metric: %s", ErrInvalidArgument, s)
}

// apiName returns the reporting API metric name.
func (m Metric) apiName() (string, error) {
	switch m {
	case MetricView:
		return "screenPageViews", nil
	case MetricUnique:
		return "totalUsers", nil
	}
	return "", fmt.Errorf("%w: invalid metric: %s", ErrInvalidArgument, m)
}

func supports(metric Metric, scope Scope) bool {
	switch metric {
	case MetricView, MetricUnique:
	default:
		return false
	}
	switch scope {
	case ScopeArticle, ScopeTop, ScopeSite:
		return true
	}
	return false
}
