package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"pageviewinfo/pkg/logging"
)

// GoogleConfig holds the settings needed to talk to the Google Analytics Data API.
type GoogleConfig struct {
	// PropertyID is either a bare numeric id or "properties/<id>".
	PropertyID      string
	CredentialsFile string
	UserAgent       string
}

// GoogleSource implements Source on top of the Analytics Data API batchRunReports call.
type GoogleSource struct {
	svc      *analyticsdata.Service
	property string
}

// NewGoogleSource creates a Source bound to one analytics property.
// Extra options are appended after the ones derived from cfg, so callers
// can override the endpoint or HTTP client.
func NewGoogleSource(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*GoogleSource, error) {
	if cfg.PropertyID == "" {
		return nil, fmt.Errorf("analytics: property id is required")
	}

	clientOpts := []option.ClientOption{
		option.WithScopes(analyticsdata.AnalyticsReadonlyScope),
	}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.UserAgent != "" {
		clientOpts = append(clientOpts, option.WithUserAgent(cfg.UserAgent))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := analyticsdata.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics data client: %w", err)
	}

	return &GoogleSource{
		svc:      svc,
		property: PropertyName(cfg.PropertyID),
	}, nil
}

// PropertyName returns the resource name for a property id.
func PropertyName(id string) string {
	if strings.HasPrefix(id, "properties/") {
		return id
	}
	return "properties/" + id
}

// CustomDimension returns the API name of an event-scoped custom dimension.
func CustomDimension(param string) string {
	return "customEvent:" + param
}

// BatchGet runs up to MaxBatchRequests report requests in one API call.
func (s *GoogleSource) BatchGet(ctx context.Context, reqs []*ReportRequest) ([]*Report, error) {
	if len(reqs) > MaxBatchRequests {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRequests, len(reqs), MaxBatchRequests)
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	body := &analyticsdata.BatchRunReportsRequest{
		Requests: make([]*analyticsdata.RunReportRequest, 0, len(reqs)),
	}
	for _, r := range reqs {
		body.Requests = append(body.Requests, toRunReportRequest(r))
	}

	slog.Debug("Analytics batchRunReports", "property", s.property, "requests", len(reqs))
	logging.TraceDefault("Analytics report filters", "filters", FilterExpressions(reqs))
	resp, err := s.svc.Properties.BatchRunReports(s.property, body).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, 0, len(resp.Reports))
	for _, rep := range resp.Reports {
		reports = append(reports, fromRunReportResponse(rep))
	}
	return reports, nil
}

func toRunReportRequest(r *ReportRequest) *analyticsdata.RunReportRequest {
	rr := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: r.StartDate, EndDate: r.EndDate}},
		Metrics:    []*analyticsdata.Metric{{Name: r.Metric}},
		Limit:      r.Limit,
	}
	for _, d := range r.Dimensions {
		rr.Dimensions = append(rr.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	if r.Filter != nil {
		rr.DimensionFilter = &analyticsdata.FilterExpression{
			Filter: &analyticsdata.Filter{
				FieldName: r.Filter.Dimension,
				StringFilter: &analyticsdata.StringFilter{
					MatchType:     r.Filter.MatchType,
					Value:         r.Filter.Expression,
					CaseSensitive: true,
				},
			},
		}
	}
	if r.OrderDesc {
		rr.OrderBys = []*analyticsdata.OrderBy{{
			Desc:   true,
			Metric: &analyticsdata.MetricOrderBy{MetricName: r.Metric},
		}}
	}
	return rr
}

func fromRunReportResponse(resp *analyticsdata.RunReportResponse) *Report {
	rep := &Report{}
	if resp == nil {
		return rep
	}
	for _, row := range resp.Rows {
		if row == nil {
			continue
		}
		r := Row{
			Dimensions: make([]string, 0, len(row.DimensionValues)),
			Metrics:    make([]string, 0, len(row.MetricValues)),
		}
		for _, d := range row.DimensionValues {
			if d == nil {
				r.Dimensions = append(r.Dimensions, "")
				continue
			}
			r.Dimensions = append(r.Dimensions, d.Value)
		}
		for _, m := range row.MetricValues {
			if m == nil {
				r.Metrics = append(r.Metrics, "")
				continue
			}
			r.Metrics = append(r.Metrics, m.Value)
		}
		rep.Rows = append(rep.Rows, r)
	}
	return rep
}
