package pageview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"

	"pageviewinfo/pkg/analytics"
	"pageviewinfo/pkg/tracker"
)

// Service answers pageview queries for wiki pages and the whole site.
type Service interface {
	// PageData returns daily counts per title for the last days complete days.
	PageData(ctx context.Context, titles []string, days int, metric Metric) (*PageDataResult, error)
	// SiteData returns daily site-wide counts for the last days complete days.
	SiteData(ctx context.Context, days int, metric Metric) (*SiteDataResult, error)
	// TopPages returns the most viewed pages of the last complete day.
	// Counts of titles that collapse to one wiki title are summed.
	TopPages(ctx context.Context, metric Metric) (*TopPagesResult, error)
	// CacheExpiry returns how long results stay valid.
	CacheExpiry(metric Metric, scope Scope) time.Duration
	Supports(metric Metric, scope Scope) bool
}

// PageTitleKey is the wiki-side name that the custom map assigns to the
// page title dimension.
const PageTitleKey = "mw:page_title"

// Options configures a GAService.
type Options struct {
	CredentialsFile string
	// UseDefaultCredentials allows an empty CredentialsFile and falls back
	// to the environment's application default credentials.
	UseDefaultCredentials bool
	ProfileID             string
	// CustomMap maps analytics custom dimension parameters to wiki names,
	// e.g. "page_title" -> "mw:page_title".
	CustomMap            map[string]string
	ReadCustomDimensions bool
	UserAgent            string
	// FailureBackoff, when positive, pauses reporting calls after a failed
	// one, doubling up to MaxFailureBackoff. Off by default.
	FailureBackoff    time.Duration
	MaxFailureBackoff time.Duration

	// Location decides where a day starts. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	Tracker  *tracker.Tracker
}

// GAService implements Service on top of an analytics report source.
type GAService struct {
	source     analytics.Source
	batchSize  int
	titleDim   string
	readCustom bool
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
	tracker    *tracker.Tracker
	dates      *DateRange
}

var _ Service = (*GAService)(nil)

// NewGAService validates opts and connects to Google Analytics. All
// configuration errors are reported before any network access.
func NewGAService(ctx context.Context, opts Options) (*GAService, error) {
	if err := verifyOptions(opts); err != nil {
		return nil, err
	}

	src, err := analytics.NewGoogleSource(ctx, analytics.GoogleConfig{
		PropertyID:      opts.ProfileID,
		CredentialsFile: opts.CredentialsFile,
		UserAgent:       opts.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return NewGAServiceWithSource(withBackoff(src, opts), opts)
}

// NewGAServiceWithSource builds a service on an existing report source.
func NewGAServiceWithSource(src analytics.Source, opts Options) (*GAService, error) {
	titleDim := analytics.DimensionPageTitle
	if opts.ReadCustomDimensions {
		param, err := customParam(opts.CustomMap, PageTitleKey)
		if err != nil {
			return nil, err
		}
		titleDim = analytics.CustomDimension(param)
	}

	s := &GAService{
		source:     src,
		batchSize:  analytics.MaxBatchRequests,
		titleDim:   titleDim,
		readCustom: opts.ReadCustomDimensions,
		loc:        opts.Location,
		now:        opts.Now,
		logger:     opts.Logger,
		tracker:    opts.Tracker,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	// Skip the current day for which only partial information is available
	s.dates = NewDateRange(LastCompleteDay(s.now(), s.loc))
	return s, nil
}

func withBackoff(src analytics.Source, opts Options) analytics.Source {
	if opts.FailureBackoff <= 0 {
		return src
	}
	return analytics.NewBackoffSource(src, opts.FailureBackoff, max(opts.FailureBackoff, opts.MaxFailureBackoff))
}

func verifyOptions(opts Options) error {
	if opts.ProfileID == "" {
		return fmt.Errorf("%w: profile id is required", ErrConfig)
	}
	if opts.CredentialsFile == "" {
		if opts.UseDefaultCredentials {
			return nil
		}
		return fmt.Errorf("%w: credentials file is required", ErrConfig)
	}
	if _, err := os.Stat(opts.CredentialsFile); err != nil {
		return fmt.Errorf("%w: credentials file: %v", ErrConfig, err)
	}
	return nil
}

// customParam returns the single custom dimension parameter mapped to mwName.
func customParam(m map[string]string, mwName string) (string, error) {
	var params []string
	for param, name := range m {
		if name == mwName {
			params = append(params, param)
		}
	}
	switch len(params) {
	case 0:
		return "", fmt.Errorf("%w: custom map has no entry for %s", ErrConfig, mwName)
	case 1:
		return params[0], nil
	default:
		sort.Strings(params)
		return "", fmt.Errorf("%w: custom map has several entries for %s: %v", ErrConfig, mwName, params)
	}
}

// refresh moves the date window forward once a new day has completed.
func (s *GAService) refresh() {
	s.dates.SetReference(LastCompleteDay(s.now(), s.loc))
}

// LastCompleteDay returns the day every window currently ends on.
func (s *GAService) LastCompleteDay() time.Time {
	return s.dates.Reference()
}

func (s *GAService) Supports(metric Metric, scope Scope) bool {
	return supports(metric, scope)
}

// CacheExpiry returns the time left until the next midnight, when a new
// day of data becomes complete.
func (s *GAService) CacheExpiry(_ Metric, _ Scope) time.Duration {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc).Sub(now)
}

func (s *GAService) PageData(ctx context.Context, titles []string, days int, metric Metric) (*PageDataResult, error) {
	result := newPageDataResult()
	if len(titles) == 0 {
		return result, nil
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: invalid days: %d", ErrInvalidArgument, days)
	}
	apiMetric, err := metric.apiName()
	if err != nil {
		return nil, err
	}
	s.refresh()

	var requests []*analytics.ReportRequest
	var owners []string
	for _, title := range titles {
		if _, dup := result.Values[title]; dup {
			continue
		}
		result.Values[title] = s.dates.Empty(days)
		requests = append(requests, s.pageRequest(title, days, apiMetric))
		owners = append(owners, title)
	}

	for i := 0; i < len(requests); i += s.batchSize {
		end := min(i+s.batchSize, len(requests))
		batch, batchTitles := requests[i:end], owners[i:end]

		reports, err := s.source.BatchGet(ctx, batch)
		if err != nil {
			s.logBatchError(err, batchTitles)
			s.tracker.TrackAPIFailure(string(ScopeArticle))
			for _, title := range batchTitles {
				result.Success[title] = false
			}
			result.Errors = append(result.Errors, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
			continue
		}
		s.tracker.TrackAPISuccess(string(ScopeArticle))

		// A title without rows is a valid empty result.
		for j, title := range batchTitles {
			result.Success[title] = true
			if j >= len(reports) || reports[j] == nil || len(reports[j].Rows) == 0 {
				s.tracker.TrackAPIZero(string(ScopeArticle))
				continue
			}
			s.mergeRows(result.Values[title], reports[j].Rows)
		}
	}

	result.tally()
	return result, nil
}

// pageRequest builds the per-title request. With custom dimensions the
// title is matched exactly; otherwise the reported HTML title is matched
// by pattern, tolerating any site name.
func (s *GAService) pageRequest(title string, days int, apiMetric string) *analytics.ReportRequest {
	filter := &analytics.DimensionFilter{Dimension: s.titleDim}
	if s.readCustom {
		filter.MatchType = analytics.MatchExact
		filter.Expression = title
	} else {
		filter.MatchType = analytics.MatchRegexp
		filter.Expression = titleFilterRegexp(title)
	}
	return &analytics.ReportRequest{
		StartDate:  strconv.Itoa(days) + "daysAgo",
		EndDate:    "yesterday",
		Metric:     apiMetric,
		Dimensions: []string{analytics.DimensionDate, s.titleDim},
		Filter:     filter,
	}
}

// mergeRows writes row counts into series. Days outside the window and
// unparsable rows are skipped.
func (s *GAService) mergeRows(series DateSeries, rows []analytics.Row) {
	for _, row := range rows {
		day, count, ok := parseDayRow(row)
		if !ok {
			s.logger.Debug("Skipping malformed report row", "row", row)
			continue
		}
		if _, inRange := series[day]; !inRange {
			continue
		}
		series[day] = &count
	}
}

func parseDayRow(row analytics.Row) (day string, count int, ok bool) {
	if len(row.Dimensions) == 0 || len(row.Metrics) == 0 {
		return "", 0, false
	}
	day, ok = isoFromCompact(row.Dimensions[0])
	if !ok {
		return "", 0, false
	}
	count, err := strconv.Atoi(row.Metrics[0])
	if err != nil {
		return "", 0, false
	}
	return day, count, true
}

func (s *GAService) logBatchError(err error, titles []string) {
	attrs := []any{"titles", titles, "error", err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		attrs = append(attrs, "code", gerr.Code)
	}
	s.logger.Warn("Analytics batch failed", attrs...)
}

func (s *GAService) SiteData(ctx context.Context, days int, metric Metric) (*SiteDataResult, error) {
	apiMetric, err := metric.apiName()
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: invalid days: %d", ErrInvalidArgument, days)
	}
	s.refresh()

	result := &SiteDataResult{Values: s.dates.Empty(days)}
	req := &analytics.ReportRequest{
		StartDate:  strconv.Itoa(days) + "daysAgo",
		EndDate:    "yesterday",
		Metric:     apiMetric,
		Dimensions: []string{analytics.DimensionDate},
	}

	rows, err := s.single(ctx, ScopeSite, req)
	if err != nil {
		result.Error = err
		return result, nil
	}
	s.mergeRows(result.Values, rows)
	return result, nil
}

// TopPages ranks the pages of the last complete day by metric. Reported
// titles that map to the same wiki title are merged into one entry whose
// count is the sum of theirs, at the position of the first one. A count
// is therefore never just the last reported value for that title.
func (s *GAService) TopPages(ctx context.Context, metric Metric) (*TopPagesResult, error) {
	apiMetric, err := metric.apiName()
	if err != nil {
		return nil, err
	}

	result := &TopPagesResult{}
	req := &analytics.ReportRequest{
		StartDate:  "yesterday",
		EndDate:    "yesterday",
		Metric:     apiMetric,
		Dimensions: []string{s.titleDim},
		OrderDesc:  true,
	}

	rows, err := s.single(ctx, ScopeTop, req)
	if err != nil {
		result.Error = err
		return result, nil
	}

	// Several reported titles can collapse onto one wiki title; their
	// counts are added up and the first position is kept.
	index := make(map[string]int)
	for _, row := range rows {
		if len(row.Dimensions) == 0 || len(row.Metrics) == 0 {
			continue
		}
		count, err := strconv.Atoi(row.Metrics[0])
		if err != nil {
			continue
		}
		title := row.Dimensions[0]
		if !s.readCustom {
			title = PageTitleForMW(title)
		}
		if i, seen := index[title]; seen {
			result.Pages[i].Count += count
			continue
		}
		index[title] = len(result.Pages)
		result.Pages = append(result.Pages, TopPage{Title: title, Count: count})
	}
	return result, nil
}

// single runs one request on its own and returns its rows.
func (s *GAService) single(ctx context.Context, scope Scope, req *analytics.ReportRequest) ([]analytics.Row, error) {
	reports, err := s.source.BatchGet(ctx, []*analytics.ReportRequest{req})
	if err == nil && (len(reports) == 0 || reports[0] == nil) {
		err = errors.New("no report in response")
	}
	if err != nil {
		s.logBatchError(err, nil)
		s.tracker.TrackAPIFailure(string(scope))
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	s.tracker.TrackAPISuccess(string(scope))
	if len(reports[0].Rows) == 0 {
		s.tracker.TrackAPIZero(string(scope))
	}
	return reports[0].Rows, nil
}
