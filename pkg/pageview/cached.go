package pageview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"pageviewinfo/pkg/cache"
	"pageviewinfo/pkg/tracker"
)

// MinCachedDays is the shortest window fetched on a cache miss.
const MinCachedDays = 30

// CachedOptions configures a CachedService.
type CachedOptions struct {
	// CachedDays is the window fetched on a miss. Raised to MinCachedDays.
	CachedDays int
	Logger     *slog.Logger
	Tracker    *tracker.Tracker
}

// CachedService serves results from a cache and falls back to the wrapped
// Service. Entries live until the wrapped service's CacheExpiry.
type CachedService struct {
	svc        Service
	cache      cache.Cacher
	cachedDays int
	logger     *slog.Logger
	tracker    *tracker.Tracker
	group      singleflight.Group
}

var _ Service = (*CachedService)(nil)

// NewCachedService wraps svc with cache c.
func NewCachedService(svc Service, c cache.Cacher, opts CachedOptions) *CachedService {
	s := &CachedService{
		svc:        svc,
		cache:      c,
		cachedDays: max(MinCachedDays, opts.CachedDays),
		logger:     opts.Logger,
		tracker:    opts.Tracker,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CachedDays returns the window length fetched on a miss.
func (s *CachedService) CachedDays() int { return s.cachedDays }

func (s *CachedService) CacheExpiry(metric Metric, scope Scope) time.Duration {
	return s.svc.CacheExpiry(metric, scope)
}

func (s *CachedService) Supports(metric Metric, scope Scope) bool {
	return s.svc.Supports(metric, scope)
}

func pageKey(metric Metric, title string) string {
	return "pv:page:" + string(metric) + ":" + title
}

func siteKey(metric Metric) string { return "pv:site:" + string(metric) }

func topKey(metric Metric) string { return "pv:top:" + string(metric) }

func (s *CachedService) PageData(ctx context.Context, titles []string, days int, metric Metric) (*PageDataResult, error) {
	result := newPageDataResult()
	if len(titles) == 0 {
		return result, nil
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: invalid days: %d", ErrInvalidArgument, days)
	}
	if _, err := metric.apiName(); err != nil {
		return nil, err
	}

	var misses []string
	seen := make(map[string]bool, len(titles))
	for _, title := range titles {
		if seen[title] {
			continue
		}
		seen[title] = true

		if series, ok := s.lookupSeries(ctx, pageKey(metric, title), days, ScopeArticle); ok {
			result.Values[title] = series.Last(days)
			result.Success[title] = true
			continue
		}
		misses = append(misses, title)
	}

	if len(misses) > 0 {
		fetchDays := max(s.cachedDays, days)
		sfKey := "page:" + string(metric) + ":" + strconv.Itoa(fetchDays) + ":" + strings.Join(misses, "|")
		v, err, _ := s.group.Do(sfKey, func() (any, error) {
			return s.svc.PageData(ctx, misses, fetchDays, metric)
		})
		if err != nil {
			return nil, err
		}
		fetched := v.(*PageDataResult)

		ttl := s.svc.CacheExpiry(metric, ScopeArticle)
		for _, title := range misses {
			series := fetched.Values[title]
			ok := fetched.Success[title]
			result.Values[title] = series.Last(days)
			result.Success[title] = ok
			if ok {
				s.store(ctx, pageKey(metric, title), series, ttl)
			}
		}
		result.Errors = append(result.Errors, fetched.Errors...)
	}

	result.tally()
	return result, nil
}

func (s *CachedService) SiteData(ctx context.Context, days int, metric Metric) (*SiteDataResult, error) {
	if _, err := metric.apiName(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: invalid days: %d", ErrInvalidArgument, days)
	}

	key := siteKey(metric)
	if series, ok := s.lookupSeries(ctx, key, days, ScopeSite); ok {
		return &SiteDataResult{Values: series.Last(days)}, nil
	}

	fetchDays := max(s.cachedDays, days)
	v, err, _ := s.group.Do(key+":"+strconv.Itoa(fetchDays), func() (any, error) {
		return s.svc.SiteData(ctx, fetchDays, metric)
	})
	if err != nil {
		return nil, err
	}
	fetched := v.(*SiteDataResult)
	if fetched.OK() {
		s.store(ctx, key, fetched.Values, s.svc.CacheExpiry(metric, ScopeSite))
	}
	return &SiteDataResult{Values: fetched.Values.Last(days), Error: fetched.Error}, nil
}

func (s *CachedService) TopPages(ctx context.Context, metric Metric) (*TopPagesResult, error) {
	if _, err := metric.apiName(); err != nil {
		return nil, err
	}

	key := topKey(metric)
	if data, ok := s.cache.GetCache(ctx, key); ok {
		var pages []TopPage
		if err := json.Unmarshal(data, &pages); err == nil {
			s.tracker.TrackCacheHit(string(ScopeTop))
			return &TopPagesResult{Pages: pages}, nil
		}
		s.logger.Warn("Discarding undecodable cache entry", "key", key)
	}
	s.tracker.TrackCacheMiss(string(ScopeTop))

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.svc.TopPages(ctx, metric)
	})
	if err != nil {
		return nil, err
	}
	fetched := v.(*TopPagesResult)
	if fetched.OK() {
		s.store(ctx, key, fetched.Pages, s.svc.CacheExpiry(metric, ScopeTop))
	}
	return &TopPagesResult{Pages: append([]TopPage(nil), fetched.Pages...), Error: fetched.Error}, nil
}

// lookupSeries returns a cached series covering at least days days.
func (s *CachedService) lookupSeries(ctx context.Context, key string, days int, scope Scope) (DateSeries, bool) {
	data, ok := s.cache.GetCache(ctx, key)
	if ok {
		var series DateSeries
		if err := json.Unmarshal(data, &series); err != nil {
			s.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		} else if len(series) >= days {
			s.tracker.TrackCacheHit(string(scope))
			return series, true
		}
	}
	s.tracker.TrackCacheMiss(string(scope))
	return nil, false
}

func (s *CachedService) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := s.cache.SetCache(ctx, key, data, ttl); err != nil {
		s.logger.Warn("Failed to write cache entry", "key", key, "error", err)
	}
}
