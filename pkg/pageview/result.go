package pageview

import (
	"errors"
	"sort"
)

// DateSeries maps ISO dates (YYYY-MM-DD) to a count. A nil count means the
// API returned no data for that day. ISO dates sort chronologically, so
// the JSON encoding of a DateSeries is ordered oldest first.
type DateSeries map[string]*int

// Days returns the dates of the series, oldest first.
func (s DateSeries) Days() []string {
	days := make([]string, 0, len(s))
	for d := range s {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// Last returns a deep copy holding only the most recent n days.
func (s DateSeries) Last(n int) DateSeries {
	days := s.Days()
	if n < len(days) {
		days = days[len(days)-n:]
	}
	out := make(DateSeries, len(days))
	for _, d := range days {
		if v := s[d]; v != nil {
			c := *v
			out[d] = &c
			continue
		}
		out[d] = nil
	}
	return out
}

// PageDataResult is the outcome of a per-title query.
type PageDataResult struct {
	Values       map[string]DateSeries `json:"values"`
	Success      map[string]bool       `json:"success"`
	SuccessCount int                   `json:"success_count"`
	FailCount    int                   `json:"fail_count"`
	// Errors holds one entry per failed batch.
	Errors []error `json:"-"`
}

func newPageDataResult() *PageDataResult {
	return &PageDataResult{
		Values:  make(map[string]DateSeries),
		Success: make(map[string]bool),
	}
}

func (r *PageDataResult) tally() {
	r.SuccessCount = 0
	for _, ok := range r.Success {
		if ok {
			r.SuccessCount++
		}
	}
	r.FailCount = len(r.Success) - r.SuccessCount
}

// OK reports whether at least one title was fetched. A query for no
// titles is OK.
func (r *PageDataResult) OK() bool {
	return r.SuccessCount > 0 || len(r.Success) == 0
}

// Good reports whether every title was fetched.
func (r *PageDataResult) Good() bool {
	return r.OK() && len(r.Errors) == 0
}

// Err joins the batch errors, or returns nil.
func (r *PageDataResult) Err() error {
	return errors.Join(r.Errors...)
}

// SiteDataResult is the outcome of a site-wide query.
type SiteDataResult struct {
	Values DateSeries `json:"values"`
	Error  error      `json:"-"`
}

// OK reports whether the query succeeded.
func (r *SiteDataResult) OK() bool { return r.Error == nil }

// TopPage is one entry of a top-pages ranking.
type TopPage struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// TopPagesResult is the outcome of a top-pages query. Pages keeps the
// API's ranking order.
type TopPagesResult struct {
	Pages []TopPage `json:"pages"`
	Error error     `json:"-"`
}

// OK reports whether the query succeeded.
func (r *TopPagesResult) OK() bool { return r.Error == nil }

// Counts returns the ranking as a title to count map.
func (r *TopPagesResult) Counts() map[string]int {
	m := make(map[string]int, len(r.Pages))
	for _, p := range r.Pages {
		m[p.Title] = p.Count
	}
	return m
}
