package pageview

import (
	"sync"
	"time"
)

const isoDate = "2006-01-02"

// LastCompleteDay returns midnight of the day before now, in loc.
// The current day only has partial data.
func LastCompleteDay(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	y, m, d := n.Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, loc)
}

// DateRange produces the null-filled date windows that every result is
// built on. Windows end at the reference day and are cached until the
// reference day changes.
type DateRange struct {
	mu    sync.Mutex
	ref   time.Time
	cache map[int][]string
}

// NewDateRange creates a DateRange ending at the given day.
func NewDateRange(lastCompleteDay time.Time) *DateRange {
	return &DateRange{
		ref:   lastCompleteDay,
		cache: make(map[int][]string),
	}
}

// Reference returns the last day of every window.
func (r *DateRange) Reference() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ref
}

// SetReference moves the window end. Cached windows are dropped when the
// calendar day changes.
func (r *DateRange) SetReference(day time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sameDay(r.ref, day) {
		return
	}
	r.ref = day
	r.cache = make(map[int][]string)
}

// Days returns the ISO dates of a window of the given length, oldest first.
func (r *DateRange) Days(days int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[days]; ok {
		return cached
	}

	// Calendar arithmetic at noon keeps DST shifts away from the date part.
	y, m, d := r.ref.Date()
	out := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, time.Date(y, m, d-i, 12, 0, 0, 0, time.UTC).Format(isoDate))
	}
	r.cache[days] = out
	return out
}

// Empty returns a fresh series for the window with every day set to nil.
func (r *DateRange) Empty(days int) DateSeries {
	dates := r.Days(days)
	s := make(DateSeries, len(dates))
	for _, d := range dates {
		s[d] = nil
	}
	return s
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// isoFromCompact converts the API's YYYYMMDD date dimension to YYYY-MM-DD.
func isoFromCompact(s string) (string, bool) {
	if len(s) != 8 {
		return "", false
	}
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8], true
}
