package analytics

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffSource delays calls to a Source after it has failed. Each failure
// doubles the pause before the next call, each success shortens it again.
// Failed calls are not retried.
type BackoffSource struct {
	src       Source
	baseDelay time.Duration
	maxDelay  time.Duration

	mu          sync.Mutex
	failures    int
	nextAllowed time.Time
}

// NewBackoffSource wraps src.
func NewBackoffSource(src Source, baseDelay, maxDelay time.Duration) *BackoffSource {
	return &BackoffSource{src: src, baseDelay: baseDelay, maxDelay: maxDelay}
}

func (b *BackoffSource) BatchGet(ctx context.Context, reqs []*ReportRequest) ([]*Report, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	reports, err := b.src.BatchGet(ctx, reqs)
	switch {
	case err == nil:
		b.recordSuccess()
	case errors.Is(err, context.Canceled), errors.Is(err, ErrTooManyRequests):
	default:
		b.recordFailure()
	}
	return reports, err
}

func (b *BackoffSource) wait(ctx context.Context) error {
	b.mu.Lock()
	d := time.Until(b.nextAllowed)
	b.mu.Unlock()
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *BackoffSource) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.nextAllowed = time.Now().Add(b.delay(b.failures))
}

func (b *BackoffSource) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
	}
	if b.failures == 0 {
		b.nextAllowed = time.Time{}
	}
}

// delay is baseDelay * 2^(failures-1), capped at maxDelay, plus up to 10% jitter.
func (b *BackoffSource) delay(failures int) time.Duration {
	// Compared as float so long failure streaks cannot overflow Duration
	f := float64(b.baseDelay) * math.Pow(2, float64(failures-1))
	d := b.maxDelay
	if f < float64(b.maxDelay) {
		d = time.Duration(f)
	}
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// State returns the failure count and the earliest time of the next call.
func (b *BackoffSource) State() (failures int, nextAllowed time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.nextAllowed
}
