package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAttempts   = 5
	defaultBaseDelay  = time.Second
	defaultMaxBackoff = time.Minute
)

type RetryPolicy struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxBackoff time.Duration
}

// Retrying retries rate-limited fetches with exponential backoff and jitter.
// Other errors are returned as is.
type Retrying struct {
	next   Source
	policy RetryPolicy
	logger *zap.Logger

	wait   func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

func WithRetry(next Source, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if policy.Attempts <= 0 {
		policy.Attempts = defaultAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBaseDelay
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = defaultMaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retrying{
		next:   next,
		policy: policy,
		logger: logger,
		wait:   utils.WaitFor,
		jitter: rand.Int64N,
	}
}

func (r *Retrying) Fetch(ctx context.Context, q Query, cur domain.Cursor) (Page, error) {
	var lastErr error

	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		page, err := r.next.Fetch(ctx, q, cur)
		if err == nil {
			return page, nil
		}

		var limited *RateLimitedError
		if !errors.As(err, &limited) {
			return Page{}, err
		}
		lastErr = err

		if attempt == r.policy.Attempts-1 {
			break
		}

		delay := max(r.backoff(attempt), limited.RetryAfter)
		r.logger.Warn("upstream rate limited",
			zap.String("query", q.Key),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		if err := r.wait(ctx, delay); err != nil {
			return Page{}, err
		}
	}

	return Page{}, fmt.Errorf("giving up after %d attempts: %w", r.policy.Attempts, lastErr)
}

func (r *Retrying) backoff(attempt int) time.Duration {
	d := r.policy.BaseDelay << attempt
	if d <= 0 || d > r.policy.MaxBackoff {
		d = r.policy.MaxBackoff
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(r.jitter(half))
	}
	return min(d, r.policy.MaxBackoff)
}

// Limited spaces out upstream requests with a token bucket shared by all
// queries of a run.
type Limited struct {
	next    Source
	limiter *rate.Limiter
}

func WithRateLimit(next Source, perSecond float64, burst int) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Fetch(ctx context.Context, q Query, cur domain.Cursor) (Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	return l.next.Fetch(ctx, q, cur)
}
