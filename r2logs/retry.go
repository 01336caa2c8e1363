package r2logs

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds retries of transient backend failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// MinBackoff is the wait before the first retry.
	MinBackoff time.Duration

	// MaxBackoff caps the exponential growth of the wait.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from
// 200ms up to 5s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		MinBackoff: 200 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.MinBackoff,
		Max:    p.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}
}

// do calls fn until it succeeds, fails permanently, or runs out of attempts.
// The last error from fn is returned unchanged.
func (p RetryPolicy) do(ctx context.Context, log zerolog.Logger, op, key string, fn func() error) error {
	bo := p.backoff()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= p.attempts() || ctx.Err() != nil || !isRetryable(err) {
			return err
		}

		wait := bo.Duration()
		log.Warn().
			Err(err).
			Str("op", op).
			Str("key", key).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("retrying backend request")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// isRetryable reports whether a backend error may succeed on a later try.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
		return false
	}
	var perm *PermanentError
	return !errors.As(err, &perm)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
