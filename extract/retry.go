package extract

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy re-runs a failed tenant extraction with exponential backoff.
// The zero value never retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var errUnitFailed = errors.New("extraction unit failed")

// run calls fn until it reports success, the retries are used up or ctx is done.
// It returns the last result and the number of attempts made.
func (p RetryPolicy) run(ctx context.Context, fn func() TenantResult) (TenantResult, int) {
	var last TenantResult
	attempts := 0
	op := func() error {
		attempts++
		last = fn()
		if last.Success {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(errUnitFailed)
		}
		return errUnitFailed
	}
	if p.MaxRetries <= 0 {
		_ = op()
		return last, attempts
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by MaxRetries alone
	_ = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx))
	return last, attempts
}
