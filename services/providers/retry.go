package providers

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff for provider calls
type RetryPolicy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// RetryPolicyFromConfig derives a backoff policy from provider settings
func RetryPolicyFromConfig(cfg ProviderConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  cfg.MaxRetries,
		InitialWait: cfg.RetryDelay,
		MaxWait:     10 * time.Second,
		Jitter:      true,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// retries are spent. The context is honored while waiting.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	wait := policy.InitialWait

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == policy.MaxRetries {
			return result, err
		}

		sleep := wait
		if policy.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if policy.MaxWait > 0 && sleep > policy.MaxWait {
			sleep = policy.MaxWait
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if policy.MaxWait > 0 && wait > policy.MaxWait {
			wait = policy.MaxWait
		}
	}
	return result, err
}
