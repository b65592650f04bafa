package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/quizgen/internal/model"
)

// RetryPolicy bounds how a generation call is retried.
type RetryPolicy struct {
	MaxRetries     int           // additional attempts after the first
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 10s
	Timeout        time.Duration // per attempt; 0 means none
}

type retrying struct {
	next   Generator
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// Retry wraps next so that transient failures are retried with jittered
// exponential backoff and every attempt gets its own timeout.
func Retry(next Generator, policy RetryPolicy) Generator {
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 10 * time.Second
	}
	return &retrying{next: next, policy: policy, sleep: sleepCtx}
}

func (r *retrying) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	backoff := r.policy.InitialBackoff
	for attempt := 0; ; attempt++ {
		out, err := r.attempt(ctx, prompt, modelName, opts)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil || attempt >= r.policy.MaxRetries || !IsRetryable(err) {
			return "", err
		}

		wait := jitter(backoff)
		slog.Warn("generation retrying",
			"model", modelName,
			"attempt", attempt+1,
			"max_retries", r.policy.MaxRetries,
			"sleep", wait.String(),
			"error", err,
		)
		if err := r.sleep(ctx, wait); err != nil {
			return "", err
		}
		backoff = min(backoff*2, r.policy.MaxBackoff)
	}
}

func (r *retrying) attempt(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	return r.next.Generate(ctx, prompt, modelName, opts)
}

// IsRetryable reports whether a generation failure is worth another attempt:
// timeouts, transport errors and 408, 429 or 5xx responses.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoText) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ge *model.GenerationError
	if !errors.As(err, &ge) {
		return false
	}
	switch code := ge.StatusCode; {
	case code == 0:
		return true
	case code == 408 || code == 429:
		return true
	default:
		return code >= 500 && code <= 599
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
