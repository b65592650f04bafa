package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type limited struct {
	next Generator
	sem  *semaphore.Weighted
}

// Limit caps the number of generation calls in flight across all callers
// sharing the returned Generator. n < 1 disables the cap.
func Limit(next Generator, n int) Generator {
	if n < 1 {
		return next
	}
	return &limited{next: next, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limited) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for generation slot: %w", err)
	}
	defer l.sem.Release(1)
	return l.next.Generate(ctx, prompt, modelName, opts)
}
