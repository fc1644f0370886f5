package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Failure is one item that exhausted its attempts.
type Failure struct {
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// Batch collects per-item outcomes. Safe for concurrent Record calls.
type Batch struct {
	mu        sync.Mutex
	succeeded []string
	failed    []Failure
}

func (b *Batch) Record(key string, attempts int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.succeeded = append(b.succeeded, key)
		return
	}
	b.failed = append(b.failed, Failure{Key: key, Attempts: attempts, Err: err, Message: err.Error()})
}

func (b *Batch) Succeeded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.succeeded...)
}

func (b *Batch) Failed() []Failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Failure(nil), b.failed...)
}

// Err joins all failures, nil when every item succeeded.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(b.failed))
	for _, f := range b.failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Key, f.Err))
	}
	return errors.Join(errs...)
}

// Each runs fn for every key under p, sequentially, recording outcomes.
// A failing key never stops the pass; only ctx cancellation does.
func Each(ctx context.Context, p Policy, keys []string, fn func(ctx context.Context, key string) error) (*Batch, error) {
	b := &Batch{}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return b, err
		}
		n, err := DoN(ctx, p, func(ctx context.Context) error { return fn(ctx, k) })
		if err != nil && ctx.Err() != nil {
			return b, ctx.Err()
		}
		b.Record(k, n, err)
	}
	return b, nil
}
