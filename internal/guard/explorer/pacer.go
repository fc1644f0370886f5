package explorer

import (
	"context"
	"sync"
	"time"
)

// Pacer pauses before every Every-th call. It is a coarse courtesy limit
// against free-tier explorer quotas, not a token bucket.
type Pacer struct {
	Every int
	Pause time.Duration
	// Sleep replaces the timer wait when set.
	Sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	count int
}

func NewPacer(every int, pause time.Duration) *Pacer {
	return &Pacer{Every: every, Pause: pause}
}

// Wait counts one call and blocks for Pause when the count hits a multiple of Every.
// A nil Pacer never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.Every <= 0 || p.Pause <= 0 {
		return ctx.Err()
	}
	p.mu.Lock()
	p.count++
	hit := p.count%p.Every == 0
	sleep := p.Sleep
	p.mu.Unlock()
	if !hit {
		return ctx.Err()
	}
	if sleep != nil {
		return sleep(ctx, p.Pause)
	}
	t := time.NewTimer(p.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Count reports how many calls were paced so far.
func (p *Pacer) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
