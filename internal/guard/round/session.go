// Package round holds the explicit per-invocation round context: which round
// is selected, its lifecycle, and the memo cache scoped to it.
package round

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/cache"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

var ErrNoRound = errors.New("no round selected")

const MinContributors = 10

type Session struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger

	mu        sync.Mutex
	current   model.Round
	lifecycle model.Lifecycle
	selected  bool
}

type SessionConfig struct {
	Cache  cache.Cache
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{cache: cfg.Cache, ttl: cfg.TTL, now: cfg.Now, log: cfg.Logger.Named("session")}
}

// Select makes r the current round. Switching to a different round, or the
// same round crossing into another lifecycle, drops everything memoized for
// the previous selection.
func (s *Session) Select(ctx context.Context, r model.Round) (model.Lifecycle, error) {
	s.mu.Lock()
	prev, prevLC, had := s.current, s.lifecycle, s.selected
	s.current, s.selected = r, true
	s.lifecycle = r.LifecycleAt(s.now())
	lc := s.lifecycle
	s.mu.Unlock()

	if had && (prev.ID != r.ID || prevLC != lc) {
		if err := s.cache.DeletePrefix(ctx, prefix(prev.ID)); err != nil {
			return lc, err
		}
		s.log.Debug("round switched", zap.String("from", prev.ID), zap.String("to", r.ID))
	}
	return lc, nil
}

func (s *Session) Current() (model.Round, model.Lifecycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selected {
		return model.Round{}, "", ErrNoRound
	}
	return s.current, s.lifecycle, nil
}

// Invalidate drops the current round's memoized values.
func (s *Session) Invalidate(ctx context.Context) error {
	r, _, err := s.Current()
	if err != nil {
		return err
	}
	return s.cache.DeletePrefix(ctx, prefix(r.ID))
}

func prefix(roundID string) string { return "round:" + roundID + ":" }

// Memo returns the cached value for name under the current round, building
// and storing it on a miss. Build errors are not cached.
func Memo[T any](ctx context.Context, s *Session, name string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	r, _, err := s.Current()
	if err != nil {
		return zero, err
	}
	key := prefix(r.ID) + name

	var v T
	if ok, err := s.cache.Get(ctx, key, &v); err == nil && ok {
		return v, nil
	} else if err != nil {
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err = build(ctx)
	if err != nil {
		return zero, err
	}
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// Eligible keeps rounds with more than MinContributors contributors, newest
// start first.
func Eligible(rounds []model.Round) []model.Round {
	out := make([]model.Round, 0, len(rounds))
	for _, r := range rounds {
		if r.UniqueContributors > MinContributors {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out
}
