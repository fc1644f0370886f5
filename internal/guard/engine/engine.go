// Package engine wires the detectors, the registry and the review workflow
// around one selected round.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/features"
	"github.com/chenzhangda16/grantguard/internal/guard/indexer"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/out"
	"github.com/chenzhangda16/grantguard/internal/guard/recycle"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/review"
	"github.com/chenzhangda16/grantguard/internal/guard/round"
	"github.com/chenzhangda16/grantguard/internal/guard/snapshot"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

// ErrNotActive: detection only refreshes rounds that are still running.
var ErrNotActive = errors.New("round is not active")

type Config struct {
	ChainID  int64
	Source   indexer.Source
	Explorer explorer.Client
	Store    store.VersionedDocumentStore
	Session  *round.Session
	Sink     out.Sink

	Threshold         float64
	Retry             retry.Policy
	TracePacer        *explorer.Pacer
	WalletPacer       *explorer.Pacer
	WalletConcurrency int
	// wallet enrichment only runs while the round ends at least this far ahead
	EnrichCutoff time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

type Engine struct {
	cfg Config
	log *zap.Logger

	registry *registry.Registry
	snaps    *snapshot.Store
	review   *review.Workflow
	wallets  *features.WalletCollector
	clock    *indexer.BlockClock
	tracer   *recycle.Tracer
}

func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil || cfg.Explorer == nil || cfg.Store == nil {
		return nil, errors.New("engine: source, explorer and store required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Session == nil {
		cfg.Session = round.NewSession(round.SessionConfig{Now: cfg.Now, Logger: cfg.Logger})
	}
	if cfg.Sink == nil {
		cfg.Sink = out.NopSink{}
	}
	if cfg.EnrichCutoff <= 0 {
		cfg.EnrichCutoff = 48 * time.Hour
	}

	e := &Engine{
		cfg:      cfg,
		log:      cfg.Logger.Named("engine"),
		registry: registry.New(cfg.Store, cfg.Logger),
		snaps:    snapshot.New(cfg.Store, cfg.Logger),
	}

	var err error
	e.review, err = review.New(review.Config{
		Store:     cfg.Store,
		Registry:  e.registry,
		Snapshots: e.snaps,
		Now:       cfg.Now,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.wallets, err = features.NewWalletCollector(features.CollectorConfig{
		ChainID:     cfg.ChainID,
		Store:       cfg.Store,
		Explorer:    cfg.Explorer,
		Retry:       cfg.Retry,
		Pacer:       cfg.WalletPacer,
		Concurrency: cfg.WalletConcurrency,
		Now:         cfg.Now,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.clock, err = indexer.NewBlockClock(indexer.BlockClockConfig{
		ChainID:  cfg.ChainID,
		Store:    cfg.Store,
		Explorer: cfg.Explorer,
		Retry:    cfg.Retry,
		Pacer:    cfg.WalletPacer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.tracer, err = recycle.New(recycle.Config{
		Explorer: cfg.Explorer,
		Retry:    cfg.Retry,
		Pacer:    cfg.TracePacer,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() error {
	return e.cfg.Sink.Close()
}

// Registry exposes the shared threat registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Rounds lists the rounds worth reviewing, newest first.
func (e *Engine) Rounds(ctx context.Context) ([]model.Round, error) {
	rs, err := e.cfg.Source.Rounds(ctx)
	if err != nil {
		return nil, err
	}
	return round.Eligible(rs), nil
}

// Select makes roundID the current round and seeds its snapshots while it
// is still running.
func (e *Engine) Select(ctx context.Context, roundID string) (model.Round, model.Lifecycle, error) {
	r, err := indexer.FindRound(ctx, e.cfg.Source, roundID)
	if err != nil {
		return model.Round{}, "", err
	}
	lc, err := e.cfg.Session.Select(ctx, r)
	if err != nil {
		return r, lc, err
	}
	if lc == model.Active {
		if err := e.snaps.Seed(ctx, r.ID); err != nil {
			return r, lc, err
		}
	}
	e.log.Info("round selected", zap.String("round", r.ID), zap.String("name", r.Name), zap.String("lifecycle", string(lc)))
	return r, lc, nil
}

func (e *Engine) emit(ctx context.Context, typ string, ev out.RoundEvent) {
	if err := e.cfg.Sink.Emit(ctx, typ, ev.Round, ev); err != nil {
		// events are an audit trail; the round state is already committed
		e.log.Warn("emit failed", zap.String("type", typ), zap.String("round", ev.Round), zap.Error(err))
	}
}
