// Package recycle traces matched funds flowing from grantees back into the
// voter pool.
package recycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
)

// Map is grantee -> voters that received funds from it after round start.
type Map map[string][]string

// NonEmpty drops grantees with no recycled voters.
func (m Map) NonEmpty() Map {
	out := make(Map, len(m))
	for g, vs := range m {
		if len(vs) > 0 {
			out[g] = vs
		}
	}
	return out
}

// Members flattens the map into distinct voters, sorted.
func (m Map) Members() []string {
	set := addr.NewSet()
	for _, vs := range m {
		for _, v := range vs {
			set.Add(v)
		}
	}
	out := set.Slice()
	sort.Strings(out)
	return out
}

type Config struct {
	Explorer explorer.Client
	Retry    retry.Policy
	Pacer    *explorer.Pacer
	Logger   *zap.Logger
}

type Tracer struct {
	cfg Config
	log *zap.Logger
}

type Result struct {
	Map    Map
	Failed []retry.Failure
}

func New(cfg Config) (*Tracer, error) {
	if cfg.Explorer == nil {
		return nil, errors.New("recycle tracer: explorer is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Tracer{cfg: cfg, log: cfg.Logger.Named("tracer")}, nil
}

// Trace checks every distinct grantee, in input order. A grantee whose history
// cannot be fetched after all retries is skipped and listed in Result.Failed.
// The map holds an entry, possibly empty, for every grantee that was fetched.
func (t *Tracer) Trace(ctx context.Context, grantees []string, voters *addr.Set, start time.Time) (Result, error) {
	res := Result{Map: make(Map)}
	var batch retry.Batch
	startTS := start.Unix()

	for _, g := range addr.NewSet(grantees...).Slice() {
		if err := t.cfg.Pacer.Wait(ctx); err != nil {
			return res, err
		}
		var recipients *addr.Set
		n, err := retry.DoN(ctx, t.cfg.Retry, func(ctx context.Context) error {
			txs, err := t.cfg.Explorer.Transactions(ctx, g, explorer.TxList)
			if err != nil {
				return err
			}
			recipients = addr.NewSet()
			for _, tx := range txs {
				if tx.TimeStamp >= startTS {
					recipients.Add(tx.To)
				}
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}
		batch.Record(g, n, err)
		if err != nil {
			t.log.Warn("grantee skipped", zap.String("grantee", g), zap.Int("attempts", n), zap.Error(err))
			continue
		}
		res.Map[g] = recipients.Intersect(voters).Slice()
	}
	res.Failed = batch.Failed()
	t.log.Info("trace done",
		zap.Int("grantees", len(res.Map)),
		zap.Int("recyclers", len(res.Map.Members())),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}
