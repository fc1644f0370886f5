package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

// BlockClock resolves block numbers to timestamps through the explorer and
// caches them in the chain's block_times document.
type BlockClock struct {
	st       store.VersionedDocumentStore
	key      string
	explorer explorer.Client
	retry    retry.Policy
	pacer    *explorer.Pacer
	log      *zap.Logger
}

type BlockClockConfig struct {
	ChainID  int64
	Store    store.VersionedDocumentStore
	Explorer explorer.Client
	Retry    retry.Policy
	Pacer    *explorer.Pacer
	Logger   *zap.Logger
}

func NewBlockClock(cfg BlockClockConfig) (*BlockClock, error) {
	if cfg.Store == nil || cfg.Explorer == nil {
		return nil, errors.New("block clock: store and explorer are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &BlockClock{
		st:       cfg.Store,
		key:      store.ChainKey(cfg.ChainID, store.BlockTimesDoc),
		explorer: cfg.Explorer,
		retry:    cfg.Retry,
		pacer:    cfg.Pacer,
		log:      cfg.Logger.Named("blockclock"),
	}, nil
}

func decodeTimes(b []byte) (map[int64]int64, error) {
	out := make(map[int64]int64)
	if len(b) == 0 {
		return out, nil
	}
	var raw map[string]int64
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode block times: %w", err)
	}
	for k, v := range raw {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode block times: bad block %q", k)
		}
		out[n] = v
	}
	return out, nil
}

func encodeTimes(m map[int64]int64) ([]byte, error) {
	raw := make(map[string]int64, len(m))
	for k, v := range m {
		raw[strconv.FormatInt(k, 10)] = v
	}
	return json.Marshal(raw)
}

// Stamp fills Timestamp on votes that lack one. Blocks that cannot be
// resolved are reported and their votes keep a zero timestamp.
func (c *BlockClock) Stamp(ctx context.Context, votes []model.Vote) ([]model.Vote, []retry.Failure, error) {
	doc, _, err := store.Load(ctx, c.st, c.key)
	if err != nil {
		return nil, nil, err
	}
	known, err := decodeTimes(doc.Content)
	if err != nil {
		return nil, nil, err
	}

	missing := make(map[int64]struct{})
	for _, v := range votes {
		if v.Timestamp == 0 && v.Block > 0 {
			if _, ok := known[v.Block]; !ok {
				missing[v.Block] = struct{}{}
			}
		}
	}
	blocks := make([]string, 0, len(missing))
	for b := range missing {
		blocks = append(blocks, strconv.FormatInt(b, 10))
	}
	sort.Strings(blocks)

	fetched := make(map[int64]int64)
	var failed []retry.Failure
	if len(blocks) > 0 {
		c.log.Info("resolving block timestamps", zap.Int("blocks", len(blocks)))
		batch, err := retry.Each(ctx, c.retry, blocks, func(ctx context.Context, key string) error {
			if err := c.pacer.Wait(ctx); err != nil {
				return err
			}
			n, _ := strconv.ParseInt(key, 10, 64)
			ts, err := c.explorer.BlockTimestamp(ctx, n)
			if err != nil {
				return err
			}
			fetched[n] = ts
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		failed = batch.Failed()
	}

	if len(fetched) > 0 {
		err := store.Update(ctx, c.st, c.key, func(cur []byte, _ bool) ([]byte, error) {
			m, err := decodeTimes(cur)
			if err != nil {
				return nil, err
			}
			for k, v := range fetched {
				m[k] = v
			}
			return encodeTimes(m)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("persist block times: %w", err)
		}
		for k, v := range fetched {
			known[k] = v
		}
	}

	out := make([]model.Vote, len(votes))
	for i, v := range votes {
		if v.Timestamp == 0 {
			v.Timestamp = known[v.Block]
		}
		out[i] = v
	}
	return out, failed, nil
}
