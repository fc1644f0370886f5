package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

type CollectorConfig struct {
	ChainID  int64
	Store    store.VersionedDocumentStore
	Explorer explorer.Client
	Retry    retry.Policy
	Pacer    *explorer.Pacer

	// Concurrency bounds in-flight addresses; 1 keeps the fetch sequential.
	Concurrency int
	Now         func() time.Time
	Logger      *zap.Logger
}

// WalletCollector keeps the chain's wallet-feature cache document current.
type WalletCollector struct {
	cfg CollectorConfig
	key string
	log *zap.Logger
}

type CollectResult struct {
	Wallets map[string]Wallet
	Fetched int
	Failed  []retry.Failure
}

func NewWalletCollector(cfg CollectorConfig) (*WalletCollector, error) {
	if cfg.Store == nil {
		return nil, errors.New("wallet collector: store is nil")
	}
	if cfg.Explorer == nil {
		return nil, errors.New("wallet collector: explorer is nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WalletCollector{
		cfg: cfg,
		key: store.ChainKey(cfg.ChainID, store.WalletFeaturesDoc),
		log: cfg.Logger.Named("wallets"),
	}, nil
}

// Load returns the cached wallet features keyed by canonical address.
func (c *WalletCollector) Load(ctx context.Context) (map[string]Wallet, error) {
	doc, _, err := store.Load(ctx, c.cfg.Store, c.key)
	if err != nil {
		return nil, err
	}
	return decodeWallets(doc.Content)
}

// Collect fetches features for every contributor missing from the cache and
// merges them back. Failed addresses are returned, never fatal.
func (c *WalletCollector) Collect(ctx context.Context, contributors []string) (CollectResult, error) {
	cached, err := c.Load(ctx)
	if err != nil {
		return CollectResult{}, err
	}
	missing := make([]string, 0)
	for _, a := range addr.NewSet(contributors...).Slice() {
		if _, ok := cached[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		c.log.Debug("no new contributors", zap.Int("cached", len(cached)))
		return CollectResult{Wallets: cached}, nil
	}
	c.log.Info("collecting wallet features", zap.Int("missing", len(missing)), zap.Int("cached", len(cached)))

	var (
		mu      sync.Mutex
		fetched = make(map[string]Wallet, len(missing))
		batch   retry.Batch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, a := range missing {
		g.Go(func() error {
			if err := c.cfg.Pacer.Wait(gctx); err != nil {
				return err
			}
			var w Wallet
			n, err := retry.DoN(gctx, c.cfg.Retry, func(ctx context.Context) error {
				var ferr error
				w, ferr = c.fetch(ctx, a)
				return ferr
			})
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			batch.Record(a, n, err)
			if err != nil {
				c.log.Warn("wallet fetch failed", zap.String("address", a), zap.Int("attempts", n), zap.Error(err))
				return nil
			}
			mu.Lock()
			fetched[a] = w
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CollectResult{}, err
	}

	if len(fetched) > 0 {
		err := store.Update(ctx, c.cfg.Store, c.key, func(cur []byte, _ bool) ([]byte, error) {
			merged, err := decodeWallets(cur)
			if err != nil {
				return nil, err
			}
			for k, w := range fetched {
				merged[k] = w
			}
			return json.Marshal(merged)
		})
		if err != nil {
			return CollectResult{}, fmt.Errorf("persist wallet features: %w", err)
		}
	}

	for k, w := range fetched {
		cached[k] = w
	}
	return CollectResult{Wallets: cached, Fetched: len(fetched), Failed: batch.Failed()}, nil
}

func (c *WalletCollector) fetch(ctx context.Context, address string) (Wallet, error) {
	txs, err := c.cfg.Explorer.Transactions(ctx, address, explorer.TxList)
	if err != nil {
		return Wallet{}, err
	}
	tokenTxs, err := c.cfg.Explorer.Transactions(ctx, address, explorer.TokenTx)
	if err != nil {
		return Wallet{}, err
	}
	return ComputeWallet(address, txs, tokenTxs, c.cfg.Now()), nil
}

func decodeWallets(b []byte) (map[string]Wallet, error) {
	out := make(map[string]Wallet)
	if len(b) == 0 {
		return out, nil
	}
	var raw map[string]Wallet
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode wallet features: %w", err)
	}
	for k, w := range raw {
		out[addr.Canonical(k)] = w
	}
	return out, nil
}
