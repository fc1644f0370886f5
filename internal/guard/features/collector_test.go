package features

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

type fakeExplorer struct {
	mu    sync.Mutex
	txs   map[string][]model.Transfer
	fail  map[string]bool
	calls map[string]int
}

func (f *fakeExplorer) Transactions(_ context.Context, a string, action explorer.Action) ([]model.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := addr.Canonical(a)
	f.calls[k]++
	if f.fail[k] {
		return nil, &model.UpstreamFetchError{Address: a, Action: string(action), Err: errors.New("503")}
	}
	if action == explorer.TokenTx {
		return nil, nil
	}
	return f.txs[k], nil
}

func (f *fakeExplorer) BlockTimestamp(context.Context, int64) (int64, error) { return 0, nil }

func TestCollectFetchesOnlyMissingAndRecordsFailures(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, err := st.Put(ctx, store.ChainKey(1, store.WalletFeaturesDoc), []byte(`{"0xcached":{"txn_count":7}}`), "")
	require.NoError(t, err)

	fx := &fakeExplorer{
		txs:   map[string][]model.Transfer{"0XNEW": {{From: "0xnew", To: "0xb", Value: "0", TimeStamp: 1}}},
		fail:  map[string]bool{"0XBAD": true},
		calls: map[string]int{},
	}
	c, err := NewWalletCollector(CollectorConfig{
		ChainID:     1,
		Store:       st,
		Explorer:    fx,
		Retry:       retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Concurrency: 2,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	res, err := c.Collect(ctx, []string{"0xCACHED", "0xnew", "0xbad"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Fetched)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "0XBAD", res.Failed[0].Key)
	assert.Equal(t, 3, res.Failed[0].Attempts)
	assert.Equal(t, 3, fx.calls["0XBAD"])
	assert.Zero(t, fx.calls["0XCACHED"])
	assert.Equal(t, 7, res.Wallets["0XCACHED"].TxnCount)
	assert.Equal(t, 1, res.Wallets["0XNEW"].TxnCount)

	// persisted
	loaded, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, loaded, "0XNEW")
	assert.NotContains(t, loaded, "0XBAD")
}

func TestCollectNothingMissing(t *testing.T) {
	c, err := NewWalletCollector(CollectorConfig{
		Store:    store.NewMemoryStore(),
		Explorer: &fakeExplorer{calls: map[string]int{}},
	})
	require.NoError(t, err)
	res, err := c.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	assert.Empty(t, res.Wallets)
}
