package rpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/engine"
	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/indexer"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
	"github.com/chenzhangda16/grantguard/internal/mockexplorer/generator"
	"github.com/chenzhangda16/grantguard/pkg/rng"
)

// TestEngineOverGeneratedScenario runs a full detection pass against the
// mock services and checks it finds what the generator planted.
func TestEngineOverGeneratedScenario(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	sc, truth := generator.New(generator.Config{
		ChainID:      10,
		Now:          now,
		Projects:     6,
		Normal:       24,
		BotGroups:    2,
		BotsPerGroup: 3,
		Recyclers:    2,
	}, rng.New(rng.Deterministic, 42)).Generate()

	// every 7th explorer call is rate limited; retries absorb it
	srv := httptest.NewServer(NewServer(memReader{sc: sc}, Config{ChainID: 10, FailEvery: 7}).Handler())
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	eng, err := engine.New(engine.Config{
		ChainID:  10,
		Source:   indexer.NewHTTPSource(srv.URL+"/data", 10, 5*time.Second),
		Explorer: explorer.NewHTTPClient(srv.URL+"/api", "", 5*time.Second),
		Store:    store.NewMemoryStore(),
		Retry:    retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Now:      func() time.Time { return now },
		Logger:   logger,
	})
	require.NoError(t, err)
	ctx := context.Background()

	rounds, err := eng.Rounds(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, truth.ActiveRound, rounds[0].ID, "newest first")

	_, lc, err := eng.Select(ctx, truth.ActiveRound)
	require.NoError(t, err)
	require.Equal(t, model.Active, lc)

	rep, err := eng.Detect(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Failed)
	assert.Empty(t, rep.Warnings)
	require.Len(t, rep.Groups, len(truth.BotGroups))

	res, err := eng.Classify(ctx)
	require.NoError(t, err)
	for _, g := range truth.BotGroups {
		for _, b := range g {
			assert.Equal(t, model.ScriptBot, res.Labels[addr.Canonical(b)], b)
		}
	}
	for _, vs := range truth.Recycling {
		for _, v := range vs {
			assert.Equal(t, model.Recycler, res.Labels[addr.Canonical(v)], v)
		}
	}
	counts := res.Counts()
	assert.Equal(t, len(truth.BotGroups)*3, counts[model.ScriptBot])
	assert.Equal(t, 2, counts[model.Recycler])
}
