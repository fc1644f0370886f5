package generator

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/pkg/rng"
)

func testConfig() Config {
	return Config{
		Now:          time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		Projects:     5,
		Normal:       12,
		BotGroups:    2,
		BotsPerGroup: 3,
		Recyclers:    2,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, ta := New(testConfig(), rng.New(rng.Deterministic, 7)).Generate()
	b, tb := New(testConfig(), rng.New(rng.Deterministic, 7)).Generate()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("scenario differs (-a +b):\n%s", diff)
	}
	assert.Equal(t, ta, tb)

	c, _ := New(testConfig(), rng.New(rng.Deterministic, 8)).Generate()
	assert.NotEqual(t, a.Transfers[0].Hash, c.Transfers[0].Hash)
}

func TestGenerateShape(t *testing.T) {
	cfg := testConfig()
	sc, truth := New(cfg, rng.New(rng.Deterministic, 1)).Generate()

	require.Len(t, sc.Rounds, 2)
	active, concluded := sc.Rounds[0], sc.Rounds[1]
	assert.Equal(t, truth.ActiveRound, active.Round.ID)
	assert.Equal(t, truth.ConcludedRound, concluded.Round.ID)
	assert.Greater(t, active.Round.End, cfg.Now.Unix())
	assert.Less(t, concluded.Round.End, cfg.Now.Unix())
	assert.Equal(t, cfg.Normal+cfg.BotGroups*cfg.BotsPerGroup, active.Round.UniqueContributors)

	require.Len(t, truth.BotGroups, cfg.BotGroups)
	for _, g := range truth.BotGroups {
		assert.Len(t, g, cfg.BotsPerGroup)
	}
	require.Len(t, truth.Recycling, 1)
	for gr, vs := range truth.Recycling {
		assert.Len(t, vs, cfg.Recyclers)
		assert.True(t, strings.HasPrefix(gr, "0x"))
	}

	pending := 0
	for _, a := range active.Applications {
		if a.Status != "APPROVED" {
			pending++
		}
	}
	assert.Equal(t, 1, pending)

	// every vote block resolves to a time inside the round
	for _, v := range active.Votes {
		ts, ok := sc.Blocks[v.Block]
		require.True(t, ok, "block %d", v.Block)
		assert.GreaterOrEqual(t, ts, active.Round.Start-secondsPerBlock)
		assert.LessOrEqual(t, ts, cfg.Now.Unix())
	}
}

func TestBotGroupsShareOneDay(t *testing.T) {
	sc, truth := New(testConfig(), rng.New(rng.Deterministic, 3)).Generate()
	for _, g := range truth.BotGroups {
		days := map[int64]bool{}
		for _, v := range sc.Rounds[0].Votes {
			for _, b := range g {
				if v.Voter == b {
					days[floorDay(sc.Blocks[v.Block])] = true
				}
			}
		}
		assert.Len(t, days, 1)
	}
}
