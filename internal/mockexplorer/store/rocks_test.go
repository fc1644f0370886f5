package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/mockexplorer/model"
)

func TestRocksRoundTrip(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "mock.db"))
	require.NoError(t, err)
	defer st.Close()

	rounds, err := st.Rounds()
	require.NoError(t, err)
	assert.Empty(t, rounds)

	sc := model.Scenario{
		ChainID: 1,
		Rounds: []model.RoundData{{
			Round: model.Round{ID: "0xRound", Name: "r", Start: 10, End: 20},
			Votes: []model.Vote{{ID: "v1", Voter: "0xaa", Block: 7}},
		}},
		Transfers: []model.Transfer{
			{Hash: "0x2", From: "0xbb", To: "0xaa", Value: "1", BlockNumber: 9},
			{Hash: "0x1", From: "0xaa", To: "0xcc", Value: "2", BlockNumber: 8},
			{Hash: "0x3", From: "0xaa", To: "0xcc", Value: "3", BlockNumber: 8, Token: true},
		},
		Blocks: map[int64]int64{7: 1234},
	}
	require.NoError(t, st.Load(sc))

	rounds, err = st.Rounds()
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	rd, err := st.Round("0XROUND")
	require.NoError(t, err)
	assert.Equal(t, "v1", rd.Votes[0].ID)

	_, err = st.Round("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	txs, err := st.Transfers(strings.ToUpper("0xaa"), false)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "0x1", txs[0].Hash, "ordered by block")
	assert.Equal(t, "0x2", txs[1].Hash)

	tok, err := st.Transfers("0xaa", true)
	require.NoError(t, err)
	require.Len(t, tok, 1)

	ts, err := st.BlockTime(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), ts)
	_, err = st.BlockTime(8)
	assert.ErrorIs(t, err, ErrNotFound)
}
