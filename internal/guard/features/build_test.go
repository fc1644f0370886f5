package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

func TestBuildAggregatesPerVoter(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC).Unix()
	votes := []model.Vote{
		{Voter: "0xb", ProjectID: "p2", Project: "Zeta Tools", AmountUSD: 2, Timestamp: day},
		{Voter: "0xa", ProjectID: "p1", Project: "Alpha Beta", AmountUSD: 1, Timestamp: day},
		{Voter: "0xA", ProjectID: "p1", Project: "Alpha Beta", AmountUSD: 3, Timestamp: day + 3600},
		{Voter: "0xa", ProjectID: "p2", Project: "Zeta Tools", AmountUSD: 1, Timestamp: day + 7200},
		{Voter: "0xc", ProjectID: "p1", Project: "Alpha Beta", AmountUSD: 5, Timestamp: day},
	}
	wallets := map[string]Wallet{
		"0XA": {TxnCount: 4, FirstFrom: "0XF1"},
		"0xb": {TxnCount: 9, FirstFrom: "0XF0"},
		// 0xc has no wallet features and is dropped
	}

	tb := Build(votes, wallets)
	require.Equal(t, 2, tb.Len())
	assert.Len(t, tb.Columns, len(VoteColumns)+len(WalletColumns))

	// "alpha-beta_alpha-beta_tools-zeta" < "tools-zeta"
	assert.Equal(t, []string{"0XA", "0XB"}, tb.Voters)
	assert.Equal(t, []float64{3, 1}, tb.Column(ColFundingCount))
	assert.Equal(t, []float64{2, 1}, tb.Column(ColProjectsFunded))
	assert.Equal(t, []float64{5, 2}, tb.Column(ColTotalUSD))
	assert.Equal(t, []float64{0, 1}, tb.Column(ColProjectSignature))
	assert.Equal(t, []float64{4, 9}, tb.Column(ColTxnCount))
	// label encoding: "0XF0" < "0XF1"
	assert.Equal(t, []float64{1, 0}, tb.Column(ColFirstFrom))

	midnight := float64(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, []float64{midnight, midnight}, tb.Column(ColTransactionDate))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "beta-gamma-zeta", normalizeTitle("  Zeta gamma   BETA "))
}
