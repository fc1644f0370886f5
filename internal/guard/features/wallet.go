package features

import (
	"math"
	"math/big"
	"time"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

const selfCounterparty = "self"

// Wallet is the on-chain profile of one voter.
type Wallet struct {
	TxnCount           int     `json:"txn_count"`
	WalletAgeDays      int     `json:"wallet_age"`
	WalletAgeERC20Days int     `json:"wallet_age_erc20"`
	ToCount            int     `json:"to_count"`
	FromCount          int     `json:"from_count"`
	ERCToCount         int     `json:"erc_to"`
	ERCFromCount       int     `json:"erc_from"`
	InOutRatio         float64 `json:"in_out_ratio"`
	InOutRatioERC      float64 `json:"in_out_ratio_erc"`
	FirstDate          int64   `json:"first_date"`
	LastDate           int64   `json:"last_date"`
	FirstFrom          string  `json:"first_from"`
	FirstTo            string  `json:"first_to"`
	LastFrom           string  `json:"last_from"`
	LastTo             string  `json:"last_to"`
	FirstOutAmount     float64 `json:"first_out_amount"`
	LastOutAmount      float64 `json:"last_out_amount"`
	FirstInAmount      float64 `json:"first_in_amount"`
	LastInAmount       float64 `json:"last_in_amount"`
}

// ComputeWallet derives the profile from the regular and ERC-20 histories,
// both in ascending order. Ages are whole days up to now.
func ComputeWallet(address string, txs, tokenTxs []model.Transfer, now time.Time) Wallet {
	self := addr.Canonical(address)
	w := Wallet{
		TxnCount:           len(txs),
		WalletAgeDays:      ageDays(txs, now),
		WalletAgeERC20Days: ageDays(tokenTxs, now),
	}
	w.ToCount, w.FromCount = direction(self, txs)
	w.ERCToCount, w.ERCFromCount = direction(self, tokenTxs)
	w.InOutRatio = ratio(w.ToCount, w.FromCount)
	w.InOutRatioERC = ratio(w.ERCToCount, w.ERCFromCount)

	if len(txs) == 0 {
		return w
	}
	first, last := txs[0], txs[len(txs)-1]
	w.FirstDate, w.LastDate = first.TimeStamp, last.TimeStamp
	w.FirstFrom, w.FirstTo = counterparty(self, first.From), counterparty(self, first.To)
	w.LastFrom, w.LastTo = counterparty(self, last.From), counterparty(self, last.To)

	seenOut, seenIn := false, false
	for _, tx := range txs {
		v := weiToEther(tx.Value)
		if addr.Canonical(tx.From) == self {
			if !seenOut {
				w.FirstOutAmount, seenOut = v, true
			}
			w.LastOutAmount = v
		}
		if addr.Canonical(tx.To) == self {
			if !seenIn {
				w.FirstInAmount, seenIn = v, true
			}
			w.LastInAmount = v
		}
	}
	return w
}

// direction counts incoming (to) and outgoing (from) transfers.
func direction(self string, txs []model.Transfer) (to, from int) {
	for _, tx := range txs {
		if addr.Canonical(tx.From) == self {
			from++
		} else {
			to++
		}
	}
	return to, from
}

func ratio(to, from int) float64 {
	if from == 0 {
		return 0
	}
	return math.Round(float64(to)/float64(from)*1000) / 1000
}

func ageDays(txs []model.Transfer, now time.Time) int {
	if len(txs) == 0 {
		return 0
	}
	created := truncDay(time.Unix(txs[0].TimeStamp, 0))
	return int(truncDay(now).Sub(created).Hours() / 24)
}

func truncDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func counterparty(self, a string) string {
	if addr.Canonical(a) == self {
		return selfCounterparty
	}
	return addr.Canonical(a)
}

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func weiToEther(wei string) float64 {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(n), weiPerEther).Float64()
	return f
}
