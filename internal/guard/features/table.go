// Package features turns vote rows and wallet histories into the per-voter
// numeric table consumed by the similarity clusterer.
package features

// Column names, in table order.
const (
	ColFundingCount     = "funding_count"
	ColProjectsFunded   = "projects_funded"
	ColTransactionDate  = "transaction_date"
	ColTotalUSD         = "total_usd_funded"
	ColProjectSignature = "project_signature"

	ColTxnCount      = "txn_count"
	ColWalletAge     = "wallet_age"
	ColWalletAgeERC  = "wallet_age_erc20"
	ColToCount       = "to_count"
	ColFromCount     = "from_count"
	ColERCTo         = "erc_to"
	ColERCFrom       = "erc_from"
	ColInOutRatio    = "in_out_ratio"
	ColInOutRatioERC = "in_out_ratio_erc"
	ColFirstDate     = "first_date"
	ColLastDate      = "last_date"
	ColFirstFrom     = "first_from"
	ColFirstTo       = "first_to"
	ColLastFrom      = "last_from"
	ColLastTo        = "last_to"
	ColFirstOut      = "first_out_amount"
	ColLastOut       = "last_out_amount"
	ColFirstIn       = "first_in_amount"
	ColLastIn        = "last_in_amount"
)

var VoteColumns = []string{ColFundingCount, ColProjectsFunded, ColTransactionDate, ColTotalUSD, ColProjectSignature}

var WalletColumns = []string{
	ColTxnCount, ColWalletAge, ColWalletAgeERC, ColToCount, ColFromCount, ColERCTo, ColERCFrom,
	ColInOutRatio, ColInOutRatioERC, ColFirstDate, ColLastDate,
	ColFirstFrom, ColFirstTo, ColLastFrom, ColLastTo,
	ColFirstOut, ColLastOut, ColFirstIn, ColLastIn,
}

// Table is a voter-keyed numeric matrix. Voters[i] owns Rows[i].
// Row order is significant: clustering walks it front to back.
type Table struct {
	Columns []string
	Voters  []string
	Rows    [][]float64
}

func (t Table) Len() int { return len(t.Rows) }

// Column returns the values of one column, nil if unknown.
func (t Table) Column(name string) []float64 {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out
}
