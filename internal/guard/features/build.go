package features

import (
	"sort"
	"strings"
	"time"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

type voterAgg struct {
	voter     string
	firstSeen int
	count     int
	projects  map[string]struct{}
	usd       float64
	firstTS   int64
	titles    []string
}

// Build aggregates vote rows per voter and joins the wallet features.
// Voters without wallet features are left out. Rows are ordered by project
// signature, ties by first appearance in votes.
func Build(votes []model.Vote, wallets map[string]Wallet) Table {
	aggs := make(map[string]*voterAgg)
	order := make([]*voterAgg, 0)
	for _, v := range votes {
		k := addr.Canonical(v.Voter)
		if k == "" {
			continue
		}
		a, ok := aggs[k]
		if !ok {
			a = &voterAgg{voter: k, firstSeen: len(order), projects: make(map[string]struct{}), firstTS: v.Timestamp}
			aggs[k] = a
			order = append(order, a)
		}
		a.count++
		a.projects[projectKey(v)] = struct{}{}
		a.usd += v.AmountUSD
		a.titles = append(a.titles, normalizeTitle(v.Project))
	}

	type row struct {
		agg *voterAgg
		sig string
		w   Wallet
	}
	rows := make([]row, 0, len(order))
	for _, a := range order {
		w, ok := lookupWallet(wallets, a.voter)
		if !ok {
			continue
		}
		rows = append(rows, row{agg: a, sig: strings.Join(a.titles, "_"), w: w})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].sig < rows[j].sig })

	sigs := make([]string, len(rows))
	firstFrom := make([]string, len(rows))
	firstTo := make([]string, len(rows))
	lastFrom := make([]string, len(rows))
	lastTo := make([]string, len(rows))
	for i, r := range rows {
		sigs[i] = r.sig
		firstFrom[i], firstTo[i] = r.w.FirstFrom, r.w.FirstTo
		lastFrom[i], lastTo[i] = r.w.LastFrom, r.w.LastTo
	}
	encSig := labelEncode(sigs)
	encFF, encFT := labelEncode(firstFrom), labelEncode(firstTo)
	encLF, encLT := labelEncode(lastFrom), labelEncode(lastTo)

	t := Table{
		Columns: append(append([]string(nil), VoteColumns...), WalletColumns...),
		Voters:  make([]string, len(rows)),
		Rows:    make([][]float64, len(rows)),
	}
	for i, r := range rows {
		a, w := r.agg, r.w
		t.Voters[i] = a.voter
		t.Rows[i] = []float64{
			float64(a.count),
			float64(len(a.projects)),
			float64(dayStart(a.firstTS)),
			a.usd,
			encSig[i],

			float64(w.TxnCount),
			float64(w.WalletAgeDays),
			float64(w.WalletAgeERC20Days),
			float64(w.ToCount),
			float64(w.FromCount),
			float64(w.ERCToCount),
			float64(w.ERCFromCount),
			w.InOutRatio,
			w.InOutRatioERC,
			float64(w.FirstDate),
			float64(w.LastDate),
			encFF[i], encFT[i], encLF[i], encLT[i],
			w.FirstOutAmount,
			w.LastOutAmount,
			w.FirstInAmount,
			w.LastInAmount,
		}
	}
	return t
}

func lookupWallet(m map[string]Wallet, voter string) (Wallet, bool) {
	if w, ok := m[voter]; ok {
		return w, true
	}
	for k, w := range m {
		if addr.Canonical(k) == voter {
			return w, true
		}
	}
	return Wallet{}, false
}

func projectKey(v model.Vote) string {
	if v.ProjectID != "" {
		return v.ProjectID
	}
	return strings.ToLower(v.Project)
}

// normalizeTitle lower-cases, splits on whitespace, sorts words and joins with "-".
func normalizeTitle(s string) string {
	words := strings.Fields(strings.ToLower(s))
	sort.Strings(words)
	return strings.Join(words, "-")
}

// labelEncode maps each value to its rank among the sorted distinct values.
func labelEncode(vals []string) []float64 {
	uniq := make([]string, 0, len(vals))
	seen := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			uniq = append(uniq, v)
		}
	}
	sort.Strings(uniq)
	rank := make(map[string]int, len(uniq))
	for i, v := range uniq {
		rank[v] = i
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(rank[v])
	}
	return out
}

func dayStart(ts int64) int64 {
	if ts <= 0 {
		return 0
	}
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}
