// Package cluster groups voters whose normalized feature vectors are nearly
// identical.
//
// FirstMatch is a single greedy pass, not a transitive closure: rows are
// visited in table order, and an unassigned row claims every other unassigned
// row whose cosine similarity to it is at least the threshold. Reordering the
// table can change the groups.
package cluster

import (
	"fmt"
	"math"

	"github.com/chenzhangda16/grantguard/internal/guard/features"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

const DefaultThreshold = 0.9995

type Group struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
}

// Name is the persisted key of the group.
func (g Group) Name() string { return fmt.Sprintf("Cluster Group %d", g.ID) }

type Result struct {
	Groups  []Group
	Members []string // flattened, in group order
}

// FirstMatch clusters a normalized table. threshold <= 0 selects DefaultThreshold.
func FirstMatch(t features.Table, threshold float64) (Result, error) {
	if t.Len() < 2 {
		return Result{}, model.ErrInsufficientData
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	sim := Similarity(t.Rows)

	n := t.Len()
	assigned := make([]bool, n)
	var res Result
	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		matched := make([]int, 0, 2)
		for j := 0; j < n; j++ {
			if !assigned[j] && sim[i][j] >= threshold {
				matched = append(matched, j)
			}
		}
		if len(matched) < 2 {
			continue
		}
		g := Group{ID: len(res.Groups), Members: make([]string, 0, len(matched))}
		for _, j := range matched {
			assigned[j] = true
			g.Members = append(g.Members, t.Voters[j])
		}
		res.Groups = append(res.Groups, g)
		res.Members = append(res.Members, g.Members...)
	}
	return res, nil
}

// Similarity returns the full pairwise cosine similarity matrix.
// A zero vector has similarity 0 with every row, itself included.
func Similarity(rows [][]float64) [][]float64 {
	n := len(rows)
	norms := make([]float64, n)
	for i, r := range rows {
		var s float64
		for _, v := range r {
			s += v * v
		}
		norms[i] = math.Sqrt(s)
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			if norms[i] > 0 && norms[j] > 0 {
				var dot float64
				for k := range rows[i] {
					dot += rows[i][k] * rows[j][k]
				}
				s = dot / (norms[i] * norms[j])
			}
			out[i][j], out[j][i] = s, s
		}
	}
	return out
}
