// Package classify merges detector outputs and the threat registry into one
// label per voter. The policy depends on the round lifecycle: Active rounds
// are recomputed from the current snapshots, Concluded rounds are read back
// from the registry only.
package classify

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
	"github.com/chenzhangda16/grantguard/internal/guard/snapshot"
)

type Classifier interface {
	Classify(ctx context.Context, roundID string, votes []model.Vote) (Result, error)
}

type SnapshotReader interface {
	LoadClusters(ctx context.Context, roundID string) (snapshot.Doc, bool, error)
	LoadRecycle(ctx context.Context, roundID string) (snapshot.Doc, bool, error)
}

type RegistryReader interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
	OldIndex(ctx context.Context) (*registry.OldIndex, error)
}

// Flag is one flagged address with its label.
type Flag struct {
	Address string           `json:"address"`
	Threat  model.ThreatType `json:"threat_type"`
}

type Result struct {
	Votes  []model.LabeledVote
	Labels map[string]model.ThreatType // canonical voter -> label

	// Detected holds what this round's detectors found, before the registry
	// overwrite. Only Active results carry it.
	Detected map[string]model.ThreatType

	// Degraded is set when some input could not be read and the labels are
	// the best available rather than complete.
	Degraded bool
	Warnings []string
}

// Counts tallies distinct voters per label. The Threats bucket is only
// filled by registry rows from reviewed-file submissions, which a Concluded
// round reads back; Active labels never produce it.
func (r Result) Counts() map[model.ThreatType]int {
	out := make(map[model.ThreatType]int, len(model.AllThreatTypes))
	for _, t := range model.AllThreatTypes {
		out[t] = 0
	}
	for _, t := range r.Labels {
		out[t]++
	}
	return out
}

// Flagged lists every non-Normal voter, sorted by address.
func (r Result) Flagged() []Flag {
	out := make([]Flag, 0)
	for a, t := range r.Labels {
		if t.IsThreat() {
			out = append(out, Flag{Address: a, Threat: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Submission is what a submit-all commits: each flagged voter with its
// detector type. Voters flagged only through the registry are already
// recorded and are left out. Results without detector output fall back to
// Flagged.
func (r Result) Submission() []Flag {
	if r.Detected == nil {
		return r.Flagged()
	}
	out := make([]Flag, 0, len(r.Detected))
	for a, t := range r.Detected {
		out = append(out, Flag{Address: a, Threat: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ThreatUSD sums the USD amount of votes cast by flagged voters.
func (r Result) ThreatUSD() float64 {
	var sum float64
	for _, v := range r.Votes {
		if v.Threat.IsThreat() {
			sum += v.AmountUSD
		}
	}
	return sum
}

// For picks the strategy for a lifecycle.
func For(lc model.Lifecycle, snaps SnapshotReader, reg RegistryReader, logger *zap.Logger) Classifier {
	if lc == model.Active {
		return &Active{Snapshots: snaps, Registry: reg, Logger: logger}
	}
	return &Concluded{Registry: reg}
}

func label(votes []model.Vote, labelOf func(voter string) model.ThreatType) Result {
	res := Result{
		Votes:  make([]model.LabeledVote, len(votes)),
		Labels: make(map[string]model.ThreatType),
	}
	for i, v := range votes {
		k := addr.Canonical(v.Voter)
		t, ok := res.Labels[k]
		if !ok {
			t = labelOf(k)
			res.Labels[k] = t
		}
		res.Votes[i] = model.LabeledVote{Vote: v, Threat: t}
	}
	return res
}
