package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
)

// Active labels voters from the round's snapshots and the registry's Old rows.
// Precedence, lowest first: ScriptBot, Recycler, ReoccurringThreat.
type Active struct {
	Snapshots SnapshotReader
	Registry  RegistryReader
	Logger    *zap.Logger
}

// Classify never fails on an unreadable snapshot; it labels from what it has
// and marks the result Degraded. A registry that cannot be read is returned
// as an error next to the (still usable) degraded result.
func (a *Active) Classify(ctx context.Context, roundID string, votes []model.Vote) (Result, error) {
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var warnings []string
	warn := func(msg string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
		log.Warn(msg, zap.String("round", roundID), zap.Error(err))
	}

	bots := addr.NewSet()
	if doc, _, err := a.Snapshots.LoadClusters(ctx, roundID); err != nil {
		warn("cluster snapshot unavailable", err)
	} else {
		for _, m := range doc.Members() {
			bots.Add(m)
		}
	}

	recyclers := addr.NewSet()
	if doc, _, err := a.Snapshots.LoadRecycle(ctx, roundID); err != nil {
		warn("recycle snapshot unavailable", err)
	} else {
		for _, m := range doc.Members() {
			recyclers.Add(m)
		}
	}

	olds, regErr := a.Registry.OldIndex(ctx)
	if regErr != nil {
		warn("registry unavailable", regErr)
	}

	detected := func(v string) model.ThreatType {
		t := model.Normal
		if bots.Has(v) {
			t = model.ScriptBot
		}
		if recyclers.Has(v) {
			t = model.Recycler
		}
		return t
	}
	res := label(votes, func(v string) model.ThreatType {
		if olds != nil && olds.IsOld(v) {
			return model.ReoccurringThreat
		}
		return detected(v)
	})
	if olds != nil && olds.Err() != nil {
		regErr = olds.Err()
		warn("registry unavailable", regErr)
	}
	res.Detected = make(map[string]model.ThreatType)
	for v := range res.Labels {
		if t := detected(v); t.IsThreat() {
			res.Detected[v] = t
		}
	}
	res.Warnings = warnings
	res.Degraded = len(warnings) > 0
	return res, regErr
}

// Concluded is a pure registry lookup; it never reads round snapshots.
type Concluded struct {
	Registry RegistryReader
}

func (c *Concluded) Classify(ctx context.Context, _ string, votes []model.Vote) (Result, error) {
	snap, err := c.Registry.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	return label(votes, snap.Lookup), nil
}

var _ RegistryReader = (*registry.Registry)(nil)
