package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/cluster"
	"github.com/chenzhangda16/grantguard/internal/guard/features"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/out"
	"github.com/chenzhangda16/grantguard/internal/guard/recycle"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/review"
)

// DetectionReport summarizes one refresh of the current round.
type DetectionReport struct {
	RunID    string
	Round    string
	Groups   []cluster.Group
	Recycle  recycle.Map
	Enriched bool
	Fetched  int
	Failed   []retry.Failure
	Warnings []string
	Flagged  int
	Degraded bool
	State    review.State
}

// Detect rebuilds the cluster and recycle snapshots of the current round.
// A detector that fails leaves its previous snapshot in place and adds a
// warning; only store, indexer and context failures abort the run.
func (e *Engine) Detect(ctx context.Context) (DetectionReport, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return DetectionReport{}, err
	}
	if lc != model.Active {
		return DetectionReport{}, fmt.Errorf("detect %s: %w", r.ID, ErrNotActive)
	}
	rep := DetectionReport{RunID: uuid.NewString(), Round: r.ID}
	log := e.log.With(zap.String("round", r.ID), zap.String("run", rep.RunID))
	warn := func(msg string, err error) {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: %v", msg, err))
		log.Warn(msg, zap.Error(err))
	}

	if err := e.snaps.Seed(ctx, r.ID); err != nil {
		return rep, err
	}

	votes, err := e.cfg.Source.Votes(ctx, r.ID)
	if err != nil {
		return rep, fmt.Errorf("load votes: %w", err)
	}
	votes, failed, err := e.clock.Stamp(ctx, votes)
	if err != nil {
		return rep, fmt.Errorf("stamp votes: %w", err)
	}
	rep.Failed = append(rep.Failed, failed...)

	// wallets
	var wallets map[string]features.Wallet
	if r.End.Sub(e.cfg.Now()) >= e.cfg.EnrichCutoff {
		contributors, err := e.cfg.Source.Contributors(ctx, r.ID)
		if err != nil {
			return rep, fmt.Errorf("load contributors: %w", err)
		}
		res, err := e.wallets.Collect(ctx, contributors)
		if err != nil {
			return rep, err
		}
		wallets = res.Wallets
		rep.Enriched, rep.Fetched = true, res.Fetched
		rep.Failed = append(rep.Failed, res.Failed...)
	} else {
		if wallets, err = e.wallets.Load(ctx); err != nil {
			return rep, err
		}
	}

	// clusters
	table, err := features.Normalize(features.Build(votes, wallets))
	if err == nil {
		var cres cluster.Result
		cres, err = cluster.FirstMatch(table, e.cfg.Threshold)
		if err == nil {
			if err = e.snaps.SaveClusters(ctx, r.ID, cres.Groups); err == nil {
				rep.Groups = cres.Groups
			}
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		warn("cluster snapshot not refreshed", err)
	}

	// recycling
	voters := addr.NewSet()
	grantees := make([]string, 0)
	for _, v := range votes {
		voters.Add(v.Voter)
		grantees = append(grantees, v.Grantee)
	}
	tres, err := e.tracer.Trace(ctx, grantees, voters, r.Start)
	if err != nil {
		return rep, err
	}
	rep.Failed = append(rep.Failed, tres.Failed...)
	if err := e.snaps.SaveRecycle(ctx, r.ID, tres.Map); err != nil {
		warn("recycle snapshot not refreshed", err)
	} else {
		rep.Recycle = tres.Map.NonEmpty()
	}

	if err := e.cfg.Session.Invalidate(ctx); err != nil {
		log.Warn("invalidate cache", zap.Error(err))
	}

	cls, err := e.Classify(ctx)
	if err != nil {
		warn("classification incomplete", err)
	}
	rep.Flagged = len(cls.Flagged())
	rep.Degraded = cls.Degraded || len(rep.Warnings) > 0
	rec, err := e.review.Refresh(ctx, r.ID, rep.Flagged)
	if err != nil {
		return rep, err
	}
	rep.State = rec.State

	log.Info("detection done",
		zap.Int("groups", len(rep.Groups)),
		zap.Int("recycling_grantees", len(rep.Recycle)),
		zap.Int("flagged", rep.Flagged),
		zap.Int("failed", len(rep.Failed)),
		zap.Bool("degraded", rep.Degraded))

	e.emit(ctx, out.TypeDetectionRefreshed, out.RoundEvent{
		RunID:     rep.RunID,
		Round:     r.ID,
		Lifecycle: string(lc),
		State:     string(rep.State),
		Clusters:  len(rep.Groups),
		Bots:      len(clusterMembers(rep.Groups)),
		Recyclers: len(rep.Recycle.Members()),
		Failed:    len(rep.Failed),
		Degraded:  rep.Degraded,
	})
	return rep, nil
}

func clusterMembers(gs []cluster.Group) []string {
	var ms []string
	for _, g := range gs {
		ms = append(ms, g.Members...)
	}
	return ms
}
