package engine

import (
	"context"
	"errors"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/classify"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/review"
	"github.com/chenzhangda16/grantguard/internal/guard/round"
)

// errIncomplete keeps degraded classifications out of the memo cache.
var errIncomplete = errors.New("incomplete classification")

func (e *Engine) votes(ctx context.Context) ([]model.Vote, error) {
	r, _, err := e.cfg.Session.Current()
	if err != nil {
		return nil, err
	}
	return round.Memo(ctx, e.cfg.Session, "votes", func(ctx context.Context) ([]model.Vote, error) {
		return e.cfg.Source.Votes(ctx, r.ID)
	})
}

// Classify labels the current round's votes under its lifecycle policy.
// Complete results are memoized for the round; degraded ones are returned
// with their warnings and rebuilt on the next call.
func (e *Engine) Classify(ctx context.Context) (classify.Result, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return classify.Result{}, err
	}
	var (
		partial  classify.Result
		buildErr error
	)
	res, err := round.Memo(ctx, e.cfg.Session, "classification", func(ctx context.Context) (classify.Result, error) {
		votes, err := e.votes(ctx)
		if err != nil {
			return classify.Result{}, err
		}
		c := classify.For(lc, e.snaps, e.registry, e.log)
		res, err := c.Classify(ctx, r.ID, votes)
		if err != nil || res.Degraded {
			partial, buildErr = res, err
			return res, errIncomplete
		}
		return res, nil
	})
	if errors.Is(err, errIncomplete) {
		return partial, buildErr
	}
	return res, err
}

type ProjectThreats struct {
	Project   string  `json:"project"`
	Flagged   int     `json:"flagged"`
	ThreatUSD float64 `json:"threat_usd"`
}

type Summary struct {
	Round       string                   `json:"round"`
	Lifecycle   model.Lifecycle          `json:"lifecycle"`
	State       review.State             `json:"state"`
	Voters      int                      `json:"voters"`
	Detections  int                      `json:"detections"`
	ThreatUSD   float64                  `json:"threat_usd"`
	Counts      map[model.ThreatType]int `json:"counts"` // includes the Threats bucket
	UnderReview int                      `json:"under_review"`
	Projects    []ProjectThreats         `json:"projects"`
	Degraded    bool                     `json:"degraded,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}

// Summary aggregates the current classification. UnderReview counts flagged
// addresses the registry does not know yet.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return Summary{}, err
	}
	res, err := e.Classify(ctx)
	if err != nil && !res.Degraded {
		return Summary{}, err
	}
	rec, err := e.review.State(ctx, r.ID)
	if err != nil {
		return Summary{}, err
	}

	flagged := res.Flagged()
	s := Summary{
		Round:      r.ID,
		Lifecycle:  lc,
		State:      rec.State,
		Voters:     len(res.Labels),
		Detections: len(flagged),
		ThreatUSD:  res.ThreatUSD(),
		Counts:     res.Counts(),
		Degraded:   res.Degraded,
		Warnings:   res.Warnings,
	}

	if snap, err := e.registry.Snapshot(ctx); err != nil {
		s.Degraded = true
		s.Warnings = append(s.Warnings, "under-review count unavailable: "+err.Error())
		s.UnderReview = len(flagged)
	} else {
		for _, f := range flagged {
			if !snap.Has(f.Address) {
				s.UnderReview++
			}
		}
	}

	byProject := make(map[string]*ProjectThreats)
	seen := make(map[[2]string]bool)
	for _, v := range res.Votes {
		if !v.Threat.IsThreat() {
			continue
		}
		name := v.Project
		if name == "" {
			name = v.ProjectID
		}
		p, ok := byProject[name]
		if !ok {
			p = &ProjectThreats{Project: name}
			byProject[name] = p
		}
		p.ThreatUSD += v.AmountUSD
		k := [2]string{name, v.Voter}
		if !seen[k] {
			seen[k] = true
			p.Flagged++
		}
	}
	for _, p := range byProject {
		s.Projects = append(s.Projects, *p)
	}
	sort.Slice(s.Projects, func(i, j int) bool {
		if s.Projects[i].Flagged != s.Projects[j].Flagged {
			return s.Projects[i].Flagged > s.Projects[j].Flagged
		}
		return s.Projects[i].Project < s.Projects[j].Project
	})
	return s, nil
}

// Report writes the flagged-voter CSV. It is refused once the round has
// been cleared.
func (e *Engine) Report(ctx context.Context, w io.Writer) error {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return err
	}
	rec, err := e.review.State(ctx, r.ID)
	if err != nil {
		return err
	}
	if !review.ReportAvailable(rec, lc) {
		return model.ErrReportUnavailable
	}
	res, err := e.Classify(ctx)
	if err != nil {
		if !res.Degraded {
			return err
		}
		e.log.Warn("report from degraded classification", zap.String("round", r.ID), zap.Error(err))
	}
	return review.WriteReport(w, res.Flagged())
}
