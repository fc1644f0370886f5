package engine

import (
	"context"
	"io"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/out"
	"github.com/chenzhangda16/grantguard/internal/guard/review"
)

func (e *Engine) ReviewState(ctx context.Context) (review.Record, error) {
	r, _, err := e.cfg.Session.Current()
	if err != nil {
		return review.Record{}, err
	}
	return e.review.State(ctx, r.ID)
}

func (e *Engine) BeginReview(ctx context.Context) (review.Record, error) {
	r, _, err := e.cfg.Session.Current()
	if err != nil {
		return review.Record{}, err
	}
	return e.review.Begin(ctx, r.ID)
}

// SubmitAll commits every voter this round's detectors flagged, with the
// detector's type rather than the merged label. Registry history is left as
// is. A classification that could not read the registry is not submitted.
func (e *Engine) SubmitAll(ctx context.Context) (review.Record, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return review.Record{}, err
	}
	res, err := e.Classify(ctx)
	if err != nil {
		return review.Record{}, err
	}
	rec, err := e.review.SubmitAll(ctx, r.ID, res.Submission())
	if err != nil {
		return rec, err
	}
	e.afterSubmit(ctx, lc, rec)
	return rec, nil
}

// SubmitReviewed commits the rows of a reviewer's CSV.
func (e *Engine) SubmitReviewed(ctx context.Context, file io.Reader) (review.Record, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return review.Record{}, err
	}
	rows, err := review.ParseReviewed(file)
	if err != nil {
		return review.Record{}, err
	}
	rec, err := e.review.SubmitReviewed(ctx, r.ID, rows)
	if err != nil {
		return rec, err
	}
	e.afterSubmit(ctx, lc, rec)
	return rec, nil
}

func (e *Engine) afterSubmit(ctx context.Context, lc model.Lifecycle, rec review.Record) {
	_ = e.cfg.Session.Invalidate(ctx)
	e.emit(ctx, out.TypeReviewSubmitted, out.RoundEvent{
		Round:     rec.Round,
		Lifecycle: string(lc),
		State:     string(rec.State),
		Mode:      string(rec.Mode),
		Entries:   rec.Submitted,
	})
}

// ClearReview finalizes a concluded round. While the round is Active it
// fails with model.ErrClearWhileActive and the report stays available.
func (e *Engine) ClearReview(ctx context.Context) (review.Record, error) {
	r, lc, err := e.cfg.Session.Current()
	if err != nil {
		return review.Record{}, err
	}
	rec, err := e.review.Clear(ctx, r.ID, lc)
	if err != nil {
		return rec, err
	}
	_ = e.cfg.Session.Invalidate(ctx)
	e.emit(ctx, out.TypeRoundCleared, out.RoundEvent{
		Round:     rec.Round,
		Lifecycle: string(lc),
		State:     string(rec.State),
	})
	return rec, nil
}
