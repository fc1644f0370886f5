// Package review drives a round's flagged addresses from detection to a
// committed registry update.
//
//	NoThreats <-> Flagged -> UnderReview -> Submitted -> Cleared
//
// Submitted -> Cleared is only allowed once the round has concluded. The
// state is persisted per round so separate invocations see the same machine.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/classify"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

type State string

const (
	NoThreats   State = "NoThreats"
	Flagged     State = "Flagged"
	UnderReview State = "UnderReview"
	Submitted   State = "Submitted"
	Cleared     State = "Cleared"
)

type Mode string

const (
	ModeAll      Mode = "all"
	ModeReviewed Mode = "reviewed"
)

type Record struct {
	Round     string    `json:"round"`
	State     State     `json:"state"`
	Flagged   int       `json:"flagged"`
	Submitted int       `json:"submitted,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Registry interface {
	UpsertNewEntries(ctx context.Context, entries []registry.Entry) error
	MarkAllOld(ctx context.Context) error
}

type Snapshots interface {
	Reset(ctx context.Context, roundID string) error
}

type Config struct {
	Store     store.VersionedDocumentStore
	Registry  Registry
	Snapshots Snapshots
	Now       func() time.Time
	Logger    *zap.Logger
}

type Workflow struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config) (*Workflow, error) {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Snapshots == nil {
		return nil, errors.New("review: store, registry and snapshots are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Workflow{cfg: cfg, log: cfg.Logger.Named("review")}, nil
}

func (w *Workflow) load(ctx context.Context, roundID string) (Record, string, error) {
	doc, exists, err := store.Load(ctx, w.cfg.Store, store.RoundKey(roundID, store.ReviewStateDoc))
	if err != nil {
		return Record{}, "", err
	}
	if !exists {
		return Record{Round: roundID, State: NoThreats}, "", nil
	}
	var rec Record
	if err := json.Unmarshal(doc.Content, &rec); err != nil {
		return Record{}, "", fmt.Errorf("decode review state: %w", err)
	}
	return rec, doc.Version, nil
}

func (w *Workflow) save(ctx context.Context, rec Record, version string) (Record, error) {
	rec.UpdatedAt = w.cfg.Now().UTC()
	b, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if _, err := w.cfg.Store.Put(ctx, store.RoundKey(rec.Round, store.ReviewStateDoc), b, version); err != nil {
		return Record{}, fmt.Errorf("save review state: %w", err)
	}
	return rec, nil
}

// State returns the round's record; NoThreats when nothing was recorded.
func (w *Workflow) State(ctx context.Context, roundID string) (Record, error) {
	rec, _, err := w.load(ctx, roundID)
	return rec, err
}

// Refresh moves between NoThreats and Flagged after a detection pass. Rounds
// already in review or later are left alone.
func (w *Workflow) Refresh(ctx context.Context, roundID string, flagged int) (Record, error) {
	rec, ver, err := w.load(ctx, roundID)
	if err != nil {
		return Record{}, err
	}
	if rec.State != NoThreats && rec.State != Flagged {
		return rec, nil
	}
	next := NoThreats
	if flagged > 0 {
		next = Flagged
	}
	if ver != "" && rec.State == next && rec.Flagged == flagged {
		return rec, nil
	}
	rec.State, rec.Flagged = next, flagged
	return w.save(ctx, rec, ver)
}

// Begin opens the review of a flagged round.
func (w *Workflow) Begin(ctx context.Context, roundID string) (Record, error) {
	rec, ver, err := w.load(ctx, roundID)
	if err != nil {
		return Record{}, err
	}
	if rec.State != Flagged {
		return rec, fmt.Errorf("%w: begin from %s", model.ErrInvalidTransition, rec.State)
	}
	rec.State = UnderReview
	rec, err = w.save(ctx, rec, ver)
	if err == nil {
		w.log.Info("review started", zap.String("round", roundID), zap.Int("flagged", rec.Flagged))
	}
	return rec, err
}

// SubmitAll commits every flagged address with its detector type.
func (w *Workflow) SubmitAll(ctx context.Context, roundID string, flags []classify.Flag) (Record, error) {
	entries := make([]registry.Entry, 0, len(flags))
	for _, f := range flags {
		entries = append(entries, registry.Entry{Address: f.Address, Threat: f.Threat})
	}
	return w.submit(ctx, roundID, ModeAll, entries)
}

// SubmitReviewed commits only the reviewer-approved rows. Rows without a
// label are stored as the generic Threats designation.
func (w *Workflow) SubmitReviewed(ctx context.Context, roundID string, rows []registry.Entry) (Record, error) {
	return w.submit(ctx, roundID, ModeReviewed, rows)
}

func (w *Workflow) submit(ctx context.Context, roundID string, mode Mode, entries []registry.Entry) (Record, error) {
	rec, ver, err := w.load(ctx, roundID)
	if err != nil {
		return Record{}, err
	}
	if rec.State != UnderReview {
		return rec, fmt.Errorf("%w: submit from %s", model.ErrInvalidTransition, rec.State)
	}
	// registry first: the upsert is idempotent, so a failed state write can
	// simply be submitted again
	if err := w.cfg.Registry.UpsertNewEntries(ctx, entries); err != nil {
		return rec, fmt.Errorf("commit to registry: %w", err)
	}
	rec.State, rec.Mode, rec.Submitted = Submitted, mode, len(entries)
	rec, err = w.save(ctx, rec, ver)
	if err == nil {
		w.log.Info("review submitted", zap.String("round", roundID), zap.String("mode", string(mode)), zap.Int("entries", len(entries)))
	}
	return rec, err
}

// Clear finalizes a submitted review of a concluded round: the round's
// snapshots are emptied and every New registry row becomes Old.
// While the round is Active nothing is touched.
func (w *Workflow) Clear(ctx context.Context, roundID string, lc model.Lifecycle) (Record, error) {
	rec, ver, err := w.load(ctx, roundID)
	if err != nil {
		return Record{}, err
	}
	if lc == model.Active {
		return rec, model.ErrClearWhileActive
	}
	if rec.State != Submitted {
		return rec, fmt.Errorf("%w: clear from %s", model.ErrInvalidTransition, rec.State)
	}
	if err := w.cfg.Snapshots.Reset(ctx, roundID); err != nil {
		return rec, fmt.Errorf("reset snapshots: %w", err)
	}
	if err := w.cfg.Registry.MarkAllOld(ctx); err != nil {
		return rec, fmt.Errorf("mark registry old: %w", err)
	}
	rec.State = Cleared
	rec, err = w.save(ctx, rec, ver)
	if err == nil {
		w.log.Info("review cleared", zap.String("round", roundID))
	}
	return rec, err
}

// ReportAvailable: while Active, or after conclusion until the round is cleared.
func ReportAvailable(rec Record, lc model.Lifecycle) bool {
	return lc == model.Active || rec.State != Cleared
}
