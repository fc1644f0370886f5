// Package registry is the durable, cross-round record of confirmed threat
// addresses.
//
// Entries carry provenance. New rows come from the round under review and
// only become Old when that round's review is cleared; the Active classifier
// treats only Old rows as reoccurring threats.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

type Registry struct {
	st  store.VersionedDocumentStore
	key string
	log *zap.Logger
}

func New(st store.VersionedDocumentStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{st: st, key: store.RegistryKey, log: logger.Named("registry")}
}

// Snapshot loads the current registry. A missing document is an empty
// registry; an unparsable one is a *model.RegistryCorruptError.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	doc, _, err := store.Load(ctx, r.st, r.key)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return decode(r.key, doc.Version, doc.Content)
}

func (r *Registry) Lookup(ctx context.Context, a string) (model.ThreatType, error) {
	s, err := r.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return s.Lookup(a), nil
}

// UpsertNewEntries records entries as New. Addresses already held as Old
// keep their row; only MarkAllOld changes history. Re-applying the same batch
// leaves the registry unchanged.
func (r *Registry) UpsertNewEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.mutate(ctx, func(cur []Entry) []Entry { return upsert(cur, entries) })
	if err == nil {
		r.log.Info("upserted entries", zap.Int("count", len(entries)))
	}
	return err
}

// MarkAllOld flips every New row to Old.
func (r *Registry) MarkAllOld(ctx context.Context) error {
	flipped := 0
	err := r.mutate(ctx, func(cur []Entry) []Entry {
		out := make([]Entry, len(cur))
		for i, e := range cur {
			if e.Status == model.New {
				e.Status = model.Old
				flipped++
			}
			out[i] = e
		}
		return out
	})
	if err == nil {
		r.log.Info("marked entries old", zap.Int("flipped", flipped))
	}
	return err
}

func (r *Registry) mutate(ctx context.Context, fn func([]Entry) []Entry) error {
	return store.Update(ctx, r.st, r.key, func(cur []byte, _ bool) ([]byte, error) {
		snap, err := decode(r.key, "", cur)
		if err != nil {
			return nil, err
		}
		return encode(fn(snap.entries))
	})
}
