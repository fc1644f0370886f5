// Package snapshot persists the per-round detector outputs: the cluster
// document and the recycle document. Both are plain name -> addresses maps.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/cluster"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/recycle"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

// Doc is the persisted shape of both snapshots.
type Doc map[string][]string

// Members returns every distinct address in the document, sorted.
func (d Doc) Members() []string {
	set := addr.NewSet()
	for _, vs := range d {
		for _, v := range vs {
			set.Add(v)
		}
	}
	out := set.Slice()
	sort.Strings(out)
	return out
}

type Store struct {
	st  store.VersionedDocumentStore
	log *zap.Logger
}

func New(st store.VersionedDocumentStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{st: st, log: logger.Named("snapshot")}
}

// Seed creates empty documents for a round when they do not exist yet.
func (s *Store) Seed(ctx context.Context, roundID string) error {
	for _, name := range []string{store.ClusterDoc, store.RecycleDoc} {
		key := store.RoundKey(roundID, name)
		_, exists, err := store.Load(ctx, s.st, key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		// losing the create race to another seeder is fine
		if _, err := s.st.Put(ctx, key, []byte("{}"), ""); err != nil && !errors.Is(err, model.ErrStoreConflict) {
			return fmt.Errorf("seed %s: %w", key, err)
		}
		s.log.Debug("seeded", zap.String("key", key))
	}
	return nil
}

func (s *Store) SaveClusters(ctx context.Context, roundID string, groups []cluster.Group) error {
	doc := make(Doc, len(groups))
	for _, g := range groups {
		doc[g.Name()] = g.Members
	}
	return s.save(ctx, store.RoundKey(roundID, store.ClusterDoc), doc)
}

// SaveRecycle persists only grantees with at least one recycled voter.
func (s *Store) SaveRecycle(ctx context.Context, roundID string, m recycle.Map) error {
	return s.save(ctx, store.RoundKey(roundID, store.RecycleDoc), Doc(m.NonEmpty()))
}

func (s *Store) LoadClusters(ctx context.Context, roundID string) (Doc, bool, error) {
	return s.load(ctx, store.RoundKey(roundID, store.ClusterDoc))
}

func (s *Store) LoadRecycle(ctx context.Context, roundID string) (Doc, bool, error) {
	return s.load(ctx, store.RoundKey(roundID, store.RecycleDoc))
}

// Reset empties both documents of a round.
func (s *Store) Reset(ctx context.Context, roundID string) error {
	var errs []error
	for _, name := range []string{store.ClusterDoc, store.RecycleDoc} {
		if err := s.save(ctx, store.RoundKey(roundID, name), Doc{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) save(ctx context.Context, key string, doc Doc) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return store.Update(ctx, s.st, key, func([]byte, bool) ([]byte, error) { return b, nil })
}

func (s *Store) load(ctx context.Context, key string) (Doc, bool, error) {
	d, exists, err := store.Load(ctx, s.st, key)
	if err != nil || !exists {
		return Doc{}, exists, err
	}
	var doc Doc
	if err := json.Unmarshal(d.Content, &doc); err != nil {
		return Doc{}, true, fmt.Errorf("decode %s: %w", key, err)
	}
	for k, vs := range doc {
		for i, v := range vs {
			vs[i] = addr.Canonical(v)
		}
		doc[k] = vs
	}
	return doc, true, nil
}
