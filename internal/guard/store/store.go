// Package store holds the versioned document store used for snapshots,
// wallet-feature caches, review state and the threat registry.
//
// Every mutation is a conditional write: Put succeeds only when the stored
// version still equals the version the caller read. An empty expected
// version means "create, must not exist".
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

type Document struct {
	Content []byte
	Version string
}

type VersionedDocumentStore interface {
	// Get returns model.ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (Document, error)
	// Put returns the new version, or model.ErrStoreConflict.
	Put(ctx context.Context, key string, content []byte, expectedVersion string) (string, error)
	Close() error
}

const (
	RegistryKey = "main_db"

	// RegistryFilterKey holds a bloom filter of main_db's Old addresses.
	RegistryFilterKey = "main_db.old_filter"
)

// Round scoped documents.
const (
	ClusterDoc     = "cosine_clusters.json"
	RecycleDoc     = "recycle_clusters.json"
	ReviewStateDoc = "review_state.json"
)

// Chain scoped caches.
const (
	WalletFeaturesDoc = "wallet_features.json"
	BlockTimesDoc     = "block_times.json"
)

func RoundKey(roundID, name string) string { return "review_db/" + roundID + "/" + name }

func ChainKey(chainID int64, name string) string { return fmt.Sprintf("chain/%d/%s", chainID, name) }

// Load is Get that maps a missing key to an empty document.
func Load(ctx context.Context, s VersionedDocumentStore, key string) (Document, bool, error) {
	doc, err := s.Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

// Update performs one read -> fn -> conditional write cycle. A lost race
// surfaces as model.ErrStoreConflict; the caller decides whether to reload.
// fn returning a nil slice means "no change".
func Update(ctx context.Context, s VersionedDocumentStore, key string, fn func(cur []byte, exists bool) ([]byte, error)) error {
	doc, exists, err := Load(ctx, s, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	next, err := fn(doc.Content, exists)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if _, err := s.Put(ctx, key, next, doc.Version); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Config selects a backend.
type Config struct {
	Driver      string // memory | rocks | postgres
	RocksPath   string
	PostgresDSN string
}

func Open(ctx context.Context, cfg Config) (VersionedDocumentStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "rocks":
		s, err := OpenRocks(cfg.RocksPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
