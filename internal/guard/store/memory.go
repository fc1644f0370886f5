package store

import (
	"context"
	"sync"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/pkg/hash"
)

type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	if !ok {
		return Document{}, model.ErrNotFound
	}
	return Document{Content: append([]byte(nil), d.Content...), Version: d.Version}, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, content []byte, expected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.docs[key]
	if cur.Version != expected {
		return "", model.ErrStoreConflict
	}
	v := hash.NextVersion(cur.Version, content)
	s.docs[key] = Document{Content: append([]byte(nil), content...), Version: v}
	return v, nil
}

func (s *MemoryStore) Close() error { return nil }
