package store

import (
	"context"
	"sync"

	"github.com/tecbot/gorocksdb"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/pkg/hash"
)

func keyDoc(k string) []byte { return []byte("doc:" + k) }
func keyVer(k string) []byte { return []byte("ver:" + k) }

// RocksStore keeps content and version under sibling keys written in one batch.
// RocksDB holds an exclusive lock on the directory, so the mutex is enough to
// make the compare-and-swap atomic.
type RocksStore struct {
	mu sync.Mutex
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

func OpenRocks(path string) (*RocksStore, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}
	wo := gorocksdb.NewDefaultWriteOptions()
	wo.SetSync(true)

	return &RocksStore{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: wo,
	}, nil
}

func (s *RocksStore) Close() error {
	if s.ro != nil {
		s.ro.Destroy()
	}
	if s.wo != nil {
		s.wo.Destroy()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *RocksStore) get(k []byte) ([]byte, bool, error) {
	val, err := s.db.Get(s.ro, k)
	if err != nil {
		return nil, false, err
	}
	defer val.Free()
	if !val.Exists() {
		return nil, false, nil
	}
	// val.Data() 由 RocksDB 管理，Free 之后失效，必须 copy
	return append([]byte(nil), val.Data()...), true, nil
}

func (s *RocksStore) Get(_ context.Context, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ver, ok, err := s.get(keyVer(key))
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, model.ErrNotFound
	}
	content, _, err := s.get(keyDoc(key))
	if err != nil {
		return Document{}, err
	}
	return Document{Content: content, Version: string(ver)}, nil
}

func (s *RocksStore) Put(_ context.Context, key string, content []byte, expected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, err := s.get(keyVer(key))
	if err != nil {
		return "", err
	}
	if string(cur) != expected {
		return "", model.ErrStoreConflict
	}
	next := hash.NextVersion(expected, content)

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	wb.Put(keyDoc(key), content)
	wb.Put(keyVer(key), []byte(next))
	if err := s.db.Write(s.wo, wb); err != nil {
		return "", err
	}
	return next, nil
}
