package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

// filterDoc is the persisted Old-address filter, valid only for the main_db
// version it was built from.
type filterDoc struct {
	RegistryVersion string             `json:"registry_version"`
	Old             int                `json:"old"`
	Filter          *bloom.BloomFilter `json:"filter"`
}

func newOldFilter(entries []Entry) (*bloom.BloomFilter, int) {
	n := 0
	for _, e := range entries {
		if e.Status == model.Old {
			n++
		}
	}
	f := bloom.NewWithEstimates(uint(max(n, 1)), 0.001)
	for _, e := range entries {
		if e.Status == model.Old {
			f.AddString(e.Address)
		}
	}
	return f, n
}

// OldIndex answers IsOld for a whole round of voters. Addresses the filter
// rules out are answered without decoding main_db; a hit is confirmed against
// the decoded registry, which is loaded at most once.
// Not safe for concurrent use.
type OldIndex struct {
	filter *bloom.BloomFilter
	decode func() (*Snapshot, error)

	snap *Snapshot
	err  error
}

func (x *OldIndex) IsOld(a string) bool {
	if x.filter == nil {
		return false
	}
	k := addr.Canonical(a)
	if !x.filter.TestString(k) {
		return false
	}
	if x.snap == nil && x.err == nil {
		x.snap, x.err = x.decode()
	}
	if x.err != nil {
		return false
	}
	return x.snap.IsOld(k)
}

// Err is the decode error hit while confirming a filter match, if any.
func (x *OldIndex) Err() error { return x.err }

// Decoded reports whether main_db had to be decoded.
func (x *OldIndex) Decoded() bool { return x.snap != nil || x.err != nil }

// OldIndex loads the Old-address filter for the current registry version.
// A missing or stale filter is rebuilt from main_db and written back; failing
// to write it back only costs the next caller a rebuild.
func (r *Registry) OldIndex(ctx context.Context) (*OldIndex, error) {
	doc, exists, err := store.Load(ctx, r.st, r.key)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if !exists {
		return &OldIndex{}, nil
	}
	lazy := func() (*Snapshot, error) { return decode(r.key, doc.Version, doc.Content) }

	fkey := store.RegistryFilterKey
	fdoc, ok, err := store.Load(ctx, r.st, fkey)
	if err != nil {
		return nil, fmt.Errorf("load registry filter: %w", err)
	}
	if ok {
		var fd filterDoc
		if err := json.Unmarshal(fdoc.Content, &fd); err != nil {
			r.log.Warn("registry filter unreadable, rebuilding", zap.Error(err))
		} else if fd.RegistryVersion == doc.Version && fd.Filter != nil {
			return &OldIndex{filter: fd.Filter, decode: lazy}, nil
		}
	}

	snap, err := lazy()
	if err != nil {
		return nil, err
	}
	f, n := newOldFilter(snap.entries)
	b, err := json.Marshal(filterDoc{RegistryVersion: doc.Version, Old: n, Filter: f})
	if err == nil {
		_, err = r.st.Put(ctx, fkey, b, fdoc.Version)
	}
	if err != nil {
		r.log.Debug("registry filter not persisted", zap.Error(err))
	} else {
		r.log.Debug("registry filter rebuilt", zap.String("version", doc.Version), zap.Int("old", n))
	}
	return &OldIndex{filter: f, decode: lazy, snap: snap}, nil
}
