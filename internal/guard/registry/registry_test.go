package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

func seed(t *testing.T, st store.VersionedDocumentStore, doc string) {
	t.Helper()
	_, err := st.Put(context.Background(), store.RegistryKey, []byte(doc), "")
	require.NoError(t, err)
}

func TestEmptyRegistry(t *testing.T) {
	r := New(store.NewMemoryStore(), nil)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Len())
	assert.Equal(t, model.Normal, snap.Lookup("0xa"))
	assert.False(t, snap.IsOld("0xa"))
}

func TestLookupAndProvenance(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xf","0xn"],"threat_type":["Script Bot","Recycler"],"entry_status":["Old","New"]}`)
	r := New(st, nil)

	tt, err := r.Lookup(context.Background(), "0XF")
	require.NoError(t, err)
	assert.Equal(t, model.ScriptBot, tt)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsOld("0xF"))
	assert.False(t, snap.IsOld("0xn"))
	assert.True(t, snap.Has("0xn"))
	assert.Equal(t, model.Normal, snap.Lookup("0xunknown"))
}

func TestCorruptRegistryIsReported(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":       `{"address":[`,
		"ragged columns": `{"address":["0xa"],"threat_type":[],"entry_status":["Old"]}`,
		"bad status":     `{"address":["0xa"],"threat_type":["Recycler"],"entry_status":["Stale"]}`,
		"bad type":       `{"address":["0xa"],"threat_type":["Whale"],"entry_status":["Old"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore()
			seed(t, st, doc)
			_, err := New(st, nil).Snapshot(context.Background())
			require.Error(t, err)
			assert.True(t, model.IsRegistryCorrupt(err))

			err = New(st, nil).UpsertNewEntries(context.Background(), []Entry{{Address: "0xb", Threat: model.Recycler}})
			assert.True(t, model.IsRegistryCorrupt(err))

			_, err = New(st, nil).OldIndex(context.Background())
			assert.True(t, model.IsRegistryCorrupt(err))
		})
	}
}

func TestUpsertNewEntries(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xf","0xkeep"],"threat_type":["Script Bot","Recycler"],"entry_status":["Old","Old"]}`)
	r := New(st, nil)

	batch := []Entry{
		{Address: "0xF", Threat: model.Recycler},
		{Address: "0xnew", Threat: model.ScriptBot},
		{Address: "0xnew", Threat: model.Recycler}, // later duplicate wins
		{Address: "0xgeneric"},
	}
	require.NoError(t, r.UpsertNewEntries(ctx, batch))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Address: "0XF", Threat: model.ScriptBot, Status: model.Old},
		{Address: "0XKEEP", Threat: model.Recycler, Status: model.Old},
		{Address: "0XNEW", Threat: model.Recycler, Status: model.New},
		{Address: "0XGENERIC", Threat: model.Threats, Status: model.New},
	}, snap.Entries())
	assert.True(t, snap.IsOld("0xf"))

	// a later batch of the same round replaces its own New rows
	require.NoError(t, r.UpsertNewEntries(ctx, []Entry{{Address: "0xnew", Threat: model.ScriptBot}}))
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ScriptBot, snap.Lookup("0xnew"))
	assert.Equal(t, 4, snap.Len())
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xa"],"threat_type":["Recycler"],"entry_status":["Old"]}`)
	r := New(st, nil)
	batch := []Entry{{Address: "0xb", Threat: model.ScriptBot}, {Address: "0xa", Threat: model.ScriptBot}}

	require.NoError(t, r.UpsertNewEntries(ctx, batch))
	once, err := st.Get(ctx, store.RegistryKey)
	require.NoError(t, err)

	require.NoError(t, r.UpsertNewEntries(ctx, batch))
	twice, err := st.Get(ctx, store.RegistryKey)
	require.NoError(t, err)

	assert.JSONEq(t, string(once.Content), string(twice.Content))
}

func TestMarkAllOld(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := New(st, nil)
	require.NoError(t, r.UpsertNewEntries(ctx, []Entry{{Address: "0xa", Threat: model.ScriptBot}}))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.IsOld("0xa"))

	require.NoError(t, r.MarkAllOld(ctx))
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsOld("0xa"))
	assert.Equal(t, model.ScriptBot, snap.Lookup("0xa"))
}

func TestDuplicateRowsCollapseOnLoad(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xa","0xA"],"threat_type":["Recycler","Script Bot"],"entry_status":["Old","Old"]}`)
	snap, err := New(st, nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, model.ScriptBot, snap.Lookup("0xa"))
}

func TestOldIndexUsesPersistedFilter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xf","0xn"],"threat_type":["Script Bot","Recycler"],"entry_status":["Old","New"]}`)
	r := New(st, nil)

	// first read builds the filter from main_db and stores it
	idx, err := r.OldIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.Decoded())
	assert.True(t, idx.IsOld("0xF"))
	assert.False(t, idx.IsOld("0xn"))

	cur, err := st.Get(ctx, store.RegistryKey)
	require.NoError(t, err)
	fdoc, err := st.Get(ctx, store.RegistryFilterKey)
	require.NoError(t, err)
	assert.Contains(t, string(fdoc.Content), cur.Version)

	// the next read trusts the stored filter; a miss never decodes main_db
	idx, err = r.OldIndex(ctx)
	require.NoError(t, err)
	require.NotNil(t, idx.filter)
	miss := ""
	for i := 0; miss == ""; i++ {
		if a := fmt.Sprintf("0XMISS%d", i); !idx.filter.TestString(a) {
			miss = a
		}
	}
	assert.False(t, idx.IsOld(miss))
	assert.False(t, idx.Decoded())
	assert.True(t, idx.IsOld("0xf"))
	assert.True(t, idx.Decoded())
	assert.NoError(t, idx.Err())

	// a registry write makes the filter stale
	require.NoError(t, r.MarkAllOld(ctx))
	idx, err = r.OldIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.Decoded())
	assert.True(t, idx.IsOld("0xn"))
}

func TestOldIndexRebuildsUnreadableFilter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, `{"address":["0xf"],"threat_type":["Script Bot"],"entry_status":["Old"]}`)
	_, err := st.Put(ctx, store.RegistryFilterKey, []byte(`not json`), "")
	require.NoError(t, err)

	idx, err := New(st, nil).OldIndex(ctx)
	require.NoError(t, err)
	assert.True(t, idx.IsOld("0xf"))

	fdoc, err := st.Get(ctx, store.RegistryFilterKey)
	require.NoError(t, err)
	assert.Contains(t, string(fdoc.Content), "registry_version")
}

func TestOldIndexOnEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	idx, err := New(st, nil).OldIndex(ctx)
	require.NoError(t, err)
	assert.False(t, idx.IsOld("0xa"))
	assert.False(t, idx.Decoded())

	_, err = st.Get(ctx, store.RegistryFilterKey)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
