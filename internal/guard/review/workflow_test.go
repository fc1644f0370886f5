package review

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/classify"
	"github.com/chenzhangda16/grantguard/internal/guard/cluster"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
	"github.com/chenzhangda16/grantguard/internal/guard/snapshot"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

type env struct {
	st    *store.MemoryStore
	reg   *registry.Registry
	snaps *snapshot.Store
	wf    *Workflow
}

func newEnv(t *testing.T) env {
	t.Helper()
	st := store.NewMemoryStore()
	e := env{st: st, reg: registry.New(st, nil), snaps: snapshot.New(st, nil)}
	wf, err := New(Config{
		Store:     st,
		Registry:  e.reg,
		Snapshots: e.snaps,
		Now:       func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	e.wf = wf
	return e
}

func TestFullReviewCycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.snaps.SaveClusters(ctx, "r", []cluster.Group{{ID: 0, Members: []string{"0XA", "0XB"}}}))

	rec, err := e.wf.State(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, NoThreats, rec.State)

	rec, err = e.wf.Refresh(ctx, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Flagged, rec.State)

	rec, err = e.wf.Begin(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, UnderReview, rec.State)

	// detection refresh during review does not reset the state
	rec, err = e.wf.Refresh(ctx, "r", 0)
	require.NoError(t, err)
	assert.Equal(t, UnderReview, rec.State)

	rec, err = e.wf.SubmitAll(ctx, "r", []classify.Flag{
		{Address: "0XA", Threat: model.ScriptBot},
		{Address: "0XB", Threat: model.ScriptBot},
	})
	require.NoError(t, err)
	assert.Equal(t, Submitted, rec.State)
	assert.Equal(t, ModeAll, rec.Mode)
	assert.Equal(t, 2, rec.Submitted)

	snap, err := e.reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ScriptBot, snap.Lookup("0xa"))
	assert.False(t, snap.IsOld("0xa"))

	rec, err = e.wf.Clear(ctx, "r", model.Concluded)
	require.NoError(t, err)
	assert.Equal(t, Cleared, rec.State)

	snap, err = e.reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsOld("0xa"))
	assert.True(t, snap.IsOld("0xb"))

	doc, _, err := e.snaps.LoadClusters(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, doc)
	assert.False(t, ReportAvailable(rec, model.Concluded))
}

func TestClearWhileActiveIsRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.snaps.SaveClusters(ctx, "r", []cluster.Group{{ID: 0, Members: []string{"0XA", "0XB"}}}))
	_, err := e.wf.Refresh(ctx, "r", 2)
	require.NoError(t, err)
	_, err = e.wf.Begin(ctx, "r")
	require.NoError(t, err)
	_, err = e.wf.SubmitAll(ctx, "r", []classify.Flag{{Address: "0XA", Threat: model.ScriptBot}})
	require.NoError(t, err)

	regBefore, err := e.st.Get(ctx, store.RegistryKey)
	require.NoError(t, err)
	clBefore, err := e.st.Get(ctx, store.RoundKey("r", store.ClusterDoc))
	require.NoError(t, err)

	rec, err := e.wf.Clear(ctx, "r", model.Active)
	assert.ErrorIs(t, err, model.ErrClearWhileActive)
	assert.Equal(t, Submitted, rec.State)
	assert.True(t, ReportAvailable(rec, model.Active))

	regAfter, err := e.st.Get(ctx, store.RegistryKey)
	require.NoError(t, err)
	clAfter, err := e.st.Get(ctx, store.RoundKey("r", store.ClusterDoc))
	require.NoError(t, err)
	assert.Equal(t, regBefore, regAfter)
	assert.Equal(t, clBefore, clAfter)

	got, err := e.wf.State(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, Submitted, got.State)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.wf.Begin(ctx, "r")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = e.wf.SubmitAll(ctx, "r", nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = e.wf.Clear(ctx, "r", model.Concluded)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	rec, err := e.wf.Refresh(ctx, "r", 0)
	require.NoError(t, err)
	assert.Equal(t, NoThreats, rec.State)
	_, err = e.wf.Begin(ctx, "r")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestSubmitReviewedUsesOnlyApprovedRows(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.wf.Refresh(ctx, "r", 3)
	require.NoError(t, err)
	_, err = e.wf.Begin(ctx, "r")
	require.NoError(t, err)

	rows, err := ParseReviewed(strings.NewReader("voter,Threat Type\n0xa,Script Bot\n0xb,Normal\n0xc,\n\n"))
	require.NoError(t, err)

	rec, err := e.wf.SubmitReviewed(ctx, "r", rows)
	require.NoError(t, err)
	assert.Equal(t, ModeReviewed, rec.Mode)

	snap, err := e.reg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, model.ScriptBot, snap.Lookup("0xa"))
	assert.Equal(t, model.Threats, snap.Lookup("0xc"))
	assert.False(t, snap.Has("0xb"))
}

func TestParseReviewed(t *testing.T) {
	rows, err := ParseReviewed(strings.NewReader("Threats\n0xabc\n 0xdef\n"))
	require.NoError(t, err)
	assert.Equal(t, []registry.Entry{{Address: "0XABC"}, {Address: "0XDEF"}}, rows)

	_, err = ParseReviewed(strings.NewReader("name\nfoo\n"))
	assert.Error(t, err)

	_, err = ParseReviewed(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseReviewed(strings.NewReader("address,threat_type\n0xa,Whale\n"))
	assert.Error(t, err)

	// a reviewer clearing an address keeps it out of the registry
	rows, err = ParseReviewed(strings.NewReader("address,threat_type\n0xa,Normal\n0xb,Recycler\n0xc,normal\n"))
	require.NoError(t, err)
	assert.Equal(t, []registry.Entry{{Address: "0XB", Threat: model.Recycler}}, rows)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, []classify.Flag{{Address: "0XA", Threat: model.Recycler}}))
	assert.Equal(t, "voter,Threat Type\n0XA,Recycler\n", buf.String())

	rows, err := ParseReviewed(&buf)
	require.NoError(t, err)
	assert.Equal(t, []registry.Entry{{Address: "0XA", Threat: model.Recycler}}, rows)
}
