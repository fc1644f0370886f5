package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/out"
)

type memEvents struct {
	got  []out.RoundEvent
	fail bool
}

func (m *memEvents) InsertEvent(_ context.Context, _ out.Envelope, ev out.RoundEvent) error {
	if m.fail {
		return errors.New("db down")
	}
	m.got = append(m.got, ev)
	return nil
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	st := &memEvents{}
	h := &Handler{Store: st}

	msg, err := out.Wrap(out.TypeDetectionRefreshed, out.RoundEvent{Round: "r1", Clusters: 2})
	require.NoError(t, err)
	assert.True(t, h.Handle(ctx, msg))
	require.Len(t, st.got, 1)
	assert.Equal(t, 2, st.got[0].Clusters)

	assert.True(t, h.Handle(ctx, []byte("garbage")))
	other, err := out.Wrap("win_tick", map[string]int{"x": 1})
	require.NoError(t, err)
	assert.True(t, h.Handle(ctx, other))
	assert.Len(t, st.got, 1)

	st.fail = true
	assert.False(t, h.Handle(ctx, msg))
}
