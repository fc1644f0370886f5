package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicStreams(t *testing.T) {
	a, b := New(Deterministic, 9), New(Deterministic, 9)
	assert.Equal(t, a.R(Amount).Int63(), b.R(Amount).Int63())

	// drawing from one stream does not shift another
	c := New(Deterministic, 9)
	_ = c.R(Timing).Int63()
	_ = c.R(Timing).Int63()
	assert.Equal(t, New(Deterministic, 9).R(Wallets).Int63(), c.R(Wallets).Int63())

	assert.Same(t, a.R(Projects), a.R(Projects))
	assert.NotEqual(t, a.R(AddrPool).Int63(), New(Deterministic, 10).R(AddrPool).Int63())
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, Deterministic, ModeFor(true))
	assert.Equal(t, Real, ModeFor(false))
	assert.Equal(t, "real", Real.String())

	f := New(Real, 1)
	assert.Equal(t, Real, f.Mode())
	assert.NotEqual(t, int64(1), f.Seed())
}
