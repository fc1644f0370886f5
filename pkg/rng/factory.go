// Package rng hands out named, independently seeded random streams so a
// generated scenario is reproducible stream by stream.
package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

type Mode int

const (
	Deterministic Mode = iota
	Real
)

// ModeFor maps a "reproducible" switch to a Mode.
func ModeFor(reproducible bool) Mode {
	if reproducible {
		return Deterministic
	}
	return Real
}

func (m Mode) String() string {
	if m == Real {
		return "real"
	}
	return "deterministic"
}

type Factory struct {
	baseSeed int64
	mode     Mode

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		// Real 模式只在初始化时取一次时间 seed
		seed = time.Now().UnixNano()
	}
	return &Factory{
		baseSeed: seed,
		mode:     mode,
		streams:  make(map[string]*rand.Rand),
	}
}

// Seed is the effective base seed; log it to replay a Real run.
func (f *Factory) Seed() int64 { return f.baseSeed }

func (f *Factory) Mode() Mode { return f.mode }

// R returns the named stream, creating it on first use. A *rand.Rand is not
// safe for concurrent use: callers that share a stream across goroutines
// must serialize their draws.
func (f *Factory) R(name string) *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.streams[name]; ok {
		return r
	}
	r := rand.New(rand.NewSource(deriveSeed(f.baseSeed, name)))
	f.streams[name] = r
	return r
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}
