package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash32 is a sha256 digest.
type Hash32 [32]byte

func (h Hash32) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// Short is the first 8 bytes in hex, enough for document versions.
func (h Hash32) Short() string { return hex.EncodeToString(h[:8]) }

// Builder builds a canonical byte sequence then hashes it to Hash32 (sha256).
//
// Encoding rules:
//   - Fixed-width integers: big-endian
//   - Bytes/string: u32(len) big-endian + bytes
//
// Used for document versions and deterministic mock identifiers.
type Builder struct {
	b []byte
}

func NewBuilder() *Builder { return &Builder{b: make([]byte, 0, 128)} }

func (d *Builder) Reset() { d.b = d.b[:0] }

func (d *Builder) PutU64(v uint64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	d.b = append(d.b, buf[:]...)
	return d
}

func (d *Builder) PutI64(v int64) *Builder { return d.PutU64(uint64(v)) }

// PutBytes appends: u32(len) + bytes
func (d *Builder) PutBytes(p []byte) *Builder {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(p)))
	d.b = append(d.b, buf[:]...)
	d.b = append(d.b, p...)
	return d
}

func (d *Builder) PutString(s string) *Builder { return d.PutBytes([]byte(s)) }

func (d *Builder) Sum32() Hash32 {
	return sha256.Sum256(d.b)
}

// NextVersion chains a document version: H(prev || content).
// Writing the same content twice still yields a new version, so a stale
// reader can never win a compare-and-swap by coincidence.
func NextVersion(prev string, content []byte) string {
	return NewBuilder().PutString(prev).PutBytes(content).Sum32().Short()
}
