package addr

import (
	"encoding/hex"
	"errors"
	"strings"
)

var ErrBadAddress = errors.New("bad address")

// Canonical returns the comparison form of an address: trimmed and upper-cased.
// Every map key and every persisted address goes through here.
func Canonical(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Addr20 is the 20 byte form of an EVM address.
type Addr20 [20]byte

// ParseAddr20 parses "0x" prefixed or plain 40-hex string into 20 bytes.
func ParseAddr20(s string) (Addr20, error) {
	var out Addr20
	s = strings.TrimSpace(s)
	if len(s) == 42 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 40 {
		return out, ErrBadAddress
	}
	// hex.Decode into the fixed buffer avoids DecodeString's allocation
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, ErrBadAddress
	}
	return out, nil
}

// Valid reports whether s has the shape of an EVM address.
func Valid(s string) bool {
	_, err := ParseAddr20(s)
	return err == nil
}

// Hex renders the lower-case 0x form used on the wire.
func (a Addr20) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// Set keeps canonical addresses in first-insertion order.
type Set struct {
	idx   map[string]int
	order []string
}

func NewSet(addrs ...string) *Set {
	s := &Set{idx: make(map[string]int, len(addrs))}
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// Add inserts a; returns false when it was already present.
func (s *Set) Add(a string) bool {
	k := Canonical(a)
	if k == "" {
		return false
	}
	if _, ok := s.idx[k]; ok {
		return false
	}
	s.idx[k] = len(s.order)
	s.order = append(s.order, k)
	return true
}

func (s *Set) Has(a string) bool {
	if s == nil {
		return false
	}
	_, ok := s.idx[Canonical(a)]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns a copy in insertion order.
func (s *Set) Slice() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Intersect keeps the order of s.
func (s *Set) Intersect(o *Set) *Set {
	out := NewSet()
	for _, a := range s.Slice() {
		if o.Has(a) {
			out.Add(a)
		}
	}
	return out
}
