package registry

import (
	"encoding/json"
	"fmt"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

type Entry struct {
	Address string
	Threat  model.ThreatType
	Status  model.Provenance
}

// columns is the persisted layout: three parallel arrays.
type columns struct {
	Address     []string `json:"address"`
	ThreatType  []string `json:"threat_type"`
	EntryStatus []string `json:"entry_status"`
}

// Snapshot is an immutable view of the registry at one version.
type Snapshot struct {
	Version string

	entries []Entry
	idx     map[string]int
}

func newSnapshot(version string, entries []Entry) *Snapshot {
	s := &Snapshot{Version: version, entries: entries, idx: make(map[string]int, len(entries))}
	for i, e := range entries {
		s.idx[e.Address] = i
	}
	return s
}

func decode(key, version string, b []byte) (*Snapshot, error) {
	if len(b) == 0 {
		return newSnapshot(version, nil), nil
	}
	var c columns
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, &model.RegistryCorruptError{Key: key, Err: err}
	}
	if len(c.Address) != len(c.ThreatType) || len(c.Address) != len(c.EntryStatus) {
		return nil, &model.RegistryCorruptError{Key: key, Err: fmt.Errorf(
			"column lengths differ: address=%d threat_type=%d entry_status=%d",
			len(c.Address), len(c.ThreatType), len(c.EntryStatus))}
	}
	rows := make([]Entry, 0, len(c.Address))
	for i := range c.Address {
		tt, err := model.ParseThreatType(c.ThreatType[i])
		if err != nil {
			return nil, &model.RegistryCorruptError{Key: key, Err: fmt.Errorf("row %d: %w", i, err)}
		}
		st := model.Provenance(c.EntryStatus[i])
		if st != model.Old && st != model.New {
			return nil, &model.RegistryCorruptError{Key: key, Err: fmt.Errorf("row %d: bad entry_status %q", i, c.EntryStatus[i])}
		}
		rows = append(rows, Entry{Address: addr.Canonical(c.Address[i]), Threat: tt, Status: st})
	}
	// older documents may carry duplicates; the last row wins
	return newSnapshot(version, collapse(rows)), nil
}

func encode(entries []Entry) ([]byte, error) {
	c := columns{
		Address:     make([]string, len(entries)),
		ThreatType:  make([]string, len(entries)),
		EntryStatus: make([]string, len(entries)),
	}
	for i, e := range entries {
		c.Address[i] = e.Address
		c.ThreatType[i] = string(e.Threat)
		c.EntryStatus[i] = string(e.Status)
	}
	return json.Marshal(c)
}

// Lookup returns the recorded threat type, Normal when absent.
func (s *Snapshot) Lookup(a string) model.ThreatType {
	if i, ok := s.idx[addr.Canonical(a)]; ok {
		return s.entries[i].Threat
	}
	return model.Normal
}

// IsOld reports whether a was committed in an earlier round.
func (s *Snapshot) IsOld(a string) bool {
	i, ok := s.idx[addr.Canonical(a)]
	return ok && s.entries[i].Status == model.Old
}

func (s *Snapshot) Has(a string) bool {
	_, ok := s.idx[addr.Canonical(a)]
	return ok
}

func (s *Snapshot) Len() int { return len(s.entries) }

func (s *Snapshot) Entries() []Entry { return append([]Entry(nil), s.entries...) }

// collapse keeps one row per address: the last occurrence, placed where the
// address first appeared.
func collapse(rows []Entry) []Entry {
	pos := make(map[string]int, len(rows))
	out := make([]Entry, 0, len(rows))
	for _, e := range rows {
		if i, ok := pos[e.Address]; ok {
			out[i] = e
			continue
		}
		pos[e.Address] = len(out)
		out = append(out, e)
	}
	return out
}

// upsert replaces every New row whose address is in incoming with the
// incoming row marked New. Old rows are history and are never rewritten:
// an incoming row for an Old address is dropped. Unrelated rows keep their
// position and provenance.
func upsert(cur []Entry, incoming []Entry) []Entry {
	old := make(map[string]struct{})
	for _, e := range cur {
		if e.Status == model.Old {
			old[e.Address] = struct{}{}
		}
	}
	in := make([]Entry, 0, len(incoming))
	for _, e := range incoming {
		k := addr.Canonical(e.Address)
		if k == "" {
			continue
		}
		if _, ok := old[k]; ok {
			continue
		}
		tt := e.Threat
		if tt == "" {
			tt = model.Threats
		}
		in = append(in, Entry{Address: k, Threat: tt, Status: model.New})
	}
	in = collapse(in)

	touched := make(map[string]struct{}, len(in))
	for _, e := range in {
		touched[e.Address] = struct{}{}
	}
	out := make([]Entry, 0, len(cur)+len(in))
	for _, e := range cur {
		if _, ok := touched[e.Address]; !ok {
			out = append(out, e)
		}
	}
	return append(out, in...)
}
