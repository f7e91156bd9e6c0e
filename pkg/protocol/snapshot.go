package protocol

import (
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Snapshot is the full set of deployments as of one poll, in the order the
// backend serialized them. A decoded Snapshot is never modified; a newer poll
// replaces it.
type Snapshot struct {
	m *orderedmap.OrderedMap[string, Record]
}

type Entry struct {
	ID     string
	Record Record
}

func NewSnapshot(entries ...Entry) Snapshot {
	m := orderedmap.New[string, Record](len(entries))
	for _, e := range entries {
		m.Set(e.ID, e.Record)
	}
	return Snapshot{m: m}
}

func (s Snapshot) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

func (s Snapshot) IDs() []string {
	if s.m == nil {
		return nil
	}
	ids := make([]string, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		ids = append(ids, p.Key)
	}
	return ids
}

func (s Snapshot) Entries() []Entry {
	if s.m == nil {
		return nil
	}
	out := make([]Entry, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Entry{ID: p.Key, Record: p.Value})
	}
	return out
}

func (s Snapshot) Get(id string) (Record, bool) {
	if s.m == nil {
		return Record{}, false
	}
	return s.m.Get(id)
}

func (s Snapshot) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	m := orderedmap.New[string, Record]()
	if err := m.UnmarshalJSON(b); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	s.m = m
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.m == nil {
		return []byte("{}"), nil
	}
	return s.m.MarshalJSON()
}
