package domain

import "sort"

// ResultSet accumulates records keyed by sequence for one recovery run.
// It is not safe for concurrent use.
type ResultSet struct {
	records map[int32]Record
}

func NewResultSet() *ResultSet {
	return &ResultSet{records: make(map[int32]Record)}
}

// Put stores r under its sequence, replacing any earlier record with the same key.
func (s *ResultSet) Put(r Record) {
	s.records[r.Sequence] = r
}

func (s *ResultSet) Len() int {
	return len(s.records)
}

func (s *ResultSet) Has(seq int32) bool {
	_, ok := s.records[seq]
	return ok
}

func (s *ResultSet) Get(seq int32) (Record, bool) {
	r, ok := s.records[seq]
	return r, ok
}

// Bounds returns the smallest and largest sequence present.
func (s *ResultSet) Bounds() (lo, hi int32, ok bool) {
	if len(s.records) == 0 {
		return 0, 0, false
	}
	first := true
	for seq := range s.records {
		if first {
			lo, hi = seq, seq
			first = false
			continue
		}
		if seq < lo {
			lo = seq
		}
		if seq > hi {
			hi = seq
		}
	}
	return lo, hi, true
}

// Missing lists, ascending, every sequence strictly inside the observed
// bounds that has no record. Gaps before the lowest or after the highest
// observed sequence cannot be seen and are never reported.
func (s *ResultSet) Missing() []int32 {
	lo, hi, ok := s.Bounds()
	if !ok {
		return nil
	}
	var missing []int32
	for seq := lo; seq < hi; seq++ {
		if !s.Has(seq) {
			missing = append(missing, seq)
		}
	}
	return missing
}

// Ordered returns the records sorted by ascending sequence.
func (s *ResultSet) Ordered() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
