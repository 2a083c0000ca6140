package ledger

import (
	"encoding/json"
	"sort"
)

// DaySet is a set of day indices. It encodes as a sorted JSON array.
type DaySet map[int]struct{}

func NewDaySet(days ...int) DaySet {
	s := make(DaySet, len(days))
	for _, d := range days {
		s.Add(d)
	}
	return s
}

func (s DaySet) Add(d int) { s[d] = struct{}{} }

func (s DaySet) Has(d int) bool {
	_, ok := s[d]
	return ok
}

func (s DaySet) Union(o DaySet) {
	for d := range o {
		s[d] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s DaySet) Sorted() []int {
	out := make([]int, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func (s DaySet) Clone() DaySet {
	c := make(DaySet, len(s))
	c.Union(s)
	return c
}

func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *DaySet) UnmarshalJSON(b []byte) error {
	var days []int
	if err := json.Unmarshal(b, &days); err != nil {
		return err
	}
	*s = NewDaySet(days...)
	return nil
}
