package extract

import (
	"github.com/relloyd/fieldpipe/fieldroutes"
)

// IdentifierSet is a set of ids; it has no duplicates and no meaningful insertion order.
type IdentifierSet struct {
	m map[fieldroutes.ID]struct{}
}

func NewIdentifierSet() *IdentifierSet {
	return &IdentifierSet{m: make(map[fieldroutes.ID]struct{})}
}

// Add inserts ids and returns how many were new.
func (s *IdentifierSet) Add(ids ...fieldroutes.ID) (added int) {
	for _, id := range ids {
		if _, ok := s.m[id]; !ok {
			s.m[id] = struct{}{}
			added++
		}
	}
	return
}

// Union adds every id in o.
func (s *IdentifierSet) Union(o *IdentifierSet) {
	for id := range o.m {
		s.m[id] = struct{}{}
	}
}

func (s *IdentifierSet) Len() int {
	return len(s.m)
}

// Sorted returns the ids in ascending order.
func (s *IdentifierSet) Sorted() []fieldroutes.ID {
	retval := make([]fieldroutes.ID, 0, len(s.m))
	for id := range s.m {
		retval = append(retval, id)
	}
	fieldroutes.SortIDs(retval)
	return retval
}
