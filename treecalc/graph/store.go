// Package graph holds the id-indexed item store.
//
// The store owns every item and hands out ids. It does not enforce name
// uniqueness or reference counts; callers that mutate it (the codec and the
// editor) call RecountRefs themselves.
//
// The item graph is directed and not necessarily a tree: an id may appear in
// several child lists, or more than once in the same list.
package graph

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/treecalc/types"
)

// Store owns every item and the id allocator
type Store struct {
	items map[uint64]*types.Item
	next  uint64
}

// New creates an empty store whose first allocated id is the root id
func New() *Store {
	return &Store{
		items: make(map[uint64]*types.Item),
		next:  types.RootID,
	}
}

// AllocateID returns the next id and advances the allocator. Ids are never reused.
func (s *Store) AllocateID() uint64 {
	id := s.next
	s.next++
	return id
}

// NextID returns the id the allocator will hand out next
func (s *Store) NextID() uint64 {
	return s.next
}

// Get returns a copy of the item so callers cannot mutate the store by accident
func (s *Store) Get(id uint64) (*types.Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// GetMut returns the stored item itself
func (s *Store) GetMut(id uint64) (*types.Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Has reports whether id is present
func (s *Store) Has(id uint64) bool {
	_, ok := s.items[id]
	return ok
}

// Insert stores the item under its id, replacing any existing entry.
// The allocator is moved past the id so it is never handed out again.
func (s *Store) Insert(it *types.Item) {
	s.items[it.ID] = it
	if it.ID >= s.next {
		s.next = it.ID + 1
	}
}

// Remove deletes the item and returns it
func (s *Store) Remove(id uint64) (*types.Item, bool) {
	it, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	return it, ok
}

// Len returns the number of live items
func (s *Store) Len() int {
	return len(s.items)
}

// IDs returns every live id in ascending order
func (s *Store) IDs() []uint64 {
	ids := make([]uint64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Items returns the stored items in ascending id order
func (s *Store) Items() []*types.Item {
	ids := s.IDs()
	out := make([]*types.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out
}

// FindByName returns the item currently owning name
func (s *Store) FindByName(name string) (*types.Item, bool) {
	for _, it := range s.items {
		if it.Name == name {
			return it, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the store, allocator included
func (s *Store) Clone() *Store {
	c := &Store{
		items: make(map[uint64]*types.Item, len(s.items)),
		next:  s.next,
	}
	for id, it := range s.items {
		c.items[id] = it.Clone()
	}
	return c
}

// countRefs tallies occurrences of every id across all child lists
func (s *Store) countRefs() map[uint64]uint64 {
	counts := make(map[uint64]uint64, len(s.items))
	for _, it := range s.items {
		if it.Expand == nil {
			continue
		}
		for _, child := range it.Expand.Children {
			counts[child]++
		}
	}
	return counts
}

// RecountRefs recomputes every item's reference count from the child lists
func (s *Store) RecountRefs() {
	counts := s.countRefs()
	for id, it := range s.items {
		it.RefCount = counts[id]
	}
}

// CheckRefCounts verifies that stored reference counts match the child lists
func (s *Store) CheckRefCounts() error {
	counts := s.countRefs()
	for _, id := range s.IDs() {
		it := s.items[id]
		if it.RefCount != counts[id] {
			return fmt.Errorf("%w: item %d (%q) has ref_count %d, expected %d",
				types.ErrCorrupt, id, it.Name, it.RefCount, counts[id])
		}
	}
	for child := range counts {
		if _, ok := s.items[child]; !ok {
			return fmt.Errorf("%w: child id %d is referenced but not stored", types.ErrCorrupt, child)
		}
	}
	return nil
}

// CheckNames verifies that no two items share a name
func (s *Store) CheckNames() error {
	owners := make(map[string]uint64, len(s.items))
	for _, id := range s.IDs() {
		it := s.items[id]
		if prev, ok := owners[it.Name]; ok {
			return fmt.Errorf("%w: items %d and %d share the name %q", types.ErrCorrupt, prev, id, it.Name)
		}
		owners[it.Name] = id
	}
	return nil
}

// CheckAcyclic verifies that no item is its own ancestor
func (s *Store) CheckAcyclic() error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[uint64]int, len(s.items))

	var visit func(id uint64) error
	visit = func(id uint64) error {
		switch state[id] {
		case active:
			return fmt.Errorf("%w: item %d (%q) is its own ancestor", types.ErrCorrupt, id, s.items[id].Name)
		case done:
			return nil
		}
		it, ok := s.items[id]
		if !ok || it.Expand == nil {
			state[id] = done
			return nil
		}
		state[id] = active
		for _, child := range it.Expand.Children {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, id := range s.IDs() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
