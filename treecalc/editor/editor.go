// Package editor implements the structural edits on an item store.
//
// Every function expects the caller to hold exclusive access to the store.
// Edits validate all preconditions before the first mutation, so a returned
// error always leaves the store as it was.
package editor

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/treecalc/internal/validation"
	"github.com/arthur-debert/treecalc/treecalc/graph"
	"github.com/arthur-debert/treecalc/types"
)

// PlaceholderName is the base name given to items created by AddChild
const PlaceholderName = "new item"

// RenameResult describes what a rename did. It is either RenamedInPlace or MergedInto.
type RenameResult interface {
	isRenameResult()
}

// RenamedInPlace means the item kept its id and took the new name
type RenamedInPlace struct {
	ID   uint64
	Name string
}

// MergedInto means a leaf was folded into the existing item owning the new name.
// Affected holds the survivor and every parent whose child list changed.
type MergedInto struct {
	Removed  uint64
	Survivor uint64
	Affected []uint64
}

func (RenamedInPlace) isRenameResult() {}
func (MergedInto) isRenameResult()     {}

// DeleteResult describes what a delete did.
// Removed is nil when the item was shared and only unlinked from one parent.
type DeleteResult struct {
	Removed *uint64
	Changed []uint64
}

// ToggleResult describes what a toggle did
type ToggleResult struct {
	ID        uint64
	Composite bool     // State after the toggle
	Detached  []uint64 // Children that lost a parent link, in child-list order
}

func lookup(s *graph.Store, op string, id uint64) (*types.Item, error) {
	it, ok := s.GetMut(id)
	if !ok {
		return nil, types.Errorf(op, types.ErrNotFound, "item %d not found", id)
	}
	return it, nil
}

// Rename gives the item a new name. When another item already owns the name and
// the renamed item is a leaf, the leaf is merged into the owner: it is removed
// and every child list that pointed at it points at the owner instead. The owner
// may be a composite, as long as the leaf is not among its descendants.
func Rename(s *graph.Store, id uint64, newName string) (RenameResult, error) {
	const op = "rename"

	it, err := lookup(s, op, id)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateName(newName); err != nil {
		return nil, types.WrapError(op, types.ErrInvalid, err)
	}
	if it.Name == newName {
		return nil, types.Errorf(op, types.ErrInvalid, "item %d is already named %q", id, newName)
	}

	owner, taken := s.FindByName(newName)
	if !taken {
		it.Name = newName
		return RenamedInPlace{ID: id, Name: newName}, nil
	}

	if it.IsComposite() {
		return nil, types.Errorf(op, types.ErrInvalid, "name %q is taken and item %d has children, composites cannot be merged", newName, id)
	}
	if id == types.RootID {
		return nil, types.Errorf(op, types.ErrInvalid, "the root item cannot be merged into %q", newName)
	}
	if reaches(s, owner.ID, id) {
		return nil, types.Errorf(op, types.ErrInvalid, "%q contains item %d, merging would make it its own child", newName, id)
	}

	changed := replaceChild(s, id, &owner.ID)
	s.Remove(id)
	s.RecountRefs()

	affected := append(changed, owner.ID)
	return MergedInto{Removed: id, Survivor: owner.ID, Affected: sortedUnique(affected)}, nil
}

// Delete removes the item from parentID. An item referenced by a single parent
// (or by none) is removed from the store entirely. A shared item loses one
// occurrence in parentID's child list, and parentID must then be given.
func Delete(s *graph.Store, id uint64, parentID *uint64) (DeleteResult, error) {
	const op = "delete"

	if id == types.RootID {
		return DeleteResult{}, types.Errorf(op, types.ErrInvalid, "the root item cannot be deleted")
	}
	it, err := lookup(s, op, id)
	if err != nil {
		return DeleteResult{}, err
	}

	if it.RefCount <= 1 {
		changed := replaceChild(s, id, nil)
		s.Remove(id)
		s.RecountRefs()
		removed := id
		return DeleteResult{Removed: &removed, Changed: sortedUnique(changed)}, nil
	}

	if parentID == nil {
		return DeleteResult{}, types.Errorf(op, types.ErrInvalid, "item %d has %d parents, the parent to unlink from is required", id, it.RefCount)
	}
	parent, err := lookup(s, op, *parentID)
	if err != nil {
		return DeleteResult{}, err
	}
	if parent.IsLeaf() {
		return DeleteResult{}, types.Errorf(op, types.ErrInvalid, "parent %d has no children", *parentID)
	}
	if !contains(parent.Expand.Children, id) {
		return DeleteResult{}, types.Errorf(op, types.ErrInvalid, "parent %d does not list item %d", *parentID, id)
	}

	parent.Expand.Children = withoutFirst(parent.Expand.Children, id)
	s.RecountRefs()
	return DeleteResult{Changed: sortedUnique([]uint64{*parentID, id})}, nil
}

// AddChild appends a new leaf with a unique placeholder name to the parent.
// It returns the new item's id.
func AddChild(s *graph.Store, parentID uint64) (uint64, error) {
	const op = "add"

	parent, err := lookup(s, op, parentID)
	if err != nil {
		return 0, err
	}
	if parent.IsLeaf() {
		return 0, types.Errorf(op, types.ErrInvalid, "item %d is a leaf, make it expandable first", parentID)
	}

	name := suggestName(s, PlaceholderName)
	id := s.AllocateID()
	parent.Expand.Children = append(parent.Expand.Children, id)
	s.Insert(&types.Item{ID: id, Name: name, RefCount: 1})
	return id, nil
}

// ToggleExpandable turns a leaf into an empty composite, or a composite into a leaf.
// Dropping the children of a composite needs confirmed; the children are detached,
// not deleted.
func ToggleExpandable(s *graph.Store, id uint64, confirmed bool) (ToggleResult, error) {
	const op = "toggle"

	it, err := lookup(s, op, id)
	if err != nil {
		return ToggleResult{}, err
	}

	if it.IsLeaf() {
		it.Expand = &types.ExpandInfo{Reduction: types.ReductionNone, Children: []uint64{}}
		return ToggleResult{ID: id, Composite: true}, nil
	}

	if id == types.RootID {
		return ToggleResult{}, types.Errorf(op, types.ErrInvalid, "the root item must stay expandable")
	}
	if len(it.Expand.Children) > 0 && !confirmed {
		return ToggleResult{}, types.Errorf(op, types.ErrCancelled, "item %d still has %d children", id, len(it.Expand.Children))
	}

	detached := it.Expand.Children
	it.Expand = nil
	s.RecountRefs()
	return ToggleResult{ID: id, Composite: false, Detached: detached}, nil
}

// NeedsConfirmation reports whether toggling id would detach children
func NeedsConfirmation(s *graph.Store, id uint64) (bool, error) {
	it, err := lookup(s, "toggle", id)
	if err != nil {
		return false, err
	}
	if id == types.RootID && it.IsComposite() {
		return false, types.Errorf("toggle", types.ErrInvalid, "the root item must stay expandable")
	}
	return it.IsComposite() && len(it.Expand.Children) > 0, nil
}

// UpdateReduction sets the reduction of a composite item
func UpdateReduction(s *graph.Store, id uint64, r types.Reduction) error {
	const op = "set-reduction"

	it, err := lookup(s, op, id)
	if err != nil {
		return err
	}
	if it.IsLeaf() {
		return types.Errorf(op, types.ErrInvalid, "item %d is a leaf and has no reduction", id)
	}
	it.Expand.Reduction = r
	return nil
}

// replaceChild rewrites every child list containing id. With a replacement the
// occurrences point at it, otherwise they are dropped. Returns the changed parents.
func replaceChild(s *graph.Store, id uint64, replacement *uint64) []uint64 {
	var changed []uint64
	for _, it := range s.Items() {
		if it.ID == id || it.IsLeaf() || !contains(it.Expand.Children, id) {
			continue
		}
		if replacement != nil {
			for i, child := range it.Expand.Children {
				if child == id {
					it.Expand.Children[i] = *replacement
				}
			}
		} else {
			it.Expand.Children = without(it.Expand.Children, id)
		}
		changed = append(changed, it.ID)
	}
	return changed
}

// suggestName returns base, or base followed by the smallest free integer suffix
func suggestName(s *graph.Store, base string) string {
	taken := make(map[string]bool, s.Len())
	for _, it := range s.Items() {
		taken[it.Name] = true
	}
	name := base
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

// reaches reports whether target is a descendant of from
func reaches(s *graph.Store, from, target uint64) bool {
	visited := map[uint64]bool{}
	stack := []uint64{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		it, ok := s.GetMut(id)
		if !ok || it.IsLeaf() {
			continue
		}
		for _, child := range it.Expand.Children {
			if child == target {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// withoutFirst drops a single occurrence of id
func withoutFirst(ids []uint64, id uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	dropped := false
	for _, v := range ids {
		if v == id && !dropped {
			dropped = true
			continue
		}
		out = append(out, v)
	}
	return out
}

func sortedUnique(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
