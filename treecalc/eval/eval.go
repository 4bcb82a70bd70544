// Package eval computes the value of every item reachable from the root.
package eval

import (
	"github.com/arthur-debert/treecalc/treecalc/graph"
	"github.com/arthur-debert/treecalc/types"
)

// MaxSteps bounds the number of item visits in a single calculation
const MaxSteps = 1_000_000

// Calculate walks the graph depth-first from the root and returns the value of
// every reachable item, keyed by id. Leaves take their value from table,
// composites reduce their children in child-list order. The store is not modified.
func Calculate(s *graph.Store, table types.DataTable) (map[uint64]float64, error) {
	c := &calculation{
		store:   s,
		table:   table,
		memo:    make(map[uint64]float64),
		onStack: make(map[uint64]bool),
	}
	if _, err := c.value(types.RootID); err != nil {
		return nil, err
	}
	return c.memo, nil
}

// Apply writes computed values back into the store
func Apply(s *graph.Store, values map[uint64]float64) {
	for id, v := range values {
		if it, ok := s.GetMut(id); ok {
			v := v
			it.Value = &v
		}
	}
}

type calculation struct {
	store   *graph.Store
	table   types.DataTable
	memo    map[uint64]float64
	onStack map[uint64]bool
	steps   int
}

func (c *calculation) value(id uint64) (float64, error) {
	const op = "calculate"

	if v, ok := c.memo[id]; ok {
		return v, nil
	}

	c.steps++
	if c.steps > MaxSteps {
		return 0, types.Errorf(op, types.ErrCorrupt, "walk exceeded %d steps", MaxSteps)
	}
	if c.onStack[id] {
		return 0, types.Errorf(op, types.ErrCorrupt, "item %d is its own ancestor", id)
	}

	it, ok := c.store.GetMut(id)
	if !ok {
		return 0, types.Errorf(op, types.ErrCorrupt, "item %d is referenced but not stored", id)
	}

	if it.IsLeaf() {
		v, ok := c.table[it.Name]
		if !ok {
			return 0, types.Errorf(op, types.ErrMissingInput, "no data for leaf %q", it.Name)
		}
		c.memo[id] = v
		return v, nil
	}

	if it.Expand.Reduction == types.ReductionNone {
		return 0, types.Errorf(op, types.ErrMissingInput, "item %q has no reduction", it.Name)
	}

	c.onStack[id] = true
	values := make([]float64, 0, len(it.Expand.Children))
	for _, child := range it.Expand.Children {
		v, err := c.value(child)
		if err != nil {
			return 0, err
		}
		values = append(values, v)
	}
	delete(c.onStack, id)

	v, err := it.Expand.Reduction.Evaluate(values)
	if err != nil {
		return 0, types.Errorf(op, types.KindOf(err), "item %q: %v", it.Name, err)
	}
	c.memo[id] = v
	return v, nil
}
