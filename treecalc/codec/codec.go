// Package codec translates between the persisted, name-keyed document and the
// in-memory, id-keyed item store.
//
// Decoding assigns ids deterministically: the root gets id 0, then every declared
// item in document order, then every child name in document order. A name that is
// only ever referenced as a child becomes a leaf.
//
// Encoding walks the store breadth-first from the root and emits one entry per
// reachable composite. Leaves are never emitted; they reappear on the next decode
// through the child lists that name them.
package codec

import (
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/arthur-debert/treecalc/treecalc/graph"
	"github.com/arthur-debert/treecalc/types"
)

// MaxWalkSteps bounds the save walk. Exceeding it means the graph is damaged.
const MaxWalkSteps = 10000

type options struct {
	rng       *rand.Rand
	randomize bool
	maxSteps  int
	logger    *slog.Logger
}

// Option configures Decode and Encode
type Option func(*options)

// WithRandomReductions replaces unset reductions with a uniformly sampled one on decode.
// A nil rng uses the global source.
func WithRandomReductions(rng *rand.Rand) Option {
	return func(o *options) {
		o.randomize = true
		o.rng = rng
	}
}

// WithMaxSteps overrides MaxWalkSteps for Encode
func WithMaxSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		maxSteps: MaxWalkSteps,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decode builds a fresh store from a document. No partial store is returned on error.
func Decode(doc *types.Document, opts ...Option) (*graph.Store, error) {
	const op = "load"
	o := buildOptions(opts)

	if doc == nil {
		return nil, types.Errorf(op, types.ErrIO, "document is empty")
	}

	declared := make(map[string]*types.DocumentItem, len(doc.Items))
	for i := range doc.Items {
		item := &doc.Items[i]
		if item.Name == "" {
			return nil, types.Errorf(op, types.ErrIO, "item %d has an empty name", i)
		}
		if _, dup := declared[item.Name]; dup {
			return nil, types.Errorf(op, types.ErrIO, "item %q is declared more than once", item.Name)
		}
		for _, child := range item.Children {
			if child == "" {
				return nil, types.Errorf(op, types.ErrIO, "item %q has a child with an empty name", item.Name)
			}
		}
		declared[item.Name] = item
	}

	if _, ok := declared[doc.RootName]; !ok {
		return nil, types.Errorf(op, types.ErrNotFound, "root item %q is not declared in the document", doc.RootName)
	}

	s := graph.New()
	nameToID := make(map[string]uint64, len(doc.Items))
	order := make([]string, 0, len(doc.Items))
	assign := func(name string) {
		if _, seen := nameToID[name]; seen {
			return
		}
		nameToID[name] = s.AllocateID()
		order = append(order, name)
	}

	assign(doc.RootName)
	for _, item := range doc.Items {
		assign(item.Name)
	}
	for _, item := range doc.Items {
		for _, child := range item.Children {
			assign(child)
		}
	}

	for _, name := range order {
		id := nameToID[name]
		item := &types.Item{ID: id, Name: name}

		if decl, ok := declared[name]; ok {
			reduction, known := types.ParseReduction(decl.Algorithm)
			if !known && decl.Algorithm != "" {
				o.logger.Debug("unrecognized reduction label", "item", name, "label", decl.Algorithm)
			}
			if reduction == types.ReductionNone && o.randomize {
				reduction = types.RandomReduction(o.rng)
				o.logger.Debug("sampled reduction", "item", name, "reduction", reduction.String())
			}

			children := make([]uint64, 0, len(decl.Children))
			for _, child := range decl.Children {
				children = append(children, nameToID[child])
			}
			item.Expand = &types.ExpandInfo{Reduction: reduction, Children: children}
		}

		s.Insert(item)
	}

	s.RecountRefs()

	o.logger.Debug("decoded document", "root", doc.RootName, "items", s.Len())
	return s, nil
}

// Encode walks the store from the root and produces the persisted document
func Encode(s *graph.Store, opts ...Option) (*types.Document, error) {
	const op = "save"
	o := buildOptions(opts)

	root, ok := s.GetMut(types.RootID)
	if !ok {
		return nil, types.Errorf(op, types.ErrCorrupt, "root item is missing")
	}

	doc := &types.Document{RootName: root.Name, Items: []types.DocumentItem{}}
	visited := make(map[uint64]bool)
	nameOwner := make(map[string]uint64)
	queue := []uint64{types.RootID}
	steps := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		steps++
		if steps > o.maxSteps {
			return nil, types.Errorf(op, types.ErrCorrupt, "walk exceeded %d steps", o.maxSteps)
		}

		if visited[id] {
			continue
		}
		visited[id] = true

		item, ok := s.GetMut(id)
		if !ok {
			return nil, types.Errorf(op, types.ErrCorrupt, "item %d is referenced but not stored", id)
		}
		if owner, seen := nameOwner[item.Name]; seen && owner != id {
			return nil, types.Errorf(op, types.ErrCorrupt, "name %q is owned by items %d and %d", item.Name, owner, id)
		}
		nameOwner[item.Name] = id

		if item.IsLeaf() {
			continue
		}

		names := make([]string, 0, len(item.Expand.Children))
		for _, childID := range item.Expand.Children {
			child, ok := s.GetMut(childID)
			if !ok {
				return nil, types.Errorf(op, types.ErrCorrupt, "item %q lists unknown child %d", item.Name, childID)
			}
			names = append(names, child.Name)
			if !visited[childID] {
				queue = append(queue, childID)
			}
		}

		doc.Items = append(doc.Items, types.DocumentItem{
			Name:      item.Name,
			Children:  names,
			Algorithm: item.Expand.Reduction.String(),
		})
	}

	o.logger.Debug("encoded document", "root", doc.RootName, "items", len(doc.Items), "steps", steps)
	return doc, nil
}

// Leaves returns the names of every leaf in the store, sorted
func Leaves(s *graph.Store) []string {
	var names []string
	for _, it := range s.Items() {
		if it.IsLeaf() {
			names = append(names, it.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Template returns a data table with every leaf set to zero
func Template(s *graph.Store) types.DataTable {
	table := make(types.DataTable)
	for _, name := range Leaves(s) {
		table[name] = 0
	}
	return table
}
