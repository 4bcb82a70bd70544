package types

// RootID is the id reserved for the document root. It always exists and is never removed.
const RootID uint64 = 0

// ExpandInfo is present on composite items only
type ExpandInfo struct {
	Reduction Reduction `json:"reduction"`
	Children  []uint64  `json:"children"` // Ordered; an id may appear more than once
}

// Item represents a node in the computation graph
type Item struct {
	ID       uint64      `json:"id"`        // Process-unique, never reused
	Name     string      `json:"name"`      // Unique across all live items
	RefCount uint64      `json:"ref_count"` // Occurrences of ID across other items' child lists
	Expand   *ExpandInfo `json:"expand_info,omitempty"`
	Value    *float64    `json:"value,omitempty"` // Last computed result, nil until a calculation run
}

// IsComposite reports whether the item aggregates children
func (it *Item) IsComposite() bool {
	return it.Expand != nil
}

// IsLeaf reports whether the item holds externally supplied data
func (it *Item) IsLeaf() bool {
	return it.Expand == nil
}

// Clone returns a deep copy of the item
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.Expand != nil {
		c.Expand = &ExpandInfo{
			Reduction: it.Expand.Reduction,
			Children:  append([]uint64(nil), it.Expand.Children...),
		}
	}
	if it.Value != nil {
		v := *it.Value
		c.Value = &v
	}
	return &c
}

// Document is the persisted, name-keyed form of the graph.
// Leaves are implicit: they exist only as names in some item's children.
type Document struct {
	RootName string         `json:"root_name" yaml:"root_name"`
	Items    []DocumentItem `json:"items" yaml:"items"`
}

// DocumentItem is a composite item as it appears in a document
type DocumentItem struct {
	Name      string   `json:"name" yaml:"name"`
	Children  []string `json:"children" yaml:"children"`
	Algorithm string   `json:"algorithm" yaml:"algorithm"` // Reduction label
}

// DataTable maps leaf names to the numbers used for a calculation run
type DataTable map[string]float64
