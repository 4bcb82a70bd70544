package matching

import (
	"sort"

	"github.com/arthur-debert/treecalc/types"
	"github.com/bmatcuk/doublestar/v4"
)

// NameMatcher selects items and data entries by a glob over their names
type NameMatcher struct {
	pattern string
}

// NewNameMatcher creates a matcher for pattern. An empty pattern matches every name.
func NewNameMatcher(pattern string) (*NameMatcher, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, types.Errorf("match", types.ErrInvalid, "bad pattern %q", pattern)
	}
	return &NameMatcher{pattern: pattern}, nil
}

// Matches checks if name matches the pattern
func (m *NameMatcher) Matches(name string) bool {
	if m.pattern == "" {
		// No pattern means everything matches
		return true
	}
	ok, err := doublestar.Match(m.pattern, name)
	return ok && err == nil
}

// Select returns the ids of matching items in ascending order
func (m *NameMatcher) Select(items []*types.Item) []uint64 {
	var ids []uint64
	for _, it := range items {
		if m.Matches(it.Name) {
			ids = append(ids, it.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FilterTable returns the entries of table whose names match
func (m *NameMatcher) FilterTable(table types.DataTable) types.DataTable {
	filtered := make(types.DataTable, len(table))
	for name, value := range table {
		if m.Matches(name) {
			filtered[name] = value
		}
	}
	return filtered
}
