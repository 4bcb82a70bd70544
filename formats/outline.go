package formats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arthur-debert/treecalc/types"
)

// OutlineStyle defines how one line of a rendered outline is laid out
type OutlineStyle struct {
	// Name is the style identifier used by --format
	Name string

	// Line renders a node label at the given depth
	Line func(depth int, label string, composite bool) string
}

// PlainText indents two spaces per level
var PlainText = &OutlineStyle{
	Name: "text",
	Line: func(depth int, label string, composite bool) string {
		return strings.Repeat("  ", depth) + label
	},
}

// Markdown renders a nested bullet list with composite names in bold
var Markdown = &OutlineStyle{
	Name: "markdown",
	Line: func(depth int, label string, composite bool) string {
		if composite {
			label = "**" + label + "**"
		}
		return strings.Repeat("  ", depth) + "- " + label
	},
}

// outlineStyles is keyed by style name
var outlineStyles = map[string]*OutlineStyle{
	PlainText.Name: PlainText,
	Markdown.Name:  Markdown,
}

// GetOutlineStyle returns an outline style by name
func GetOutlineStyle(name string) (*OutlineStyle, error) {
	style, ok := outlineStyles[name]
	if !ok {
		names := make([]string, 0, len(outlineStyles))
		for n := range outlineStyles {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown outline style %q (available: %s)", name, strings.Join(names, ", "))
	}
	return style, nil
}

// ItemLookup finds an item by id
type ItemLookup func(id uint64) (*types.Item, bool)

// RenderOutline draws the graph reachable from the root. An item reached a
// second time is printed once more with a reference marker and not expanded,
// which also terminates cycles.
func RenderOutline(lookup ItemLookup, style *OutlineStyle) (string, error) {
	root, ok := lookup(types.RootID)
	if !ok {
		return "", types.Errorf("outline", types.ErrCorrupt, "root item is missing")
	}

	var lines []string
	seen := make(map[uint64]bool)

	var walk func(it *types.Item, depth int)
	walk = func(it *types.Item, depth int) {
		label := outlineLabel(it)
		if seen[it.ID] {
			lines = append(lines, style.Line(depth, label+" (see above)", it.IsComposite()))
			return
		}
		seen[it.ID] = true
		lines = append(lines, style.Line(depth, label, it.IsComposite()))

		if it.IsLeaf() {
			return
		}
		for _, id := range it.Expand.Children {
			child, ok := lookup(id)
			if !ok {
				lines = append(lines, style.Line(depth+1, fmt.Sprintf("<missing #%d>", id), false))
				continue
			}
			walk(child, depth+1)
		}
	}
	walk(root, 0)

	return strings.Join(lines, "\n") + "\n", nil
}

func outlineLabel(it *types.Item) string {
	var b strings.Builder
	b.WriteString(it.Name)
	if it.IsComposite() {
		b.WriteString(" [")
		b.WriteString(it.Expand.Reduction.String())
		b.WriteString("]")
	}
	if it.Value != nil {
		b.WriteString(" = ")
		b.WriteString(FormatNumber(*it.Value))
	}
	if it.RefCount > 1 {
		fmt.Fprintf(&b, " (shared x%d)", it.RefCount)
	}
	return b.String()
}

// FormatNumber prints a value with the fewest digits that round-trip
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
