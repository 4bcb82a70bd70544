package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/arthur-debert/treecalc/types"
)

// maxNameLength bounds item names so documents stay readable
const maxNameLength = 256

// ValidateName checks that a string can be used as an item name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	// Surrounding whitespace makes names that look equal compare unequal
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name %q has leading or trailing whitespace", name)
	}

	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("name is too long: %d characters (maximum %d)", len([]rune(name)), maxNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name %q contains a control character", name)
		}
	}

	return nil
}

// ValidateDataTable ensures every value in a data table can be reduced
func ValidateDataTable(table types.DataTable) error {
	// Report the first offender in a stable order
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if math.IsNaN(table[name]) {
			return fmt.Errorf("value for %q is NaN", name)
		}
	}
	return nil
}

// ValidateDocument checks the names used in a document before it is decoded
func ValidateDocument(doc *types.Document) error {
	if doc.RootName == "" {
		return fmt.Errorf("root_name cannot be empty")
	}
	for i, item := range doc.Items {
		if err := ValidateName(item.Name); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		for _, child := range item.Children {
			if err := ValidateName(child); err != nil {
				return fmt.Errorf("item %q, child: %w", item.Name, err)
			}
		}
	}
	return nil
}
