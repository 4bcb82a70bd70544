// Package testutil provides a shared budget document for tests.
package testutil

import (
	"testing"

	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/treecalc/codec"
	"github.com/arthur-debert/treecalc/treecalc/graph"
	"github.com/arthur-debert/treecalc/treecalc/storage"
	"github.com/arthur-debert/treecalc/types"
)

// Paths used by MockBudgetFiles
const (
	DocumentPath = "budget.json"
	DataPath     = "march.json"
)

// Ids assigned when Budget is decoded
const (
	Total uint64 = iota // sum of North, South, Bonus
	North               // average of A, B
	South               // product of B, C, C
	Bonus               // max of A, C (composite)
	A                   // leaf, referenced by North and Bonus
	B                   // leaf, referenced by North and South
	C                   // leaf, referenced by South twice and Bonus
)

// Budget is a document exercising every reduction, shared leaves and a
// repeated child:
//
//	Total(sum) -> North, South, Bonus
//	North(average) -> A, B
//	South(product) -> B, C, C
//	Bonus(max) -> A, C
func Budget() *types.Document {
	return &types.Document{
		RootName: "Total",
		Items: []types.DocumentItem{
			{Name: "Total", Children: []string{"North", "South", "Bonus"}, Algorithm: "sum"},
			{Name: "North", Children: []string{"A", "B"}, Algorithm: "average"},
			{Name: "South", Children: []string{"B", "C", "C"}, Algorithm: "product"},
			{Name: "Bonus", Children: []string{"A", "C"}, Algorithm: "max"},
		},
	}
}

// BudgetData drives a calculation of Budget
func BudgetData() types.DataTable {
	return types.DataTable{"A": 4, "B": 2, "C": 3}
}

// BudgetValues is the result of calculating Budget against BudgetData
func BudgetValues() map[uint64]float64 {
	return map[uint64]float64{
		A: 4, B: 2, C: 3,
		North: 3,  // (4+2)/2
		South: 18, // 2*3*3
		Bonus: 4,
		Total: 25,
	}
}

// BudgetStore decodes Budget
func BudgetStore(t *testing.T) *graph.Store {
	t.Helper()
	s, err := codec.Decode(Budget())
	if err != nil {
		t.Fatalf("decoding budget: %v", err)
	}
	return s
}

// MockBudgetFiles returns storage backed by an in-memory file system holding
// Budget at DocumentPath and BudgetData at DataPath
func MockBudgetFiles(t *testing.T) (*storage.Files, *storage.MockFileSystem) {
	t.Helper()
	mfs := storage.NewMockFileSystem()
	WriteFile(t, mfs, DocumentPath, Budget())
	WriteFile(t, mfs, DataPath, BudgetData())
	return storage.New(
		storage.WithFileSystem(mfs),
		storage.WithFileLockFactory(storage.NewMockFileLockFactory()),
	), mfs
}

// WriteFile encodes v in the format matching path's extension
func WriteFile(t *testing.T, mfs *storage.MockFileSystem, path string, v interface{}) {
	t.Helper()
	format, compressed, err := formats.ForPath(path)
	if err != nil {
		t.Fatalf("format for %s: %v", path, err)
	}
	data, err := format.Marshal(v)
	if err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
	if compressed {
		if data, err = formats.Compress(data); err != nil {
			t.Fatalf("compressing %s: %v", path, err)
		}
	}
	if err := mfs.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
