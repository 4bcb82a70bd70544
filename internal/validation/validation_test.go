package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/arthur-debert/treecalc/types"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Revenue", false},
		{"with spaces inside", "North region", false},
		{"unicode", "营业收入", false},
		{"empty", "", true},
		{"leading space", " Revenue", true},
		{"trailing newline", "Revenue\n", true},
		{"control character", "Rev\x00enue", true},
		{"too long", strings.Repeat("x", maxNameLength+1), true},
		{"at the limit", strings.Repeat("x", maxNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDataTable(t *testing.T) {
	if err := ValidateDataTable(types.DataTable{"a": 1, "b": -2.5, "c": math.Inf(1)}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateDataTable(types.DataTable{"a": 1, "b": math.NaN()})
	if err == nil || !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("expected error naming b, got %v", err)
	}
}

func TestValidateDocument(t *testing.T) {
	valid := &types.Document{RootName: "Total", Items: []types.DocumentItem{
		{Name: "Total", Children: []string{"A"}, Algorithm: "sum"},
	}}
	if err := ValidateDocument(valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := ValidateDocument(&types.Document{}); err == nil {
		t.Error("expected error for empty root name")
	}

	bad := &types.Document{RootName: "Total", Items: []types.DocumentItem{
		{Name: "Total", Children: []string{"A\t"}, Algorithm: "sum"},
	}}
	if err := ValidateDocument(bad); err == nil {
		t.Error("expected error for child with control character")
	}
}
