package types

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestReductionEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		reduction Reduction
		values    []float64
		expected  float64
	}{
		{"sum", Sum, []float64{2, 3, 5}, 10},
		{"sum empty", Sum, nil, 0},
		{"product", Product, []float64{2, 3, 4}, 24},
		{"product empty", Product, nil, 1},
		{"average", Average, []float64{1, 2, 3, 6}, 3},
		{"average empty", Average, nil, 0},
		{"max", Max, []float64{-1, 7, 3}, 7},
		{"max negative", Max, []float64{-5, -2, -9}, -2},
		{"max empty", Max, nil, 0},
		{"min", Min, []float64{4, -3, 8}, -3},
		{"min empty", Min, []float64{}, 0},
		{"duplicates count twice", Sum, []float64{2, 2}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.reduction.Evaluate(tt.values)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}

	t.Run("none is missing input", func(t *testing.T) {
		_, err := ReductionNone.Evaluate([]float64{1})
		if !errors.Is(err, ErrMissingInput) {
			t.Errorf("expected ErrMissingInput, got %v", err)
		}
	})

	t.Run("NaN is rejected", func(t *testing.T) {
		for _, r := range Reductions() {
			_, err := r.Evaluate([]float64{1, math.NaN()})
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("%s: expected ErrInvalid for NaN input, got %v", r, err)
			}
		}
	})
}

func TestParseReduction(t *testing.T) {
	tests := []struct {
		label    string
		expected Reduction
		known    bool
	}{
		{"sum", Sum, true},
		{"Sum", Sum, true},
		{" product ", Product, true},
		{"average", Average, true},
		{"MAX", Max, true},
		{"min", Min, true},
		{"none", ReductionNone, true},
		{"求和", Sum, true},
		{"取乘积", Product, true},
		{"取平均", Average, true},
		{"取最大", Max, true},
		{"取最小", Min, true},
		{"median", ReductionNone, false},
		{"", ReductionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, known := ParseReduction(tt.label)
			if got != tt.expected || known != tt.known {
				t.Errorf("ParseReduction(%q) = (%v, %v), expected (%v, %v)", tt.label, got, known, tt.expected, tt.known)
			}
		})
	}

	t.Run("labels round trip", func(t *testing.T) {
		for _, r := range append(Reductions(), ReductionNone) {
			got, known := ParseReduction(r.String())
			if !known || got != r {
				t.Errorf("label %q did not round trip", r.String())
			}
		}
	})
}

func TestRandomReduction(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seen := make(map[Reduction]bool)
	for i := 0; i < 500; i++ {
		r := RandomReduction(rng)
		if r == ReductionNone {
			t.Fatal("random reduction must never be None")
		}
		seen[r] = true
	}
	if len(seen) != len(Reductions()) {
		t.Errorf("expected all %d reductions to be sampled, saw %d", len(Reductions()), len(seen))
	}
}

func TestReductionText(t *testing.T) {
	var r Reduction
	if err := r.UnmarshalText([]byte("average")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != Average {
		t.Errorf("expected average, got %v", r)
	}

	if err := r.UnmarshalText([]byte("bogus")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != ReductionNone {
		t.Errorf("expected unknown label to decode to none, got %v", r)
	}

	text, _ := Max.MarshalText()
	if string(text) != "max" {
		t.Errorf("expected max, got %s", text)
	}
}
