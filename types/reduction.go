package types

import (
	"math"
	"math/rand/v2"
	"strings"
)

// Reduction is the aggregation function assigned to a composite item
type Reduction int

const (
	// ReductionNone is the unset default. Evaluating it is an error.
	ReductionNone Reduction = iota
	Sum
	Product
	Average
	Max
	Min
)

// reductionLabels is the persisted label of each reduction
var reductionLabels = [...]string{
	ReductionNone: "none",
	Sum:           "sum",
	Product:       "product",
	Average:       "average",
	Max:           "max",
	Min:           "min",
}

// legacyLabels are the display labels written by older documents
var legacyLabels = map[string]Reduction{
	"请选择/错误/缺失": ReductionNone,
	"求和":        Sum,
	"取乘积":       Product,
	"取平均":       Average,
	"取最大":       Max,
	"取最小":       Min,
}

// Reductions lists every reduction that can be evaluated
func Reductions() []Reduction {
	return []Reduction{Sum, Product, Average, Max, Min}
}

// String returns the persisted label
func (r Reduction) String() string {
	if r < 0 || int(r) >= len(reductionLabels) {
		return reductionLabels[ReductionNone]
	}
	return reductionLabels[r]
}

// ParseReduction decodes a label. Unrecognized labels decode to ReductionNone,
// the second return value reports whether the label was recognized.
func ParseReduction(label string) (Reduction, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	for r, l := range reductionLabels {
		if l == norm {
			return Reduction(r), true
		}
	}
	if r, ok := legacyLabels[strings.TrimSpace(label)]; ok {
		return r, true
	}
	return ReductionNone, false
}

// RandomReduction samples a non-None reduction uniformly
func RandomReduction(rng *rand.Rand) Reduction {
	all := Reductions()
	if rng == nil {
		return all[rand.IntN(len(all))]
	}
	return all[rng.IntN(len(all))]
}

// MarshalText implements encoding.TextMarshaler
func (r Reduction) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Reduction) UnmarshalText(text []byte) error {
	*r, _ = ParseReduction(string(text))
	return nil
}

// Evaluate applies the reduction to values in order.
// NaN inputs are rejected since Max and Min have no defined ordering for them.
func (r Reduction) Evaluate(values []float64) (float64, error) {
	for i, v := range values {
		if math.IsNaN(v) {
			return 0, Errorf("", ErrInvalid, "value %d is NaN", i)
		}
	}

	switch r {
	case Sum:
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total, nil
	case Product:
		total := 1.0
		for _, v := range values {
			total *= v
		}
		return total, nil
	case Average:
		if len(values) == 0 {
			return 0, nil
		}
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), nil
	case Max:
		if len(values) == 0 {
			return 0, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			if v > best {
				best = v
			}
		}
		return best, nil
	case Min:
		if len(values) == 0 {
			return 0, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			if v < best {
				best = v
			}
		}
		return best, nil
	default:
		return 0, Errorf("", ErrMissingInput, "reduction is not set")
	}
}
