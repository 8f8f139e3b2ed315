// Package opt provides derivative-free minimisers for small discrete
// search problems such as work-group tuning.
package opt

import "errors"

// ErrBounds is returned when the lower and upper bounds do not describe a box.
var ErrBounds = errors.New("bounds must have equal, non-zero length with lower <= upper")

// Optimizer minimises an objective over the box [lower, upper].
type Optimizer interface {
	Minimize(eval func([]float64) float64, lower, upper []float64) (Result, error)
}

// Result is the best point found.
type Result struct {
	Best        []float64
	Cost        float64
	Evaluations int
}

func checkBounds(lower, upper []float64) error {
	if len(lower) == 0 || len(lower) != len(upper) {
		return ErrBounds
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return ErrBounds
		}
	}
	return nil
}
