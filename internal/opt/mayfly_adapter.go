package opt

import (
	"fmt"
	"math/rand"

	"github.com/CWBudde/mayfly"
)

// MinPopulation is the smallest swarm the mayfly library accepts.
const MinPopulation = 20

// MayflyAdapter runs the mayfly algorithm behind the Optimizer interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. Runs with the same seed are
// reproducible.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Minimize searches the box [lower, upper]. The library only supports one
// bound for all dimensions, so the search runs in the unit cube and each
// coordinate is scaled into its own interval before eval sees it.
func (m *MayflyAdapter) Minimize(eval func([]float64) float64, lower, upper []float64) (Result, error) {
	if err := checkBounds(lower, upper); err != nil {
		return Result{}, err
	}
	dim := len(lower)

	evals := 0
	x := make([]float64, dim)
	scaled := func(u []float64) []float64 {
		for i := range x {
			v := u[i]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			x[i] = lower[i] + v*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		evals++
		return eval(scaled(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return Result{}, fmt.Errorf("mayfly: %w", err)
	}

	best := append([]float64(nil), scaled(result.GlobalBest.Position)...)
	return Result{Best: best, Cost: result.GlobalBest.Cost, Evaluations: evals}, nil
}
