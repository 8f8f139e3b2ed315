package opt

import (
	"errors"
	"math"
	"testing"
)

// Shifted sphere: minimum at (1, -2, 3).
func shiftedSphere(x []float64) float64 {
	centre := []float64{1, -2, 3}
	var sum float64
	for i, v := range x {
		d := v - centre[i]
		sum += d * d
	}
	return sum
}

func TestMayflyAdapterOnShiftedSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	lower := []float64{-10, -5, 0}
	upper := []float64{10, 5, 20}
	res, err := optimizer.Minimize(shiftedSphere, lower, upper)
	if err != nil {
		t.Fatalf("minimize: %v", err)
	}

	if len(res.Best) != 3 {
		t.Fatalf("Expected 3 parameters, got %d", len(res.Best))
	}
	if res.Cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", res.Cost)
	}
	want := []float64{1, -2, 3}
	for i, v := range res.Best {
		if math.Abs(v-want[i]) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near %f", i, v, want[i])
		}
		if v < lower[i] || v > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, v, lower[i], upper[i])
		}
	}
	if res.Evaluations == 0 {
		t.Error("Evaluations not counted")
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	res1, err := NewMayfly(50, 20, 123).Minimize(shiftedSphere, lower, upper)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := NewMayfly(50, 20, 123).Minimize(shiftedSphere, lower, upper)
	if err != nil {
		t.Fatal(err)
	}

	if res1.Cost != res2.Cost {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", res1.Cost, res2.Cost)
	}
}

func TestMayflyAdapterRejectsBadBounds(t *testing.T) {
	opt := NewMayfly(10, 20, 1)
	if _, err := opt.Minimize(shiftedSphere, []float64{0}, []float64{1, 2}); !errors.Is(err, ErrBounds) {
		t.Errorf("mismatched bounds: got %v", err)
	}
	if _, err := opt.Minimize(shiftedSphere, []float64{2}, []float64{1}); !errors.Is(err, ErrBounds) {
		t.Errorf("inverted bounds: got %v", err)
	}
}

func TestNewMayflyRaisesPopulation(t *testing.T) {
	if m := NewMayfly(10, 4, 1); m.popSize != MinPopulation {
		t.Errorf("popSize = %d, want %d", m.popSize, MinPopulation)
	}
}
