package util

import (
	"math"
	"testing"
)

func TestRK4Exponential(t *testing.T) {
	// dx/dt = -x, exact solution exp(-t)
	decay := func(_ float64, x []float64) []float64 {
		return []float64{-x[0]}
	}

	x := []float64{1}
	h := 0.01
	s := RK4()
	for i := 0; i < 100; i++ {
		x = s.Step(decay, float64(i)*h, h, x)
	}
	if err := math.Abs(x[0] - math.Exp(-1)); err > 1e-9 {
		t.Errorf("x(1) = %.12f, error %g", x[0], err)
	}
}

func TestRK4TimeDependent(t *testing.T) {
	// dx/dt = 3t^2 is integrated exactly by a fourth order method
	f := func(tt float64, _ []float64) []float64 {
		return []float64{3 * tt * tt}
	}
	x := RK4().Step(f, 1, 0.5, []float64{1})
	if math.Abs(x[0]-1.5*1.5*1.5) > 1e-12 {
		t.Errorf("x = %g, expected %g", x[0], 1.5*1.5*1.5)
	}
}

func TestStepLeavesInputUntouched(t *testing.T) {
	x := []float64{2, 3}
	grow := func(_ float64, x []float64) []float64 { return []float64{x[0], x[1]} }

	next := Euler().Step(grow, 0, 0.1, x)
	if x[0] != 2 || x[1] != 3 {
		t.Errorf("input modified: %v", x)
	}
	if math.Abs(next[0]-2.2) > 1e-12 || math.Abs(next[1]-3.3) > 1e-12 {
		t.Errorf("next = %v", next)
	}
	if got := RK4().Step(grow, 0, 0, x); got[0] != 2 {
		t.Errorf("zero step changed the state: %v", got)
	}
}

func TestStableRatio(t *testing.T) {
	decay := func(_ float64, x []float64) []float64 { return []float64{-x[0]} }
	cases := []struct {
		solver *Solver
		beyond float64
	}{
		{RK4(), 3},
		{Euler(), 2.2},
	}
	for _, c := range cases {
		// one step of h = ratio*tau must shrink the state, a longer one must not
		if g := c.solver.Step(decay, 0, c.solver.StableRatio, []float64{1})[0]; math.Abs(g) >= 1 {
			t.Errorf("%s: gain %g at h/tau = %g", c.solver.Name, g, c.solver.StableRatio)
		}
		if g := c.solver.Step(decay, 0, c.beyond, []float64{1})[0]; math.Abs(g) <= 1 {
			t.Errorf("%s: gain %g at h/tau = %g, expected growth", c.solver.Name, g, c.beyond)
		}
	}
}

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{12, "12.000 V"},
		{0.0025, "2.500 mV"},
		{4.7e-6, "4.700 uV"},
		{-120, "-120.000 V"},
		{10e3, "10.000 kV"},
		{0, "0.000 V"},
		{3e-15, "3.000e-15 V"},
	}
	for _, tt := range tests {
		if got := FormatValueFactor(tt.value, "V"); got != tt.want {
			t.Errorf("FormatValueFactor(%g) = %q, expected %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatDuty(t *testing.T) {
	if got := FormatDuty(0.7); got != " 70.0 %" {
		t.Errorf("FormatDuty(0.7) = %q", got)
	}
}
