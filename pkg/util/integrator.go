package util

// Derivative returns dx/dt at time t for state x. It must not modify x.
type Derivative func(t float64, x []float64) []float64

// Solver is an explicit Runge-Kutta method given by its Butcher tableau.
type Solver struct {
	Name  string
	Order int
	C     []float64   // nodes
	A     [][]float64 // stage coefficients, lower triangular
	B     []float64   // weights

	// StableRatio is the largest h/tau a decaying mode may have and still be
	// integrated, kept below the real stability interval of the method.
	StableRatio float64
}

func RK4() *Solver {
	return &Solver{
		Name:  "rk4",
		Order: 4,
		C:     []float64{0, 0.5, 0.5, 1},
		A: [][]float64{
			{},
			{0.5},
			{0, 0.5},
			{0, 0, 1},
		},
		B:           []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		StableRatio: 2.5, // interval ends at 2.785
	}
}

func Euler() *Solver {
	return &Solver{
		Name:  "euler",
		Order: 1,
		C:     []float64{0},
		A:     [][]float64{{}},
		B:           []float64{1},
		StableRatio: 1.8, // interval ends at 2
	}
}

// Step advances x from t to t+h and returns the new state. x is left untouched.
func (s *Solver) Step(f Derivative, t, h float64, x []float64) []float64 {
	n := len(x)
	next := append([]float64(nil), x...)
	if n == 0 || h == 0 {
		return next
	}

	k := make([][]float64, len(s.C))
	stage := make([]float64, n)
	for i := range s.C {
		copy(stage, x)
		for j := 0; j < i; j++ {
			if a := s.A[i][j]; a != 0 {
				for m := range stage {
					stage[m] += h * a * k[j][m]
				}
			}
		}
		k[i] = f(t+s.C[i]*h, stage)
	}

	for i, b := range s.B {
		for m := range next {
			next[m] += h * b * k[i][m]
		}
	}
	return next
}

// SolverByName returns the integrator for a configuration name, RK4 by default.
func SolverByName(name string) *Solver {
	if name == "euler" {
		return Euler()
	}
	return RK4()
}
