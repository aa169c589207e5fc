package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/loop"
	"github.com/edp1096/ppe-sim/pkg/matrix"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/util"
)

// System is the loop model for one snapshot and one device state. Integrated loops
// follow dx/dt = N*u - M*x with the algebraic loops folded in; the algebraic loops are
// back-solved from the integrated ones after every step.
type System struct {
	snap  *loop.Snapshot
	signs [][]float64
	dyn   []int // integrated snapshot rows
	alg   []int // stiff and demoted snapshot rows
	cols  int

	m, n *mat.Dense

	// algebraic block, upper triangular after assembly
	ass, asd, esd, bs *mat.Dense

	solver *util.Solver
}

// pick copies the given rows and columns of m, or returns nil when either is empty.
func pick(m *mat.Dense, rows, cols []int) *mat.Dense {
	out := matrix.NewDense(len(rows), len(cols))
	if out == nil {
		return nil
	}
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, m.At(r, c))
		}
	}
	return out
}

func span(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// padSources widens u to the column count of the model. Circuits without sources
// carry one zero column.
func padSources(u []float64, cols int) []float64 {
	if len(u) >= cols {
		return u
	}
	out := make([]float64, cols)
	copy(out, u)
	return out
}

type reducedSystem struct {
	e, a, b *mat.Dense
}

// reduce eliminates the algebraic rows from the integrated ones:
// E_red = E_dd - S*E_sd, A_red = A_dd - S*A_sd, B_red = B_d - S*B_s with S = A_ds*A_ss^-1.
func reduce(e, a, b *mat.Dense, dyn, alg []int, cols []int) (reducedSystem, error) {
	red := reducedSystem{
		e: pick(e, dyn, dyn),
		a: pick(a, dyn, dyn),
		b: pick(b, dyn, cols),
	}
	if len(dyn) == 0 || len(alg) == 0 {
		return red, nil
	}

	var rhs mat.Dense
	rhs.Augment(pick(a, alg, dyn), pick(e, alg, dyn))
	var full mat.Dense
	full.Augment(&rhs, pick(b, alg, cols))

	x, err := matrix.Solve(pick(a, alg, alg), &full)
	if err != nil {
		return red, fmt.Errorf("stiff block: %w", err)
	}
	var sx mat.Dense
	sx.Mul(pick(a, dyn, alg), x)

	nd := len(dyn)
	red.a.Sub(red.a, sx.Slice(0, nd, 0, nd))
	red.e.Sub(red.e, sx.Slice(0, nd, nd, 2*nd))
	red.b.Sub(red.b, sx.Slice(0, nd, 2*nd, 2*nd+len(cols)))
	return red, nil
}

// fastRow returns an integrated row to demote so that no remaining mode decays faster
// than the integrator can follow in a step of dt, or -1. ratio is the largest stable h/tau.
func (r reducedSystem) fastRow(dt, ratio float64) int {
	if r.e == nil {
		return -1
	}
	n, _ := r.e.Dims()
	fast, rate := -1, 0.0
	for k := 0; k < n; k++ {
		ek, ak := r.e.At(k, k), r.a.At(k, k)
		if ak <= 0 {
			continue
		}
		if ek*ratio <= ak*dt {
			return k
		}
		if ak/ek > rate {
			fast, rate = k, ak/ek
		}
	}
	if n < 2 || fast < 0 {
		return -1
	}

	// coupled loops can hide a faster mode than any single row shows
	m, err := matrix.Solve(r.e, r.a)
	if err != nil {
		return -1
	}
	var eig mat.Eigen
	if !eig.Factorize(m, mat.EigenNone) {
		return -1
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v)*dt > ratio {
			return fast
		}
	}
	return -1
}

// assemble builds the loop matrices from the branch parameters and prepares both the
// reduced ODE and the triangular algebraic block.
func assemble(ckt *circuit.Circuit, snap *loop.Snapshot, dt float64, solver *util.Solver) (*System, error) {
	rows := snap.Rows()
	sys := &System{
		snap:   snap,
		signs:  make([][]float64, rows),
		cols:   max(1, ckt.SourceCount()),
		solver: solver,
	}
	if rows == 0 {
		return sys, nil
	}
	for r := range sys.signs {
		sys.signs[r] = snap.Map.Signs(r)
	}

	e := mat.NewDense(rows, rows, nil)
	a := mat.NewDense(rows, rows, nil)
	b := mat.NewDense(rows, sys.cols, nil)
	for br := 0; br < ckt.BranchCount(); br++ {
		p := ckt.Param(br)
		for r := 0; r < rows; r++ {
			sr := sys.signs[r][br]
			if sr == 0 {
				continue
			}
			for q := 0; q < rows; q++ {
				if sq := sys.signs[q][br]; sq != 0 {
					e.Set(r, q, e.At(r, q)+sr*sq*p.L)
					a.Set(r, q, a.At(r, q)+sr*sq*p.R)
				}
			}
			for c, k := range p.Coeff {
				if k != 0 {
					b.Set(r, c, b.At(r, c)+sr*k)
				}
			}
		}
	}

	for r := 0; r < rows; r++ {
		if r < snap.NonStiff {
			sys.dyn = append(sys.dyn, r)
		} else {
			sys.alg = append(sys.alg, r)
		}
	}
	for _, r := range sys.alg {
		if a.At(r, r) == 0 {
			return nil, fmt.Errorf("%w: loop through branches %v", simerr.ErrNoResistance, snap.Map.Branches(r))
		}
	}

	cols := span(sys.cols)
	var red reducedSystem
	for {
		var err error
		red, err = reduce(e, a, b, sys.dyn, sys.alg, cols)
		if err != nil {
			return nil, err
		}
		k := red.fastRow(dt, solver.StableRatio)
		if k < 0 {
			break
		}
		sys.demote(k)
	}

	if len(sys.dyn) > 0 {
		var err error
		if sys.m, err = matrix.Solve(red.e, red.a); err != nil {
			return nil, fmt.Errorf("inductance matrix: %w", err)
		}
		if sys.n, err = matrix.Solve(red.e, red.b); err != nil {
			return nil, fmt.Errorf("inductance matrix: %w", err)
		}
	}

	sys.ass = pick(a, sys.alg, sys.alg)
	sys.asd = pick(a, sys.alg, sys.dyn)
	sys.esd = pick(e, sys.alg, sys.dyn)
	sys.bs = pick(b, sys.alg, cols)
	if err := matrix.Triangularize(sys.ass, sys.asd, sys.esd, sys.bs); err != nil {
		return nil, fmt.Errorf("stiff block: %w", err)
	}
	return sys, nil
}

// demote moves the k-th integrated row to the algebraic rows, keeping snapshot order.
func (s *System) demote(k int) {
	row := s.dyn[k]
	s.dyn = append(s.dyn[:k:k], s.dyn[k+1:]...)

	i := 0
	for i < len(s.alg) && s.alg[i] < row {
		i++
	}
	s.alg = append(s.alg[:i:i], append([]int{row}, s.alg[i:]...)...)
}

func (s *System) Integrated() int { return len(s.dyn) }
func (s *System) Algebraic() int  { return len(s.alg) }

// Demoted counts the non-stiff loops moved to the algebraic rows.
func (s *System) Demoted() int {
	return len(s.alg) - s.snap.StiffRows()
}

// initialState takes each integrated loop current from the branch that only this loop
// contains, so inductor currents carry over a re-derivation.
func (s *System) initialState(ckt *circuit.Circuit) []float64 {
	x := make([]float64, len(s.dyn))
	for k, r := range s.dyn {
		x[k] = ckt.Param(s.snap.Defining[r]).Current
	}
	return x
}

func (s *System) derivative(u []float64) util.Derivative {
	nd := len(s.dyn)
	bu := make([]float64, nd)
	for k := 0; k < nd; k++ {
		for c := 0; c < s.cols; c++ {
			bu[k] += s.n.At(k, c) * u[c]
		}
	}
	return func(_ float64, x []float64) []float64 {
		dx := make([]float64, nd)
		for k := 0; k < nd; k++ {
			v := bu[k]
			for j := 0; j < nd; j++ {
				v -= s.m.At(k, j) * x[j]
			}
			dx[k] = v
		}
		return dx
	}
}

// integrate advances the integrated loop currents from t-h to t.
func (s *System) integrate(t, h float64, x, u []float64) []float64 {
	if len(s.dyn) == 0 {
		return nil
	}
	return s.solver.Step(s.derivative(u), t-h, h, x)
}

// backSolve returns the algebraic loop currents for the new integrated currents next,
// with dx/dt taken as (next-x)/h.
func (s *System) backSolve(u, x, next []float64, h float64) []float64 {
	na := len(s.alg)
	if na == 0 {
		return nil
	}
	r := make([]float64, na)
	for k := 0; k < na; k++ {
		v := 0.0
		for c := 0; c < s.cols; c++ {
			v += s.bs.At(k, c) * u[c]
		}
		for j := range s.dyn {
			v -= s.asd.At(k, j) * next[j]
			if h > 0 {
				v -= s.esd.At(k, j) * (next[j] - x[j]) / h
			}
		}
		r[k] = v
	}
	return matrix.BackSubstitute(s.ass, r, consts.NegligibleCurrent)
}

// branchCurrents superposes the loop currents on the branches.
func (s *System) branchCurrents(branches int, xd, xa []float64) []float64 {
	i := make([]float64, branches)
	add := func(row int, x float64) {
		if x == 0 {
			return
		}
		for b, sign := range s.signs[row] {
			i[b] += sign * x
		}
	}
	for k, r := range s.dyn {
		add(r, xd[k])
	}
	for k, r := range s.alg {
		add(r, xa[k])
	}
	return i
}

// kclBranches marks the branches the nodal pass recomputes: stiff ones and those that no
// integrated loop runs through.
func (s *System) kclBranches(stiff []bool) []bool {
	kcl := make([]bool, len(stiff))
	for b := range kcl {
		kcl[b] = true
		if stiff[b] {
			continue
		}
		for _, r := range s.dyn {
			if s.signs[r][b] != 0 {
				kcl[b] = false
				break
			}
		}
	}
	return kcl
}
