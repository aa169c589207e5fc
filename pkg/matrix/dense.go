package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// relative pivot size below which a column is treated as singular
const singularRatio = 1e-15

// NewDense returns an r x c zero matrix, or nil when either dimension is zero.
func NewDense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return nil
	}
	return mat.NewDense(r, c, nil)
}

func swapRows(m *mat.Dense, i, j int) {
	if m == nil || i == j {
		return
	}
	ri, rj := m.RawRowView(i), m.RawRowView(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}

// addScaledRow performs row dst += f * row src.
func addScaledRow(m *mat.Dense, dst, src int, f float64) {
	if m == nil {
		return
	}
	rd, rs := m.RawRowView(dst), m.RawRowView(src)
	for k := range rd {
		rd[k] += f * rs[k]
	}
}

func maxAbs(m *mat.Dense) float64 {
	r, c := m.Dims()
	best := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			best = math.Max(best, math.Abs(m.At(i, j)))
		}
	}
	return best
}

// Triangularize reduces the square matrix a to upper triangular form in place by
// Gaussian elimination with partial pivoting. Every row operation is repeated on the
// companions, which share the row count of a. Nil companions are skipped.
func Triangularize(a *mat.Dense, companions ...*mat.Dense) error {
	if a == nil {
		return nil
	}
	n, c := a.Dims()
	if n != c {
		return fmt.Errorf("triangularize: matrix is %dx%d, not square", n, c)
	}
	for _, comp := range companions {
		if comp == nil {
			continue
		}
		if r, _ := comp.Dims(); r != n {
			return fmt.Errorf("triangularize: companion has %d rows, expected %d", r, n)
		}
	}

	tol := singularRatio * maxAbs(a)
	for k := 0; k < n; k++ {
		p, best := k, math.Abs(a.At(k, k))
		for r := k + 1; r < n; r++ {
			if v := math.Abs(a.At(r, k)); v > best {
				p, best = r, v
			}
		}
		if best <= tol {
			return fmt.Errorf("%w: zero pivot in column %d", simerr.ErrSingular, k)
		}
		if p != k {
			swapRows(a, k, p)
			for _, comp := range companions {
				swapRows(comp, k, p)
			}
		}

		pivot := a.At(k, k)
		for r := k + 1; r < n; r++ {
			f := a.At(r, k) / pivot
			if f == 0 {
				continue
			}
			addScaledRow(a, r, k, -f)
			for _, comp := range companions {
				addScaledRow(comp, r, k, -f)
			}
			a.Set(r, k, 0)
		}
	}
	return nil
}

// BackSubstitute solves u*x = r for upper triangular u, last row first. A value within
// clamp of zero is stored as exactly zero before the rows above use it.
func BackSubstitute(u *mat.Dense, r []float64, clamp float64) []float64 {
	n := len(r)
	x := make([]float64, n)
	for k := n - 1; k >= 0; k-- {
		v := r[k]
		for j := k + 1; j < n; j++ {
			v -= u.At(k, j) * x[j]
		}
		v /= u.At(k, k)
		if math.Abs(v) < clamp {
			v = 0
		}
		x[k] = v
	}
	return x
}

// Solve returns a^-1 * b through an LU factorisation.
func Solve(a, b *mat.Dense) (*mat.Dense, error) {
	var lu mat.LU
	lu.Factorize(a)

	var x mat.Dense
	if err := lu.SolveTo(&x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrSingular, err)
	}
	return &x, nil
}

// SolveVec returns a^-1 * b for a vector right hand side.
func SolveVec(a *mat.Dense, b []float64) ([]float64, error) {
	var lu mat.LU
	lu.Factorize(a)

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(len(b), append([]float64(nil), b...))); err != nil {
		return nil, fmt.Errorf("%w: %v", simerr.ErrSingular, err)
	}
	return x.RawVector().Data, nil
}
