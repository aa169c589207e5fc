package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// NodalMatrix is a real Y*V = I system on a sparse matrix. Rows, columns and vectors
// are 1-based; index 0 is the reference node and is never stored.
type NodalMatrix struct {
	Size     int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	config   *sparse.Configuration
}

func NewMatrix(size int) (*NodalMatrix, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix of size %d: %w", size, err)
	}

	return &NodalMatrix{
		Size:     size,
		matrix:   mat,
		rhs:      make([]float64, size+1),
		solution: make([]float64, size+1),
		config:   config,
	}, nil
}

func (m *NodalMatrix) inRange(i int) bool {
	return i > 0 && i <= m.Size
}

func (m *NodalMatrix) AddElement(i, j int, value float64) {
	if !m.inRange(i) || !m.inRange(j) {
		return
	}
	m.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (m *NodalMatrix) AddRHS(i int, value float64) {
	if !m.inRange(i) {
		return
	}
	m.rhs[i] += value
}

// AddConductance stamps g between nodes i and j. Either may be the reference node 0.
func (m *NodalMatrix) AddConductance(i, j int, g float64) {
	m.AddElement(i, i, g)
	m.AddElement(j, j, g)
	m.AddElement(i, j, -g)
	m.AddElement(j, i, -g)
}

func (m *NodalMatrix) LoadGmin(gmin float64) {
	for i := 1; i <= m.Size; i++ {
		m.matrix.GetElement(int64(i), int64(i)).Real += gmin
	}
}

func (m *NodalMatrix) Solve() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("%w: nodal factorization failed: %v", simerr.ErrSingular, err)
	}

	solution, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("%w: nodal solve failed: %v", simerr.ErrSingular, err)
	}
	m.solution = solution
	return nil
}

func (m *NodalMatrix) RHS() []float64 {
	return m.rhs
}

// Solution returns node voltages indexed like the rows; entry 0 is the reference.
func (m *NodalMatrix) Solution() []float64 {
	return m.solution
}

func (m *NodalMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
