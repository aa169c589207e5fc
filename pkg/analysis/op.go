package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/loop"
	"github.com/edp1096/ppe-sim/pkg/matrix"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// OperatingPoint solves the steady state mesh equations A*x = B*u over the base loops.
// Inductors are shorted and capacitors hold their present voltage.
type OperatingPoint struct {
	BaseAnalysis
	base   loop.Map
	rounds int
}

func NewOP() *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	base, err := ckt.BaseLoops()
	if err != nil {
		return err
	}
	op.Circuit = ckt
	op.base = base
	return nil
}

// Rounds is the number of device state rounds the last solve took.
func (op *OperatingPoint) Rounds() int { return op.rounds }

// solveMesh returns the branch currents of one mesh solve for the present device states.
func (op *OperatingPoint) solveMesh(u []float64) ([]float64, error) {
	ckt := op.Circuit
	rows := len(op.base)
	currents := make([]float64, ckt.BranchCount())
	if rows == 0 {
		return currents, nil
	}

	signs := make([][]float64, rows)
	for r := range signs {
		signs[r] = op.base.Signs(r)
	}
	a := mat.NewDense(rows, rows, nil)
	bu := make([]float64, rows)
	for b := 0; b < ckt.BranchCount(); b++ {
		p := ckt.Param(b)
		rb := math.Max(p.R, consts.MinResistance)
		emf := p.EMF(u)
		for r := 0; r < rows; r++ {
			sr := signs[r][b]
			if sr == 0 {
				continue
			}
			bu[r] += sr * emf
			for q := 0; q < rows; q++ {
				if sq := signs[q][b]; sq != 0 {
					a.Set(r, q, a.At(r, q)+sr*sq*rb)
				}
			}
		}
	}

	x, err := matrix.SolveVec(a, bu)
	if err != nil {
		return nil, fmt.Errorf("mesh matrix: %w", err)
	}
	for r, xr := range x {
		for b, s := range signs[r] {
			currents[b] += s * xr
		}
	}
	return currents, nil
}

// solve runs the mesh solve inside the device state fixed point.
func (op *OperatingPoint) solve(t float64) error {
	ckt := op.Circuit
	ckt.InitializeBranchParams()
	u := ckt.GenerateSources(t)

	for round := 0; round < op.convergence.maxFreewheel; round++ {
		currents, err := op.solveMesh(u)
		if err != nil {
			return err
		}
		ckt.SetCurrents(currents)

		changed := false
		for _, nl := range ckt.Nonlinear() {
			p := ckt.Param(nl.GetBranch())
			var ev device.Event
			if round < 2 {
				ev = nl.PreDetermineState(p)
			} else {
				ev = nl.DetermineState(p)
			}
			changed = changed || ev != device.NoEvent
		}
		if !changed {
			op.rounds = round + 1
			ckt.UpdateComponents(0)
			return nil
		}
		ckt.InitializeBranchParams()
	}
	op.rounds = op.convergence.maxFreewheel
	return fmt.Errorf("%w: operating point after %d rounds", simerr.ErrNoConvergence, op.rounds)
}

func (op *OperatingPoint) Execute() error {
	if op.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	if err := op.solve(0); err != nil {
		return err
	}
	op.storeResults()
	op.logf("%s: operating point in %d rounds", op.Circuit.Name(), op.rounds)
	return nil
}

func (op *OperatingPoint) storeResults() {
	ckt := op.Circuit
	// Meter readings
	names, values := meterColumns(ckt)
	for i, name := range names {
		op.results[name] = []float64{values[i]}
	}
	op.columns = append(op.columns[:0], names...)
	// Branch current
	for b := 0; b < ckt.BranchCount(); b++ {
		key := fmt.Sprintf("I(B%d)", b)
		op.results[key] = []float64{ckt.Param(b).Current}
		op.columns = append(op.columns, key)
	}
}
