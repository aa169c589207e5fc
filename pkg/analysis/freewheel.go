package analysis

import (
	"fmt"

	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// settleDevices runs the device state fixed point. Each round solves KCL with the stiff
// branches as conductances, writes their currents back and lets every nonlinear device
// check its state: the first two rounds with the gate-aware pre-check, later rounds with
// the conduction check only. It returns the number of rounds used.
func settleDevices(ckt *circuit.Circuit, stiffness func() []bool, u []float64, limit int) (int, error) {
	for round := 0; round < limit; round++ {
		stiff := stiffness()
		currents, err := ckt.SolveKCL(stiff, u)
		if err != nil {
			return round, err
		}
		for b, s := range stiff {
			if s {
				ckt.Param(b).Current = currents[b]
			}
		}

		changed := false
		for _, nl := range ckt.Nonlinear() {
			p := ckt.Param(nl.GetBranch())
			var ev device.Event
			if round < 2 {
				ev = nl.PreDetermineState(p)
			} else {
				ev = nl.DetermineState(p)
			}
			if ev != device.NoEvent {
				p.Event = device.MaxEvent(p.Event, ev)
				changed = true
			}
		}
		if !changed {
			return round + 1, nil
		}
		ckt.InitializeBranchParams()
	}
	return limit, fmt.Errorf("%w: %d rounds", simerr.ErrNoConvergence, limit)
}
