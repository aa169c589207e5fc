package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/config"
	"github.com/edp1096/ppe-sim/pkg/control"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/loop"
	"github.com/edp1096/ppe-sim/pkg/output"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/util"
)

// Stats counts what the driver did during a run.
type Stats struct {
	Iterations     int
	Steps          int
	Rederivations  int
	FreewheelMax   int // most rounds one device state fixed point needed
	FreewheelTotal int
	Demoted        int // non-stiff loops integrated algebraically, summed over re-derivations
	CacheHits      int
	CacheMisses    int
	Snapshots      int
}

type Transient struct {
	BaseAnalysis
	cfg      *config.Config
	sink     output.Writer
	registry *control.Registry
	stored   []string

	base     loop.Map
	cache    *loop.Cache
	controls *control.Runner
	solver   *util.Solver

	sys   *System
	stiff []bool
	x     []float64 // integrated loop currents
	stats Stats
}

// NewTransient prepares a run. sink and registry may be nil; store names the control
// variables written after the meter columns.
func NewTransient(cfg *config.Config, sink output.Writer, registry *control.Registry, store []string) *Transient {
	tr := &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		cfg:          cfg,
		sink:         sink,
		registry:     registry,
		stored:       store,
		cache:        loop.NewCache(),
		solver:       util.SolverByName(cfg.Integrator),
	}
	if cfg.MaxFreewheel > 0 {
		tr.convergence.maxFreewheel = cfg.MaxFreewheel
	}
	return tr
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	if err := tr.cfg.Validate(); err != nil {
		return err
	}
	tr.Circuit = ckt

	base, err := ckt.BaseLoops()
	if err != nil {
		return err
	}
	tr.base = base
	tr.controls = control.NewRunner(tr.registry, ckt.Components(), tr.stored)

	if tr.sink != nil {
		names, _ := meterColumns(ckt)
		if err := tr.sink.Header(append(names, tr.controls.StoreNames()...)); err != nil {
			return err
		}
	}
	tr.logf("%s: %d branches, %d loops, %d sources", ckt.Name(), ckt.BranchCount(), len(base), ckt.SourceCount())
	if n := tr.controls.Len(); n > 0 {
		tr.logf("%s: %d controls driving %v", ckt.Name(), n, tr.controls.OutputTags())
	}
	return nil
}

func (tr *Transient) Stats() Stats {
	s := tr.stats
	s.CacheHits, s.CacheMisses = tr.cache.Stats()
	s.Snapshots = tr.cache.Len()
	return s
}

func (tr *Transient) Execute() (err error) {
	if tr.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	defer func() {
		if tr.sink != nil {
			err = errors.Join(err, tr.sink.Close())
		}
	}()

	dt := tr.cfg.TimeStep
	gran := dt * consts.MinStepFraction
	eps := gran / 2

	t, tODE, tODEPrev := 0.0, 0.0, -dt
	tStore := tr.cfg.DataStep
	timeEvent := false
	rederive := true

	for t < tr.cfg.TimeLimit {
		tr.stats.Iterations++

		if rederive || tr.branchEvent() {
			if err := tr.rederive(t); err != nil {
				return tr.fail(t, err)
			}
			rederive = false
			timeEvent = true
		}

		if t >= tODE-eps || timeEvent {
			if err := tr.step(t, t-tODEPrev); err != nil {
				return tr.fail(t, err)
			}
			tODEPrev = t
			if !timeEvent || t >= tODE-eps {
				tODE += dt
			}
			for tODE <= t+eps {
				tODE += dt
			}
			timeEvent = false
		}

		if t >= tStore-eps {
			if err := tr.sample(t); err != nil {
				return tr.fail(t, err)
			}
			for tStore <= t+eps {
				tStore += tr.cfg.DataStep
			}
		}

		wakes, ev, err := tr.controls.Run(t, tr.Circuit.Readings())
		if err != nil {
			return tr.fail(t, err)
		}
		if ev {
			rederive = true
		}

		next := tODE
		for _, w := range wakes {
			if w > t+gran && w < next {
				next = w
			}
		}
		next = math.Min(next, tODEPrev+dt)
		if next <= t {
			next = t + gran
		}
		t = next
	}

	tr.logf("%s: %d steps, %d re-derivations, %d snapshots", tr.Circuit.Name(), tr.stats.Steps, tr.stats.Rederivations, tr.cache.Len())
	return nil
}

func (tr *Transient) fail(t float64, err error) error {
	return &simerr.SimulationError{Step: tr.stats.Steps, Time: t, Wrapped: err}
}

func (tr *Transient) branchEvent() bool {
	for b := 0; b < tr.Circuit.BranchCount(); b++ {
		if tr.Circuit.Param(b).Event != device.NoEvent {
			return true
		}
	}
	return false
}

// rederive settles the device states, picks the snapshot for the resulting stiffness
// pattern and assembles a fresh loop model. Integrated loop currents are taken over from
// the branch currents.
func (tr *Transient) rederive(t float64) error {
	ckt := tr.Circuit
	dt := tr.cfg.TimeStep

	ckt.InitializeBranchParams()
	u := ckt.GenerateSources(t)
	rounds, err := settleDevices(ckt, func() []bool { return ckt.Stiff(dt) }, u, tr.convergence.maxFreewheel)
	tr.stats.FreewheelTotal += rounds
	tr.stats.FreewheelMax = max(tr.stats.FreewheelMax, rounds)
	if err != nil {
		return err
	}

	ckt.InitializeBranchParams()
	key, stiff := ckt.StiffnessKey(dt)
	snap, err := tr.cache.Get(key, func() (*loop.Snapshot, error) {
		return loop.RemoveStiffness(tr.base, ckt.Topology(), stiff)
	})
	if err != nil {
		return err
	}

	sys, err := assemble(ckt, snap, dt, tr.solver)
	if err != nil {
		return err
	}
	tr.sys, tr.stiff = sys, stiff
	tr.x = sys.initialState(ckt)

	for b := 0; b < ckt.BranchCount(); b++ {
		ckt.Param(b).Event = device.NoEvent
	}
	tr.stats.Rederivations++
	tr.stats.Demoted += sys.Demoted()
	tr.logf("t=%s key=%s loops=%d/%d rounds=%d", util.FormatValueFactor(t, "s"), key, sys.Integrated(), sys.Algebraic(), rounds)
	return nil
}

// step integrates the loop currents over h ending at t, then recomputes the algebraic
// branch currents by nodal analysis and lets every component observe its branch.
func (tr *Transient) step(t, h float64) error {
	ckt := tr.Circuit
	sys := tr.sys

	u := padSources(ckt.GenerateSources(t), sys.cols)
	next := sys.integrate(t, h, tr.x, u)
	xa := sys.backSolve(u, tr.x, next, h)
	currents := sys.branchCurrents(ckt.BranchCount(), next, xa)
	ckt.SetCurrents(currents)

	kcl := sys.kclBranches(tr.stiff)
	final, err := ckt.SolveKCL(kcl, u)
	if err != nil {
		return err
	}
	for b, k := range kcl {
		if k {
			ckt.Param(b).Current = final[b]
		}
	}
	for b := 0; b < ckt.BranchCount(); b++ {
		if i := ckt.Param(b).Current; math.IsNaN(i) || math.Abs(i) > consts.MaxCurrent {
			return fmt.Errorf("%w: branch %d carries %g A", simerr.ErrDiverged, b, i)
		}
	}

	tr.x = next
	ckt.UpdateComponents(h)
	ckt.UpdateStreaks(tr.stiff, kcl)
	tr.stats.Steps++
	return nil
}

func (tr *Transient) sample(t float64) error {
	names, values := meterColumns(tr.Circuit)
	names = append(names, tr.controls.StoreNames()...)
	values = append(values, tr.controls.StoreValues()...)

	tr.StoreTimeResult(t, names, values)
	if tr.sink == nil {
		return nil
	}
	return tr.sink.Write(t, values)
}
