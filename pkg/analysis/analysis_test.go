package analysis

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/config"
	"github.com/edp1096/ppe-sim/pkg/control"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/loop"
	"github.com/edp1096/ppe-sim/pkg/output"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
	"github.com/edp1096/ppe-sim/pkg/util"
)

func pos(r, c int) topology.Position {
	return topology.Position{Row: r, Col: c}
}

func polarised(c device.Component, p topology.Position) device.Component {
	c.SetPolarity(p)
	return c
}

func build(t *testing.T, name string, rows [][]string, comps ...device.Component) *circuit.Circuit {
	t.Helper()
	topo, err := topology.Extract(topology.NewGrid(rows))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	ckt, err := circuit.New(name, topo, comps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ckt
}

// kvlLoop is 10 V across 10 ohm in a single loop.
func kvlLoop(t *testing.T) *circuit.Circuit {
	return build(t, "kvl", [][]string{
		{"wire", "Resistor_R1", "Ammeter_A1", "wire"},
		{"VoltageSource_V1", "", "", "wire"},
		{"wire", "wire", "wire", "wire"},
	},
		device.NewResistor("R1", pos(0, 1), 10),
		polarised(device.NewAmmeter("A1", pos(0, 2)), pos(0, 3)),
		polarised(device.NewDCVoltageSource("V1", pos(1, 0), 10), pos(0, 0)),
	)
}

// rlMesh drives two parallel 20 ohm resistors through the inductor L1.
func rlMesh(t *testing.T, l float64) *circuit.Circuit {
	return build(t, "rl", [][]string{
		{"wire", "Inductor_L1", "Ammeter_A1", "wire", "wire", "wire"},
		{"VoltageSource_V1", "", "", "Resistor_R2", "", "Resistor_R3"},
		{"wire", "wire", "wire", "wire", "wire", "wire"},
	},
		device.NewInductor("L1", pos(0, 1), l),
		polarised(device.NewAmmeter("A1", pos(0, 2)), pos(0, 3)),
		polarised(device.NewDCVoltageSource("V1", pos(1, 0), 10), pos(0, 0)),
		device.NewResistor("R2", pos(1, 3), 20),
		device.NewResistor("R3", pos(1, 5), 20),
	)
}

func rectifier(t *testing.T) *circuit.Circuit {
	return build(t, "rectifier", [][]string{
		{"wire", "Diode_D1", "Resistor_R1", "Ammeter_A1", "wire"},
		{"VoltageSource_V1", "", "", "", "wire"},
		{"wire", "wire", "wire", "wire", "wire"},
	},
		polarised(device.NewDiode("D1", pos(0, 1), 120), pos(0, 2)),
		device.NewResistor("R1", pos(0, 2), 10),
		polarised(device.NewAmmeter("A1", pos(0, 3)), pos(0, 4)),
		polarised(device.NewVoltageSource("V1", pos(1, 0), 120, 60, 0, 0), pos(0, 0)),
	)
}

func boost(t *testing.T) *circuit.Circuit {
	return build(t, "boost", [][]string{
		{"wire", "Inductor_L1", "Ammeter_A1", "wire", "Diode_D1", "wire", "wire", "wire", "wire", "wire"},
		{"VoltageSource_V1", "", "", "Switch_S1", "", "Capacitor_C1", "", "Resistor_RL", "", "Voltmeter_VO"},
		{"wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire"},
	},
		device.NewInductor("L1", pos(0, 1), 500e-6),
		polarised(device.NewAmmeter("A1", pos(0, 2)), pos(0, 3)),
		polarised(device.NewDiode("D1", pos(0, 4), 120), pos(0, 5)),
		polarised(device.NewDCVoltageSource("V1", pos(1, 0), 12), pos(0, 0)),
		polarised(device.NewSwitch("S1", pos(1, 3), 120), pos(2, 3)),
		polarised(device.NewCapacitor("C1", pos(1, 5), 100e-6), pos(0, 5)),
		device.NewResistor("RL", pos(1, 7), 10),
		polarised(device.NewVoltmeter("VO", pos(1, 9), 120), pos(0, 9)),
	)
}

func transientConfig(limit, dt, data float64) *config.Config {
	cfg := config.Default()
	cfg.TimeLimit = limit
	cfg.TimeStep = dt
	cfg.DataStep = data
	return cfg
}

func runTransient(t *testing.T, ckt *circuit.Circuit, cfg *config.Config, reg *control.Registry, store ...string) *Transient {
	t.Helper()
	tr := NewTransient(cfg, nil, reg, store)
	if err := tr.Setup(ckt); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := tr.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return tr
}

func TestOperatingPointKVL(t *testing.T) {
	op := NewOP()
	if err := op.Setup(kvlLoop(t)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := op.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	res := op.GetResults()
	if got := res["A1"][0]; math.Abs(math.Abs(got)-1) > 1e-6 {
		t.Errorf("A1 = %g, expected 1 A", got)
	}
	if got := res["I(B0)"][0]; math.Abs(math.Abs(got)-1) > 1e-6 {
		t.Errorf("I(B0) = %g, expected 1 A", got)
	}
}

func TestTransientKVL(t *testing.T) {
	tr := runTransient(t, kvlLoop(t), transientConfig(1e-4, 1e-6, 1e-5), nil)

	res := tr.GetResults()
	if n := len(res["TIME"]); n < 9 || n > 11 {
		t.Fatalf("stored %d rows, expected 10", n)
	}
	for i, v := range res["A1"] {
		if math.Abs(math.Abs(v)-1) > 1e-9 {
			t.Fatalf("row %d: A1 = %g, expected 1 A", i, v)
		}
	}
	if s := tr.Stats(); s.Rederivations != 1 || s.Snapshots != 1 {
		t.Errorf("stats = %+v, expected a single derivation", s)
	}
}

func TestTransientRLCharge(t *testing.T) {
	const l = 1e-3
	tr := runTransient(t, rlMesh(t, l), transientConfig(5e-4, 1e-6, 1e-5), nil)

	res := tr.GetResults()
	tau := l / 10
	for i, tm := range res["TIME"] {
		want := 1 - math.Exp(-(tm+1e-6)/tau)
		if got := math.Abs(res["A1"][i]); math.Abs(got-want) > 1e-3 {
			t.Fatalf("t=%g: |A1| = %g, expected %g", tm, got, want)
		}
	}
	if s := tr.Stats(); s.Demoted != 0 {
		t.Errorf("demoted %d loops, expected none", s.Demoted)
	}
}

func TestAssembleDemotesFastLoops(t *testing.T) {
	cases := []struct {
		l          float64
		solver     *util.Solver
		integrated int
		demoted    int
	}{
		{1e-3, util.RK4(), 1, 0},
		{5e-6, util.RK4(), 1, 0}, // h/tau = 2
		{3e-6, util.RK4(), 0, 1}, // h/tau = 3.3 diverges under RK4
		{1e-6, util.RK4(), 0, 1},
		{5e-6, util.Euler(), 0, 1},
	}
	const dt = 1e-6
	for _, c := range cases {
		ckt := rlMesh(t, c.l)
		base, err := ckt.BaseLoops()
		if err != nil {
			t.Fatalf("BaseLoops failed: %v", err)
		}
		_, stiff := ckt.StiffnessKey(dt)
		snap, err := loop.RemoveStiffness(base, ckt.Topology(), stiff)
		if err != nil {
			t.Fatalf("RemoveStiffness failed: %v", err)
		}
		if snap.NonStiff != 1 {
			t.Fatalf("L=%g: %d non-stiff loops, expected 1", c.l, snap.NonStiff)
		}

		sys, err := assemble(ckt, snap, dt, c.solver)
		if err != nil {
			t.Fatalf("assemble failed: %v", err)
		}
		if sys.Integrated() != c.integrated || sys.Demoted() != c.demoted {
			t.Errorf("L=%g %s: integrated %d demoted %d, expected %d and %d",
				c.l, c.solver.Name, sys.Integrated(), sys.Demoted(), c.integrated, c.demoted)
		}
	}
}

func TestDemotedLoopSettlesAlgebraically(t *testing.T) {
	for _, l := range []float64{1e-6, 2e-6, 3e-6} {
		tr := runTransient(t, rlMesh(t, l), transientConfig(2e-5, 1e-6, 1e-6), nil)
		for i, v := range tr.GetResults()["A1"] {
			if math.Abs(math.Abs(v)-1) > 1e-6 {
				t.Fatalf("L=%g row %d: |A1| = %g, expected 1 A", l, i, v)
			}
		}
		if s := tr.Stats(); s.Demoted == 0 {
			t.Errorf("L=%g: no loop demoted", l)
		}
	}
}

func TestFastRowFindsCoupledMode(t *testing.T) {
	// both rows alone decay with tau = dt, together they carry a mode 100 times faster
	coupled := reducedSystem{
		e: mat.NewDense(2, 2, []float64{1, 0.99, 0.99, 1}),
		a: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
	if k := coupled.fastRow(1, 2.5); k != 0 {
		t.Errorf("coupled fastRow = %d, expected 0", k)
	}
	plain := reducedSystem{
		e: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		a: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
	if k := plain.fastRow(1, 2.5); k != -1 {
		t.Errorf("decoupled fastRow = %d, expected -1", k)
	}
	if k := plain.fastRow(1, 0.5); k != 0 {
		t.Errorf("fastRow at ratio 0.5 = %d, expected 0", k)
	}
}

func TestRectifierHalfWave(t *testing.T) {
	const dt = 1e-5
	tr := runTransient(t, rectifier(t), transientConfig(1.0/60, dt, dt), nil)

	res := tr.GetResults()
	turnOn := math.Asin(1.0/120) / (2 * math.Pi * 60)
	first := -1.0
	peak, reverse := 0.0, 0.0
	for i, tm := range res["TIME"] {
		cur := math.Abs(res["A1"][i])
		if first < 0 && cur > 0.05 {
			first = tm
		}
		phase := math.Mod(tm*60, 1)
		if phase < 0.5 {
			peak = math.Max(peak, cur)
		} else if phase > 0.52 && phase < 0.98 {
			reverse = math.Max(reverse, cur)
		}
	}

	if first < 0 || first > turnOn+2*dt {
		t.Errorf("diode conducted at %g, expected by %g", first, turnOn+2*dt)
	}
	if math.Abs(peak-120/10.01) > 0.2 {
		t.Errorf("peak current = %g, expected about %g", peak, 120/10.01)
	}
	if reverse > 1e-3 {
		t.Errorf("reverse current = %g, expected blocking", reverse)
	}
}

func TestBoostConverter(t *testing.T) {
	const (
		vin  = 12.0
		duty = 0.7
		load = 10.0
		rOn  = 0.01
	)
	reg := control.NewRegistry()
	err := control.RegisterSpecs(reg, []control.Spec{
		{Kind: "softstart", Name: "ramp", Var: "mod",
			Values: map[string]float64{"freq": 10e3, "step": 0.05, "periods": 2, "max": duty}},
		{Kind: "pwm", Name: "gate", Target: "S1", Var: "mod",
			Values: map[string]float64{"freq": 10e3, "sample": 2e-6}},
	})
	if err != nil {
		t.Fatalf("RegisterSpecs failed: %v", err)
	}

	cfg := transientConfig(0.025, 2e-6, 1e-5)
	tr := runTransient(t, boost(t), cfg, reg, "mod")
	res := tr.GetResults()

	// inductor current is continuous between samples
	il := res["A1"]
	for i := 1; i < len(il); i++ {
		if d := math.Abs(il[i] - il[i-1]); d > 2 {
			t.Fatalf("inductor current jumped by %g A at t=%g", d, res["TIME"][i])
		}
	}

	sum, n := 0.0, 0
	for i, tm := range res["TIME"] {
		if tm >= cfg.TimeLimit-2e-3 {
			sum += math.Abs(res["VO"][i])
			n++
		}
	}
	if n == 0 {
		t.Fatal("no samples in the averaging window")
	}
	vo := sum / float64(n)

	loss := ((1-duty)*rOn + duty*rOn) / (load * (1 - duty) * (1 - duty))
	want := vin / (1 - duty) / (1 + loss)
	if math.Abs(vo-want)/want > 0.1 {
		t.Errorf("average output = %g V, expected about %g V", vo, want)
	}
	if got := res["mod"][len(res["mod"])-1]; got != duty {
		t.Errorf("modulation = %g, expected %g", got, duty)
	}

	s := tr.Stats()
	if s.FreewheelMax >= cfg.MaxFreewheel {
		t.Errorf("freewheel rounds reached the cap: %+v", s)
	}
	if s.CacheHits == 0 || s.Snapshots > 8 {
		t.Errorf("snapshot cache not reused: %+v", s)
	}
}

func TestFreewheelCap(t *testing.T) {
	settle := func(limit int) (*circuit.Circuit, int, error) {
		ckt := rectifier(t)
		ckt.InitializeBranchParams()
		u := ckt.GenerateSources(1.0 / 240) // source at its peak
		rounds, err := settleDevices(ckt, func() []bool { return ckt.Stiff(1e-5) }, u, limit)
		return ckt, rounds, err
	}

	if _, _, err := settle(1); !errors.Is(err, simerr.ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence with a single round, got %v", err)
	}

	ckt, rounds, err := settle(50)
	if err != nil {
		t.Fatalf("settleDevices failed: %v", err)
	}
	if rounds != 2 {
		t.Errorf("rounds = %d, expected 2", rounds)
	}
	if d := ckt.Component("D1").(*device.Diode); d.GetStatus() != device.On {
		t.Errorf("diode should conduct at the positive peak")
	}
}

// switchLoop closes S1 through a constant control at t=0.
func switchLoop(t *testing.T) (*circuit.Circuit, *control.Registry) {
	ckt := build(t, "switch", [][]string{
		{"wire", "Switch_S1", "Resistor_R1", "Ammeter_A1", "wire"},
		{"VoltageSource_V1", "", "", "", "wire"},
		{"wire", "wire", "wire", "wire", "wire"},
	},
		polarised(device.NewSwitch("S1", pos(0, 1), 120), pos(0, 2)),
		device.NewResistor("R1", pos(0, 2), 10),
		polarised(device.NewAmmeter("A1", pos(0, 3)), pos(0, 4)),
		polarised(device.NewDCVoltageSource("V1", pos(1, 0), 10), pos(0, 0)),
	)
	reg := control.NewRegistry()
	err := control.RegisterSpecs(reg, []control.Spec{
		{Kind: "constant", Name: "close", Target: "S1", Values: map[string]float64{"value": 1}},
	})
	if err != nil {
		t.Fatalf("RegisterSpecs failed: %v", err)
	}
	return ckt, reg
}

func TestControlEventClosesSwitch(t *testing.T) {
	ckt, reg := switchLoop(t)
	tr := runTransient(t, ckt, transientConfig(1e-4, 1e-5, 1e-5), reg)

	a1 := tr.GetResults()["A1"]
	if got := math.Abs(a1[len(a1)-1]); math.Abs(got-10/10.01) > 1e-6 {
		t.Errorf("|A1| = %g, expected %g", got, 10/10.01)
	}
	if s := tr.Stats(); s.Rederivations != 2 {
		t.Errorf("re-derivations = %d, expected 2", s.Rederivations)
	}
}

func TestTransientReportsFreewheelError(t *testing.T) {
	cfg := transientConfig(1e-4, 1e-5, 1e-5)
	cfg.MaxFreewheel = 1

	ckt, reg := switchLoop(t)
	tr := NewTransient(cfg, nil, reg, nil)
	if err := tr.Setup(ckt); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	err := tr.Execute()

	var simErr *simerr.SimulationError
	if !errors.As(err, &simErr) || !errors.Is(err, simerr.ErrNoConvergence) {
		t.Fatalf("expected a wrapped ErrNoConvergence, got %v", err)
	}
	if math.Abs(simErr.Time-1e-5) > 1e-9 || simErr.Step != 1 {
		t.Errorf("failed at t=%g step %d, expected the step after the gate closed", simErr.Time, simErr.Step)
	}
}

func TestTransientReportsDivergence(t *testing.T) {
	// tau = 0.1 us integrated with 1 us steps grows about 300 times a step
	unstable := util.RK4()
	unstable.StableRatio = 1e9

	tr := NewTransient(transientConfig(1e-4, 1e-6, 1e-6), nil, nil, nil)
	tr.solver = unstable
	if err := tr.Setup(rlMesh(t, 1e-6)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	err := tr.Execute()

	var simErr *simerr.SimulationError
	if !errors.As(err, &simErr) || !errors.Is(err, simerr.ErrDiverged) {
		t.Fatalf("expected a wrapped ErrDiverged, got %v", err)
	}
	if simErr.Step > 20 {
		t.Errorf("divergence reported at step %d", simErr.Step)
	}
}

func TestTransientWritesSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := output.NewSink(dir, "kvl", 2, 1e-4)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	tr := NewTransient(transientConfig(1e-4, 1e-6, 1e-5), sink, nil, nil)
	if err := tr.Setup(kvlLoop(t)); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := tr.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, p := range sink.Paths() {
		if filepath.Ext(p) != ".dat" {
			t.Errorf("unexpected output %s", p)
		}
	}
	if len(sink.Paths()) != 2 {
		t.Errorf("paths = %v, expected two windows", sink.Paths())
	}
}

func TestDCSweep(t *testing.T) {
	if _, err := NewDCSweep([]string{"V1"}, []float64{0}, []float64{10}, []float64{0}); !errors.Is(err, simerr.ErrConfig) {
		t.Errorf("zero increment accepted: %v", err)
	}

	dc, err := NewDCSweep([]string{"V1"}, []float64{0}, []float64{10}, []float64{2.5})
	if err != nil {
		t.Fatalf("NewDCSweep failed: %v", err)
	}
	ckt := kvlLoop(t)
	if err := dc.Setup(ckt); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := dc.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	res := dc.GetResults()
	if len(res["SWEEP1"]) != 5 {
		t.Fatalf("sweep points = %v", res["SWEEP1"])
	}
	for i, v := range res["SWEEP1"] {
		if got := math.Abs(res["A1"][i]); math.Abs(got-v/10) > 1e-6 {
			t.Errorf("V1=%g: |A1| = %g, expected %g", v, got, v/10)
		}
	}
	if v := ckt.Component("V1").(*device.VoltageSource); v.Offset != 10 {
		t.Errorf("offset not restored: %g", v.Offset)
	}

	dc, _ = NewDCSweep([]string{"R1"}, []float64{0}, []float64{1}, []float64{1})
	if err := dc.Setup(ckt); !errors.Is(err, simerr.ErrConfig) {
		t.Errorf("sweeping a resistor accepted: %v", err)
	}
}
