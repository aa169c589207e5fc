package circuit

import (
	"fmt"
	"math"
	"sort"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/loop"
	"github.com/edp1096/ppe-sim/pkg/matrix"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

type BranchParam = device.BranchParam

// kclEntry is one branch incident to a node, +1 when it leaves the node.
type kclEntry struct {
	Branch int
	Sign   float64
}

type Circuit struct {
	name string
	topo *topology.Topology

	components []device.Component
	byTag      map[string]device.Component
	inBranch   [][]device.Component
	sources    []device.Component // indexed by source column
	meters     []device.Meter
	nonlinear  []device.Nonlinear
	controlled map[string]device.Controlled

	kclMap   [][]kclEntry
	params   []BranchParam
	voltages []float64
}

// New binds the components to the branches of topo. Placement and polarity problems
// are collected and returned together.
func New(name string, topo *topology.Topology, comps []device.Component) (*Circuit, error) {
	c := &Circuit{
		name:       name,
		topo:       topo,
		components: comps,
		byTag:      make(map[string]device.Component),
		inBranch:   make([][]device.Component, len(topo.Branches)),
		controlled: make(map[string]device.Controlled),
		kclMap:     make([][]kclEntry, len(topo.Nodes)),
		voltages:   make([]float64, len(topo.Nodes)),
	}

	var errs simerr.List
	for _, comp := range comps {
		tag := comp.GetTag()
		if _, dup := c.byTag[tag]; dup {
			errs.Addf(simerr.ErrTopology, "duplicate component tag %s", tag)
			continue
		}
		c.byTag[tag] = comp

		b, ok := topo.BranchAt(comp.GetPos())
		if !ok {
			errs.Addf(simerr.ErrTopology, "%s_%s at %s is not on any branch", comp.GetType(), tag, comp.GetPos())
			continue
		}
		if _, has := comp.GetPolarity(); comp.NeedsPolarity() && !has {
			errs.Add(&simerr.PolarityError{Kind: comp.GetType(), Tag: tag, Reason: "Polarity is not specified"})
			continue
		}
		if err := comp.DetermineBranch(&topo.Branches[b]); err != nil {
			errs.Add(err)
			continue
		}
		c.inBranch[b] = append(c.inBranch[b], comp)

		for i := 0; i < comp.SourceCount(); i++ {
			if i == 0 {
				comp.SetSourceColumn(len(c.sources))
			}
			c.sources = append(c.sources, comp)
		}
		if m, ok := comp.(device.Meter); ok {
			c.meters = append(c.meters, m)
		}
		if nl, ok := comp.(device.Nonlinear); ok {
			c.nonlinear = append(c.nonlinear, nl)
		}
		if ctl, ok := comp.(device.Controlled); ok {
			c.controlled[tag] = ctl
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	for n := range topo.Nodes {
		for b := range topo.Branches {
			if s := topo.Incidence(n, b); s != 0 {
				c.kclMap[n] = append(c.kclMap[n], kclEntry{Branch: b, Sign: float64(s)})
			}
		}
	}

	c.params = make([]BranchParam, len(topo.Branches))
	for b := range c.params {
		c.params[b].Coeff = make([]float64, len(c.sources))
	}
	c.InitializeBranchParams()
	return c, nil
}

func (c *Circuit) Name() string                      { return c.name }
func (c *Circuit) Topology() *topology.Topology      { return c.topo }
func (c *Circuit) Components() []device.Component    { return c.components }
func (c *Circuit) Meters() []device.Meter            { return c.meters }
func (c *Circuit) Nonlinear() []device.Nonlinear     { return c.nonlinear }
func (c *Circuit) SourceCount() int                  { return len(c.sources) }
func (c *Circuit) BranchCount() int                  { return len(c.params) }
func (c *Circuit) Param(b int) *BranchParam          { return &c.params[b] }
func (c *Circuit) InBranch(b int) []device.Component { return c.inBranch[b] }
func (c *Circuit) NodeVoltages() []float64           { return c.voltages }

func (c *Circuit) Component(tag string) device.Component {
	return c.byTag[tag]
}

// Controlled returns the controllable component with the given tag.
func (c *Circuit) Controlled(tag string) (device.Controlled, bool) {
	ctl, ok := c.controlled[tag]
	return ctl, ok
}

// ControlledTags lists the controllable components in tag order.
func (c *Circuit) ControlledTags() []string {
	tags := make([]string, 0, len(c.controlled))
	for tag := range c.controlled {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// InitializeBranchParams restamps R, L and the source coefficients of every branch.
// Currents, streaks and events are kept.
func (c *Circuit) InitializeBranchParams() {
	for b := range c.params {
		p := &c.params[b]
		p.R, p.L = 0, 0
		for i := range p.Coeff {
			p.Coeff[i] = 0
		}
		for _, comp := range c.inBranch[b] {
			comp.Stamp(p)
		}
	}
}

// GenerateSources evaluates every source at t into a fresh source vector.
func (c *Circuit) GenerateSources(t float64) []float64 {
	u := make([]float64, len(c.sources))
	for i, src := range c.sources {
		if i > 0 && c.sources[i-1] == src {
			continue
		}
		src.GenerateVal(t, u)
	}
	return u
}

// Stiff reports, per branch, whether its L/R time constant is too short to integrate at
// step dt. A branch that kept flipping its current direction is forced stiff.
func (c *Circuit) Stiff(dt float64) []bool {
	stiff := make([]bool, len(c.params))
	for b := range c.params {
		p := &c.params[b]
		switch {
		case p.Streak >= consts.StiffStreakLimit:
			stiff[b] = true
		case p.L == 0:
			stiff[b] = true
		case p.R == 0:
			stiff[b] = false
		default:
			stiff[b] = math.Abs(p.L/p.R) < consts.StiffRatio*dt
		}
	}
	return stiff
}

func (c *Circuit) StiffnessKey(dt float64) (string, []bool) {
	stiff := c.Stiff(dt)
	return loop.StiffnessKey(stiff), stiff
}

// BaseLoops returns the independent loop set of the circuit.
func (c *Circuit) BaseLoops() (loop.Map, error) {
	m, err := loop.BaseMap(c.topo)
	if err != nil {
		return nil, fmt.Errorf("building loops of %s: %w", c.name, err)
	}
	return m, nil
}

// SolveKCL solves the node voltages with algebraic branches as conductances behind
// their EMF and every other branch as a fixed injection of its present current. It
// returns the resulting branch currents; non-algebraic branches keep their current.
func (c *Circuit) SolveKCL(algebraic []bool, u []float64) ([]float64, error) {
	nodes := len(c.topo.Nodes)
	for i := range c.voltages {
		c.voltages[i] = 0
	}

	if nodes > 1 {
		m, err := matrix.NewMatrix(nodes - 1)
		if err != nil {
			return nil, err
		}
		defer m.Destroy()

		for b, br := range c.topo.Branches {
			if br.SelfLoop() {
				continue
			}
			c.stampBranch(m, b, algebraic[b], u)
		}
		m.LoadGmin(consts.Gmin)

		if err := m.Solve(); err != nil {
			return nil, fmt.Errorf("kcl: %w", err)
		}
		sol := m.Solution()
		copy(c.voltages[1:], sol[1:nodes])
	}

	currents := make([]float64, len(c.params))
	for b, br := range c.topo.Branches {
		p := &c.params[b]
		if !algebraic[b] {
			currents[b] = p.Current
			continue
		}
		g := 1 / math.Max(p.R, consts.MinResistance)
		dv := c.voltages[br.From] - c.voltages[br.To]
		currents[b] = g * (dv + p.EMF(u))
		p.Voltage = dv
	}
	return currents, nil
}

func (c *Circuit) stampBranch(m matrix.Stamper, b int, algebraic bool, u []float64) {
	br := &c.topo.Branches[b]
	p := &c.params[b]
	from, to := br.From, br.To

	if !algebraic {
		m.AddRHS(from, -p.Current)
		m.AddRHS(to, p.Current)
		return
	}
	g := 1 / math.Max(p.R, consts.MinResistance)
	e := p.EMF(u)
	m.AddConductance(from, to, g)
	m.AddRHS(from, -g*e)
	m.AddRHS(to, g*e)
}

// KCLResidual is the largest current imbalance over all nodes for the given branch currents.
func (c *Circuit) KCLResidual(currents []float64) float64 {
	worst := 0.0
	for _, entries := range c.kclMap {
		sum := 0.0
		for _, e := range entries {
			sum += e.Sign * currents[e.Branch]
		}
		worst = math.Max(worst, math.Abs(sum))
	}
	return worst
}

// SetCurrents stores new branch currents and keeps the old ones as previous.
func (c *Circuit) SetCurrents(currents []float64) {
	for b := range c.params {
		c.params[b].Previous = c.params[b].Current
		c.params[b].Current = currents[b]
	}
}

// UpdateComponents lets every component observe its branch after a step of length h.
// Branch events are reset first and hold the most severe event of their components.
func (c *Circuit) UpdateComponents(h float64) device.Event {
	worst := device.NoEvent
	for b := range c.params {
		p := &c.params[b]
		p.Event = device.NoEvent
		for _, comp := range c.inBranch[b] {
			p.Event = device.MaxEvent(p.Event, comp.UpdateVal(p, h))
		}
		worst = device.MaxEvent(worst, p.Event)
	}
	return worst
}

// UpdateStreaks counts consecutive current reversals of integrated branches. Branches
// that were stiff or solved by KCL count down.
func (c *Circuit) UpdateStreaks(stiff, kcl []bool) {
	for b := range c.params {
		p := &c.params[b]
		flipped := p.Current*p.Previous < 0
		if !stiff[b] && !kcl[b] && flipped {
			p.Streak++
		} else if p.Streak > 0 {
			p.Streak--
		}
	}
}

// Readings returns the value of every meter keyed by its tag.
func (c *Circuit) Readings() map[string]float64 {
	out := make(map[string]float64, len(c.meters))
	for _, m := range c.meters {
		out[m.GetTag()] = m.Reading()
	}
	return out
}
