package device

import (
	"fmt"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

// Event is the severity a component reports after observing its branch.
type Event int

const (
	NoEvent Event = iota
	SoftEvent
	HardEvent
)

func (e Event) String() string {
	switch e {
	case SoftEvent:
		return "soft"
	case HardEvent:
		return "hard"
	}
	return "none"
}

func MaxEvent(a, b Event) Event {
	if a > b {
		return a
	}
	return b
}

type Status int

const (
	Off Status = iota
	On
)

func (s Status) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

const (
	TypeResistor                = "Resistor"
	TypeInductor                = "Inductor"
	TypeCapacitor               = "Capacitor"
	TypeVoltageSource           = "VoltageSource"
	TypeCurrentSource           = "CurrentSource"
	TypeControlledVoltageSource = "ControlledVoltageSource"
	TypeAmmeter                 = "Ammeter"
	TypeVoltmeter               = "Voltmeter"
	TypeDiode                   = "Diode"
	TypeSwitch                  = "Switch"
	TypeThyristor               = "Thyristor"
	TypeVariableResistor        = "VariableResistor"
	TypeVariableInductor        = "VariableInductor"
)

// BranchParam is the aggregate of every component in one branch.
type BranchParam struct {
	R        float64
	L        float64
	Coeff    []float64 // EMF coefficient per source column, forward direction
	Current  float64
	Previous float64
	Voltage  float64
	Streak   int
	Event    Event
}

// EMF is the forward source voltage of the branch for source values u.
func (p *BranchParam) EMF(u []float64) float64 {
	e := 0.0
	for i, c := range p.Coeff {
		if c != 0 {
			e += c * u[i]
		}
	}
	return e
}

type Component interface {
	GetTag() string
	GetType() string
	GetPos() topology.Position
	GetPolarity() (topology.Position, bool)
	SetPolarity(p topology.Position)
	NeedsPolarity() bool
	SetParams(params map[string]float64) error

	// DetermineBranch caches the branch index and the direction of the component in it.
	DetermineBranch(b *topology.Branch) error
	GetBranch() int

	Stamp(p *BranchParam)
	SourceCount() int
	SetSourceColumn(col int)
	GenerateVal(t float64, u []float64)
	UpdateVal(p *BranchParam, h float64) Event
}

// Nonlinear components switch between a low and a high resistance.
type Nonlinear interface {
	Component
	GetStatus() Status
	SetStatus(s Status)
	PreDetermineState(p *BranchParam) Event
	DetermineState(p *BranchParam) Event
}

// Controlled components take one actuation value from a control callback.
type Controlled interface {
	Component
	GetControl() float64
	SetControl(v float64)
}

// Meter components expose the value they measured at the last update.
type Meter interface {
	Component
	Reading() float64
}

type BaseComponent struct {
	Tag         string
	Type        string
	Pos         topology.Position
	Polarity    topology.Position
	HasPolarity bool

	branch         int
	polarityBefore bool // polarity cell lies before the component along the branch path
	column         int
}

func newBase(kind, tag string, pos topology.Position) BaseComponent {
	return BaseComponent{Tag: tag, Type: kind, Pos: pos, branch: -1, column: -1}
}

func (c *BaseComponent) GetTag() string            { return c.Tag }
func (c *BaseComponent) GetType() string           { return c.Type }
func (c *BaseComponent) GetPos() topology.Position { return c.Pos }
func (c *BaseComponent) GetBranch() int            { return c.branch }
func (c *BaseComponent) NeedsPolarity() bool       { return false }
func (c *BaseComponent) SourceCount() int          { return 0 }
func (c *BaseComponent) SetSourceColumn(col int)   { c.column = col }

func (c *BaseComponent) GetPolarity() (topology.Position, bool) {
	return c.Polarity, c.HasPolarity
}

func (c *BaseComponent) SetPolarity(p topology.Position) {
	c.Polarity = p
	c.HasPolarity = true
}

func (c *BaseComponent) Stamp(p *BranchParam)                      {}
func (c *BaseComponent) GenerateVal(t float64, u []float64)         {}
func (c *BaseComponent) UpdateVal(p *BranchParam, h float64) Event { return NoEvent }

func (c *BaseComponent) DetermineBranch(b *topology.Branch) error {
	self := b.IndexOf(c.Pos)
	if self < 0 {
		return fmt.Errorf("%s %s at %s is not on branch %d", c.Type, c.Tag, c.Pos, b.ID)
	}
	c.branch = b.ID

	if !c.HasPolarity {
		return nil
	}
	if c.Polarity == c.Pos {
		return &simerr.PolarityError{Kind: c.Type, Tag: c.Tag, Reason: "Polarity cannot be the component itself"}
	}
	pol := b.IndexOf(c.Polarity)
	if pol < 0 {
		return &simerr.PolarityError{
			Kind:   c.Type,
			Tag:    c.Tag,
			Reason: fmt.Sprintf("Polarity %s is not in the branch of the component", c.Polarity),
		}
	}
	c.polarityBefore = pol < self
	return nil
}

// sign is +1 when the polarity cell lies on the given side of the component, -1 otherwise.
func (c *BaseComponent) sign(before bool) float64 {
	if c.polarityBefore == before {
		return 1
	}
	return -1
}

func (c *BaseComponent) applyParams(params map[string]float64, targets map[string]*float64) error {
	var errs simerr.List
	for key, v := range params {
		p, ok := targets[strings.ToLower(key)]
		if !ok {
			errs.Addf(simerr.ErrConfig, "%s %s: unknown parameter %q", c.Type, c.Tag, key)
			continue
		}
		*p = v
	}
	return errs.Err()
}

func requirePositive(c *BaseComponent, name string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s %s: %s must be positive, got %g", simerr.ErrConfig, c.Type, c.Tag, name, v)
	}
	return nil
}

func requireNonNegative(c *BaseComponent, name string, v float64) error {
	if v < 0 {
		return fmt.Errorf("%w: %s %s: %s must not be negative, got %g", simerr.ErrConfig, c.Type, c.Tag, name, v)
	}
	return nil
}

// New creates a component of the given kind with default parameters.
func New(kind, tag string, pos topology.Position) (Component, error) {
	switch kind {
	case TypeResistor:
		return NewResistor(tag, pos, 100), nil
	case TypeInductor:
		return NewInductor(tag, pos, 1e-3), nil
	case TypeCapacitor:
		return NewCapacitor(tag, pos, 10e-6), nil
	case TypeVoltageSource:
		return NewVoltageSource(tag, pos, 120, 60, 0, 0), nil
	case TypeCurrentSource:
		return NewCurrentSource(tag, pos, 5, 60, 0, 0), nil
	case TypeControlledVoltageSource:
		return NewControlledVoltageSource(tag, pos), nil
	case TypeAmmeter:
		return NewAmmeter(tag, pos), nil
	case TypeVoltmeter:
		return NewVoltmeter(tag, pos, 120), nil
	case TypeDiode:
		return NewDiode(tag, pos, 120), nil
	case TypeSwitch:
		return NewSwitch(tag, pos, 120), nil
	case TypeThyristor:
		return NewThyristor(tag, pos, 120), nil
	case TypeVariableResistor:
		return NewVariableResistor(tag, pos, 100), nil
	case TypeVariableInductor:
		return NewVariableInductor(tag, pos, 1e-3), nil
	}
	return nil, fmt.Errorf("%w: unknown component kind %q (%s)", simerr.ErrTopology, kind, tag)
}
