package device

import "github.com/edp1096/ppe-sim/pkg/topology"

// Ammeter reads the current flowing towards its polarity cell.
type Ammeter struct {
	BaseComponent
	reading float64
}

func NewAmmeter(tag string, pos topology.Position) *Ammeter {
	return &Ammeter{BaseComponent: newBase(TypeAmmeter, tag, pos)}
}

func (a *Ammeter) SetParams(params map[string]float64) error {
	return a.applyParams(params, nil)
}

func (a *Ammeter) NeedsPolarity() bool { return true }
func (a *Ammeter) Reading() float64    { return a.reading }

func (a *Ammeter) UpdateVal(p *BranchParam, h float64) Event {
	a.reading = a.sign(false) * p.Current
	return NoEvent
}

// Voltmeter is a large resistance rated for Level volts at 1 uA. The polarity cell
// marks the positive terminal.
type Voltmeter struct {
	BaseComponent
	Level   float64
	reading float64
}

func NewVoltmeter(tag string, pos topology.Position, level float64) *Voltmeter {
	return &Voltmeter{
		BaseComponent: newBase(TypeVoltmeter, tag, pos),
		Level:         level,
	}
}

func (v *Voltmeter) SetParams(params map[string]float64) error {
	if err := v.applyParams(params, map[string]*float64{"level": &v.Level}); err != nil {
		return err
	}
	return requirePositive(&v.BaseComponent, "level", v.Level)
}

func (v *Voltmeter) NeedsPolarity() bool  { return true }
func (v *Voltmeter) Reading() float64     { return v.reading }
func (v *Voltmeter) Resistance() float64  { return v.Level / leakage }
func (v *Voltmeter) Stamp(p *BranchParam) { p.R += v.Resistance() }

func (v *Voltmeter) UpdateVal(p *BranchParam, h float64) Event {
	v.reading = v.Resistance() * v.sign(true) * p.Current
	return NoEvent
}
