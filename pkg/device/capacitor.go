package device

import "github.com/edp1096/ppe-sim/pkg/topology"

// Capacitor is modelled as a voltage source whose value integrates the branch current.
type Capacitor struct {
	BaseComponent
	Capacitance float64
	Voltage     float64
}

func NewCapacitor(tag string, pos topology.Position, value float64) *Capacitor {
	return &Capacitor{
		BaseComponent: newBase(TypeCapacitor, tag, pos),
		Capacitance:   value,
	}
}

func (c *Capacitor) SetParams(params map[string]float64) error {
	err := c.applyParams(params, map[string]*float64{
		"capacitance": &c.Capacitance,
		"voltage":     &c.Voltage,
	})
	if err != nil {
		return err
	}
	return requirePositive(&c.BaseComponent, "capacitance", c.Capacitance)
}

func (c *Capacitor) NeedsPolarity() bool { return true }
func (c *Capacitor) SourceCount() int    { return 1 }

// dir is +1 when forward branch current enters the positive plate.
func (c *Capacitor) dir() float64 { return c.sign(true) }

func (c *Capacitor) Stamp(p *BranchParam) {
	p.Coeff[c.column] -= c.dir()
}

func (c *Capacitor) GenerateVal(t float64, u []float64) {
	u[c.column] = c.Voltage
}

func (c *Capacitor) UpdateVal(p *BranchParam, h float64) Event {
	c.Voltage += c.dir() * p.Current * h / c.Capacitance
	return NoEvent
}
