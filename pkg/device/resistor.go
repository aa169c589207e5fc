package device

import "github.com/edp1096/ppe-sim/pkg/topology"

type Resistor struct {
	BaseComponent
	Resistance float64
}

func NewResistor(tag string, pos topology.Position, value float64) *Resistor {
	return &Resistor{
		BaseComponent: newBase(TypeResistor, tag, pos),
		Resistance:    value,
	}
}

func (r *Resistor) SetParams(params map[string]float64) error {
	if err := r.applyParams(params, map[string]*float64{"resistance": &r.Resistance}); err != nil {
		return err
	}
	return requireNonNegative(&r.BaseComponent, "resistance", r.Resistance)
}

func (r *Resistor) Stamp(p *BranchParam) {
	p.R += r.Resistance
}

// VariableResistor takes its resistance from a control callback. A changed value
// alters the system matrices, so it is reported as a hard event.
type VariableResistor struct {
	BaseComponent
	Resistance float64
	stamped    float64
}

func NewVariableResistor(tag string, pos topology.Position, value float64) *VariableResistor {
	return &VariableResistor{
		BaseComponent: newBase(TypeVariableResistor, tag, pos),
		Resistance:    value,
		stamped:       value,
	}
}

func (r *VariableResistor) SetParams(params map[string]float64) error {
	if err := r.applyParams(params, map[string]*float64{"resistance": &r.Resistance}); err != nil {
		return err
	}
	r.stamped = r.Resistance
	return requireNonNegative(&r.BaseComponent, "resistance", r.Resistance)
}

func (r *VariableResistor) Stamp(p *BranchParam) {
	r.stamped = r.Resistance
	p.R += r.Resistance
}

func (r *VariableResistor) GetControl() float64 { return r.Resistance }

func (r *VariableResistor) SetControl(v float64) {
	if v >= 0 {
		r.Resistance = v
	}
}

func (r *VariableResistor) UpdateVal(p *BranchParam, h float64) Event {
	if r.Resistance != r.stamped {
		return HardEvent
	}
	return NoEvent
}
