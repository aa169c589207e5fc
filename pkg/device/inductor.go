package device

import "github.com/edp1096/ppe-sim/pkg/topology"

type Inductor struct {
	BaseComponent
	Inductance float64
}

func NewInductor(tag string, pos topology.Position, value float64) *Inductor {
	return &Inductor{
		BaseComponent: newBase(TypeInductor, tag, pos),
		Inductance:    value,
	}
}

func (l *Inductor) SetParams(params map[string]float64) error {
	if err := l.applyParams(params, map[string]*float64{"inductance": &l.Inductance}); err != nil {
		return err
	}
	return requireNonNegative(&l.BaseComponent, "inductance", l.Inductance)
}

func (l *Inductor) Stamp(p *BranchParam) {
	p.L += l.Inductance
}

type VariableInductor struct {
	BaseComponent
	Inductance float64
	stamped    float64
}

func NewVariableInductor(tag string, pos topology.Position, value float64) *VariableInductor {
	return &VariableInductor{
		BaseComponent: newBase(TypeVariableInductor, tag, pos),
		Inductance:    value,
		stamped:       value,
	}
}

func (l *VariableInductor) SetParams(params map[string]float64) error {
	if err := l.applyParams(params, map[string]*float64{"inductance": &l.Inductance}); err != nil {
		return err
	}
	l.stamped = l.Inductance
	return requireNonNegative(&l.BaseComponent, "inductance", l.Inductance)
}

func (l *VariableInductor) Stamp(p *BranchParam) {
	l.stamped = l.Inductance
	p.L += l.Inductance
}

func (l *VariableInductor) GetControl() float64 { return l.Inductance }

func (l *VariableInductor) SetControl(v float64) {
	if v >= 0 {
		l.Inductance = v
	}
}

func (l *VariableInductor) UpdateVal(p *BranchParam, h float64) Event {
	if l.Inductance != l.stamped {
		return HardEvent
	}
	return NoEvent
}
