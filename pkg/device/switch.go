package device

import "github.com/edp1096/ppe-sim/pkg/topology"

// Switch is a gated device. It turns on when gated with forward voltage across it and
// turns off on reverse current or when the gate drops to zero.
type Switch struct {
	BaseComponent
	switching
	Gate float64
}

func NewSwitch(tag string, pos topology.Position, level float64) *Switch {
	return &Switch{
		BaseComponent: newBase(TypeSwitch, tag, pos),
		switching:     switching{Level: level, ROn: 0.01, Status: Off},
	}
}

func (s *Switch) SetParams(params map[string]float64) error {
	return s.params(&s.BaseComponent, params)
}

func (s *Switch) NeedsPolarity() bool  { return true }
func (s *Switch) GetControl() float64  { return s.Gate }
func (s *Switch) SetControl(v float64) { s.Gate = v }

func (s *Switch) dir() float64 { return s.sign(false) }

func (s *Switch) Stamp(p *BranchParam) {
	p.R += s.Resistance()
}

func (s *Switch) gated(i float64) Event {
	ev := NoEvent
	if s.Status == Off && s.Gate >= 1 && s.forwardBiased(i) {
		s.Status = On
		ev = HardEvent
	}
	if s.Status == On && i < 0 {
		s.Status = Off
		ev = MaxEvent(ev, SoftEvent)
	}
	if s.Status == On && s.Gate == 0 {
		s.Status = Off
		ev = HardEvent
	}
	return ev
}

func (s *Switch) UpdateVal(p *BranchParam, h float64) Event {
	return s.gated(s.dir() * p.Current)
}

func (s *Switch) PreDetermineState(p *BranchParam) Event {
	return s.gated(s.dir() * p.Current)
}

func (s *Switch) DetermineState(p *BranchParam) Event {
	if s.Status == On && s.dir()*p.Current < 0 {
		s.Status = Off
		return SoftEvent
	}
	return NoEvent
}

// Thyristor latches on when gated with forward voltage. Only reverse current turns it off.
type Thyristor struct {
	BaseComponent
	switching
	Gate float64
}

func NewThyristor(tag string, pos topology.Position, level float64) *Thyristor {
	return &Thyristor{
		BaseComponent: newBase(TypeThyristor, tag, pos),
		switching:     switching{Level: level, ROn: 0.01, Status: Off},
	}
}

func (t *Thyristor) SetParams(params map[string]float64) error {
	return t.params(&t.BaseComponent, params)
}

func (t *Thyristor) NeedsPolarity() bool  { return true }
func (t *Thyristor) GetControl() float64  { return t.Gate }
func (t *Thyristor) SetControl(v float64) { t.Gate = v }

func (t *Thyristor) dir() float64 { return t.sign(false) }

func (t *Thyristor) Stamp(p *BranchParam) {
	p.R += t.Resistance()
}

// latched fires a gated, forward biased thyristor and releases it on reverse current.
// There is no gate-off branch.
func (t *Thyristor) latched(i float64) Event {
	if t.Status == Off && t.Gate >= 1 && t.forwardBiased(i) {
		t.Status = On
		return HardEvent
	}
	if t.Status == On && i < 0 {
		t.Status = Off
		return SoftEvent
	}
	return NoEvent
}

func (t *Thyristor) UpdateVal(p *BranchParam, h float64) Event {
	return t.latched(t.dir() * p.Current)
}

func (t *Thyristor) PreDetermineState(p *BranchParam) Event {
	return t.latched(t.dir() * p.Current)
}

func (t *Thyristor) DetermineState(p *BranchParam) Event {
	if t.Status == On && t.dir()*p.Current < 0 {
		t.Status = Off
		return SoftEvent
	}
	return NoEvent
}
