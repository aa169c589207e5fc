package device

import (
	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

const leakage = consts.LeakageCurrent

// switching is the piecewise linear on/off resistance shared by diodes, switches and
// thyristors. The off resistance passes the leakage current at the rated level.
type switching struct {
	Level  float64
	ROn    float64
	Status Status
}

func (s *switching) ROff() float64 { return s.Level / leakage }

func (s *switching) Resistance() float64 {
	if s.Status == On {
		return s.ROn
	}
	return s.ROff()
}

func (s *switching) GetStatus() Status   { return s.Status }
func (s *switching) SetStatus(st Status) { s.Status = st }

// forwardBiased reports whether the device current i would develop more than the
// turn-on threshold across the present resistance.
func (s *switching) forwardBiased(i float64) bool {
	return i*s.Resistance() > consts.ForwardThreshold
}

func (s *switching) params(c *BaseComponent, params map[string]float64) error {
	err := c.applyParams(params, map[string]*float64{
		"level": &s.Level,
		"ron":   &s.ROn,
	})
	if err != nil {
		return err
	}
	if err := requirePositive(c, "level", s.Level); err != nil {
		return err
	}
	return requirePositive(c, "ron", s.ROn)
}

// Diode conducts from its anode towards the polarity (cathode) cell.
type Diode struct {
	BaseComponent
	switching
}

func NewDiode(tag string, pos topology.Position, level float64) *Diode {
	return &Diode{
		BaseComponent: newBase(TypeDiode, tag, pos),
		switching:     switching{Level: level, ROn: 0.01, Status: Off},
	}
}

func (d *Diode) SetParams(params map[string]float64) error {
	return d.params(&d.BaseComponent, params)
}

func (d *Diode) NeedsPolarity() bool { return true }

func (d *Diode) dir() float64 { return d.sign(false) }

func (d *Diode) Stamp(p *BranchParam) {
	p.R += d.Resistance()
}

func (d *Diode) UpdateVal(p *BranchParam, h float64) Event {
	i := d.dir() * p.Current
	if d.Status == Off && d.forwardBiased(i) {
		d.Status = On
		return HardEvent
	}
	if d.Status == On && i < 0 {
		d.Status = Off
		return SoftEvent
	}
	return NoEvent
}

func (d *Diode) PreDetermineState(p *BranchParam) Event {
	return d.DetermineState(p)
}

func (d *Diode) DetermineState(p *BranchParam) Event {
	i := d.dir() * p.Current
	if d.Status == Off && d.forwardBiased(i) {
		d.Status = On
		return SoftEvent
	}
	if d.Status == On && i < 0 {
		d.Status = Off
		return SoftEvent
	}
	return NoEvent
}
