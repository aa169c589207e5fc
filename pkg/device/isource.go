package device

import (
	"math"

	"github.com/edp1096/ppe-sim/pkg/topology"
)

// CurrentSource is a voltage source behind a fixed series resistance whose voltage is
// corrected after every step so that the branch carries the desired current.
type CurrentSource struct {
	BaseComponent
	Peak      float64
	Frequency float64
	Phase     float64
	Offset    float64
	Series    float64

	desired float64
	voltage float64
}

func NewCurrentSource(tag string, pos topology.Position, peak, freq, phase, offset float64) *CurrentSource {
	return &CurrentSource{
		BaseComponent: newBase(TypeCurrentSource, tag, pos),
		Peak:          peak,
		Frequency:     freq,
		Phase:         phase,
		Offset:        offset,
		Series:        1,
	}
}

func (s *CurrentSource) SetParams(params map[string]float64) error {
	err := s.applyParams(params, map[string]*float64{
		"peak":      &s.Peak,
		"frequency": &s.Frequency,
		"phase":     &s.Phase,
		"offset":    &s.Offset,
	})
	if err != nil {
		return err
	}
	return requireNonNegative(&s.BaseComponent, "frequency", s.Frequency)
}

func (s *CurrentSource) NeedsPolarity() bool { return true }
func (s *CurrentSource) SourceCount() int    { return 1 }

func (s *CurrentSource) coeff() float64 { return -s.sign(true) }

func (s *CurrentSource) Stamp(p *BranchParam) {
	p.R += s.Series
	p.Coeff[s.column] += s.coeff()
}

func (s *CurrentSource) At(t float64) float64 {
	return s.Peak*math.Sin(2*math.Pi*s.Frequency*t+s.Phase*math.Pi/180) + s.Offset
}

func (s *CurrentSource) GenerateVal(t float64, u []float64) {
	s.desired = s.At(t)
	u[s.column] = s.voltage
}

func (s *CurrentSource) UpdateVal(p *BranchParam, h float64) Event {
	actual := s.coeff() * p.Current
	s.voltage += (s.desired - actual) * s.Series
	return NoEvent
}
