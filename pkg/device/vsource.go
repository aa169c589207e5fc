package device

import (
	"math"

	"github.com/edp1096/ppe-sim/pkg/topology"
)

// VoltageSource produces peak*sin(2*pi*f*t + phase) + offset. The phase is in degrees.
type VoltageSource struct {
	BaseComponent
	Peak      float64
	Frequency float64
	Phase     float64
	Offset    float64
	Value     float64
}

func NewVoltageSource(tag string, pos topology.Position, peak, freq, phase, offset float64) *VoltageSource {
	return &VoltageSource{
		BaseComponent: newBase(TypeVoltageSource, tag, pos),
		Peak:          peak,
		Frequency:     freq,
		Phase:         phase,
		Offset:        offset,
	}
}

func NewDCVoltageSource(tag string, pos topology.Position, value float64) *VoltageSource {
	return NewVoltageSource(tag, pos, 0, 0, 0, value)
}

func (v *VoltageSource) SetParams(params map[string]float64) error {
	err := v.applyParams(params, map[string]*float64{
		"peak":      &v.Peak,
		"frequency": &v.Frequency,
		"phase":     &v.Phase,
		"offset":    &v.Offset,
	})
	if err != nil {
		return err
	}
	return requireNonNegative(&v.BaseComponent, "frequency", v.Frequency)
}

func (v *VoltageSource) NeedsPolarity() bool { return true }
func (v *VoltageSource) SourceCount() int    { return 1 }

// coeff is the sign of the source voltage in the forward branch direction.
func (v *VoltageSource) coeff() float64 { return -v.sign(true) }

func (v *VoltageSource) Stamp(p *BranchParam) {
	p.Coeff[v.column] += v.coeff()
}

func (v *VoltageSource) At(t float64) float64 {
	return v.Peak*math.Sin(2*math.Pi*v.Frequency*t+v.Phase*math.Pi/180) + v.Offset
}

func (v *VoltageSource) GenerateVal(t float64, u []float64) {
	v.Value = v.At(t)
	u[v.column] = v.Value
}

// ControlledVoltageSource outputs the voltage written by a control callback.
type ControlledVoltageSource struct {
	BaseComponent
	Voltage float64
}

func NewControlledVoltageSource(tag string, pos topology.Position) *ControlledVoltageSource {
	return &ControlledVoltageSource{BaseComponent: newBase(TypeControlledVoltageSource, tag, pos)}
}

func (v *ControlledVoltageSource) SetParams(params map[string]float64) error {
	return v.applyParams(params, map[string]*float64{"voltage": &v.Voltage})
}

func (v *ControlledVoltageSource) NeedsPolarity() bool { return true }
func (v *ControlledVoltageSource) SourceCount() int    { return 1 }

func (v *ControlledVoltageSource) Stamp(p *BranchParam) {
	p.Coeff[v.column] -= v.sign(true)
}

func (v *ControlledVoltageSource) GenerateVal(t float64, u []float64) {
	u[v.column] = v.Voltage
}

func (v *ControlledVoltageSource) GetControl() float64  { return v.Voltage }
func (v *ControlledVoltageSource) SetControl(x float64) { v.Voltage = x }
