package control

import (
	"fmt"
	"math"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// Spec describes one builtin control as written in a netlist.
type Spec struct {
	Kind   string
	Name   string
	Target string // controlled component tag
	Var    string // stored variable read or written by the control
	Values map[string]float64
}

func (s Spec) value(key string, def float64) float64 {
	if v, ok := s.Values[key]; ok {
		return v
	}
	return def
}

// Build creates the callback for a builtin control kind.
func Build(s Spec) (Func, error) {
	switch strings.ToLower(s.Kind) {
	case "pwm":
		return PWM(s)
	case "softstart":
		return SoftStart(s)
	case "constant":
		return Constant(s)
	}
	return nil, fmt.Errorf("%w: builtin %q (%s)", simerr.ErrUnknownControl, s.Kind, s.Name)
}

// RegisterSpecs builds every spec into reg, reporting all failures together.
func RegisterSpecs(reg *Registry, specs []Spec) error {
	var errs simerr.List
	for _, s := range specs {
		fn, err := Build(s)
		if err != nil {
			errs.Add(err)
			continue
		}
		errs.Add(reg.Register(s.Name, fn))
	}
	return errs.Err()
}

func needTarget(s Spec) error {
	if s.Target == "" {
		return fmt.Errorf("%w: control %s needs a target", simerr.ErrConfig, s.Name)
	}
	return nil
}

// PWM compares a sampled sawtooth carrier with a modulation signal and drives the gate of
// its target. The modulation is the stored variable Var when set, else the fixed duty.
// Values: freq (carrier frequency), sample (sampling interval), duty.
func PWM(s Spec) (Func, error) {
	if err := needTarget(s); err != nil {
		return nil, err
	}
	freq := s.value("freq", 10e3)
	sample := s.value("sample", 1e-6)
	duty := s.value("duty", 0.5)
	if freq <= 0 || sample <= 0 {
		return nil, fmt.Errorf("%w: pwm %s: freq and sample must be positive", simerr.ErrConfig, s.Name)
	}
	period := 1 / freq

	return func(ctx *Context) error {
		carrier := ctx.Static["carrier"]
		t1 := ctx.TimeEvents["t1"]
		gate := ctx.Outputs[s.Target]

		if ctx.Time > t1 {
			mod := duty
			if s.Var != "" {
				mod = ctx.Storage[s.Var]
			}
			carrier = math.Mod(carrier+sample/period, 1)
			gate = 0
			if mod > carrier {
				gate = 1
			}
			ctx.Storage[s.Name+"_carrier"] = carrier
			ctx.Storage[s.Name+"_mod"] = mod
			t1 += sample
		}

		if ctx.Outputs[s.Target] != gate {
			ctx.RequestEvent()
		}
		ctx.Outputs[s.Target] = gate
		ctx.Storage[s.Name+"_gate"] = gate
		ctx.Static["carrier"] = carrier
		ctx.TimeEvents["t1"] = t1
		ctx.Wake(t1)
		return nil
	}, nil
}

// SoftStart ramps the stored variable Var by step every periods carrier periods, up to max.
// Values: freq, step, periods, max, start.
func SoftStart(s Spec) (Func, error) {
	if s.Var == "" {
		return nil, fmt.Errorf("%w: softstart %s needs a variable", simerr.ErrConfig, s.Name)
	}
	freq := s.value("freq", 10e3)
	step := s.value("step", 0.01)
	periods := s.value("periods", 4)
	limit := s.value("max", 0.7)
	start := s.value("start", 0)
	if freq <= 0 || periods <= 0 {
		return nil, fmt.Errorf("%w: softstart %s: freq and periods must be positive", simerr.ErrConfig, s.Name)
	}
	interval := periods / freq

	return func(ctx *Context) error {
		mod, ok := ctx.Static["mod"]
		if !ok {
			mod = start
		}
		t1 := ctx.TimeEvents["t1"]

		if ctx.Time > t1 {
			mod = math.Min(mod+step, limit)
			t1 += interval
		}

		ctx.Static["mod"] = mod
		ctx.Storage[s.Var] = mod
		ctx.TimeEvents["t1"] = t1
		ctx.Wake(t1)
		return nil
	}, nil
}

// Constant holds the control value of its target. Values: value.
func Constant(s Spec) (Func, error) {
	if err := needTarget(s); err != nil {
		return nil, err
	}
	v := s.value("value", 0)
	return func(ctx *Context) error {
		if ctx.Outputs[s.Target] != v {
			ctx.Outputs[s.Target] = v
			ctx.RequestEvent()
		}
		return nil
	}, nil
}
