package netlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/config"
	"github.com/edp1096/ppe-sim/pkg/control"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

// mainParam names the parameter a positional element value sets.
var mainParam = map[string]string{
	device.TypeResistor:                "resistance",
	device.TypeVariableResistor:        "resistance",
	device.TypeInductor:                "inductance",
	device.TypeVariableInductor:        "inductance",
	device.TypeCapacitor:               "capacitance",
	device.TypeVoltageSource:           "offset",
	device.TypeCurrentSource:           "offset",
	device.TypeControlledVoltageSource: "voltage",
	device.TypeVoltmeter:               "level",
	device.TypeDiode:                   "level",
	device.TypeSwitch:                  "level",
	device.TypeThyristor:               "level",
}

var kinds = []string{
	device.TypeResistor, device.TypeInductor, device.TypeCapacitor,
	device.TypeVoltageSource, device.TypeCurrentSource, device.TypeControlledVoltageSource,
	device.TypeAmmeter, device.TypeVoltmeter,
	device.TypeDiode, device.TypeSwitch, device.TypeThyristor,
	device.TypeVariableResistor, device.TypeVariableInductor,
}

// canonicalKind maps a kind name in any letter case to its device type.
func canonicalKind(kind string) string {
	for _, k := range kinds {
		if strings.EqualFold(k, kind) {
			return k
		}
	}
	return kind
}

// CreateComponent builds the component of a grid cell. A zero Element gives defaults.
func CreateComponent(elem Element, pos topology.Position) (device.Component, error) {
	comp, err := device.New(elem.Kind, elem.Tag, pos)
	if err != nil {
		return nil, err
	}

	params := make(map[string]float64, len(elem.Params)+1)
	for k, v := range elem.Params {
		params[k] = v
	}
	if elem.Value != nil {
		name, ok := mainParam[elem.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s %s takes no value", simerr.ErrConfig, elem.Kind, elem.Tag)
		}
		params[name] = *elem.Value
		// a bare source value is a DC level
		if name == "offset" {
			if _, ok := params["peak"]; !ok {
				params["peak"] = 0
			}
		}
	}
	if len(params) > 0 {
		if err := comp.SetParams(params); err != nil {
			return nil, err
		}
	}

	if elem.Polarity != "" {
		p, err := topology.ParsePosition(elem.Polarity)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", simerr.ErrConfig, elem.Kind, elem.Tag, err)
		}
		comp.SetPolarity(p)
	}
	return comp, nil
}

// Circuit extracts the grid and binds one component per component cell.
func (d *NetlistData) Circuit() (*circuit.Circuit, error) {
	grid := topology.NewGrid(d.Rows)
	topo, err := topology.Extract(grid)
	if err != nil {
		return nil, err
	}

	byTag := make(map[string]Element, len(d.Elements))
	for _, e := range d.Elements {
		byTag[e.Tag] = e
	}

	var errs simerr.List
	var comps []device.Component
	placed := make(map[string]bool)
	grid.Each(func(p topology.Position, token string) {
		if token == topology.Wire {
			return
		}
		kind, tag, ok := topology.SplitToken(token)
		if !ok {
			errs.Addf(simerr.ErrTopology, "cell %s: invalid token %q", p, token)
			return
		}
		kind = canonicalKind(kind)

		placed[tag] = true
		elem, given := byTag[tag]
		if !given {
			elem = Element{Kind: kind, Tag: tag}
		} else if elem.Kind != kind {
			errs.Addf(simerr.ErrConfig, "element %s is a %s but the grid holds a %s", tag, elem.Kind, kind)
			return
		}

		comp, err := CreateComponent(elem, p)
		if err != nil {
			errs.Add(fmt.Errorf("cell %s: %w", p, err))
			return
		}
		comps = append(comps, comp)
	})
	for _, e := range d.Elements {
		if !placed[e.Tag] {
			errs.Addf(simerr.ErrConfig, "element %s is not on the grid", e.Tag)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	return circuit.New(d.Title, topo, comps)
}

// Config applies the .tran, .slice and .options settings on top of base.
func (d *NetlistData) Config(base *config.Config) (*config.Config, error) {
	cfg := *base
	if d.TranParam.TStep > 0 {
		cfg.TimeStep = d.TranParam.TStep
	}
	if d.TranParam.TStop > 0 {
		cfg.TimeLimit = d.TranParam.TStop
	}
	if d.TranParam.TData > 0 {
		cfg.DataStep = d.TranParam.TData
	}
	if d.Slice > 1 {
		cfg.OutputSlice = true
		cfg.DivNumber = d.Slice
	}

	var errs simerr.List
	for k, v := range d.Options {
		switch k {
		case "integrator":
			cfg.Integrator = strings.ToLower(v)
		case "prefix":
			cfg.Prefix = v
		case "freewheel":
			n, err := strconv.Atoi(v)
			if err != nil {
				errs.Addf(simerr.ErrConfig, "option freewheel: %v", err)
				continue
			}
			cfg.MaxFreewheel = n
		default:
			errs.Addf(simerr.ErrConfig, "unknown option %q", k)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Registry registers the .control callbacks in netlist order.
func (d *NetlistData) Registry() (*control.Registry, error) {
	reg := control.NewRegistry()
	if err := control.RegisterSpecs(reg, d.Controls); err != nil {
		return nil, err
	}
	return reg, nil
}
