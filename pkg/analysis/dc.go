package analysis

import (
	"fmt"

	"github.com/edp1096/ppe-sim/pkg/circuit"
	"github.com/edp1096/ppe-sim/pkg/device"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// DCSweep repeats the operating point while stepping the offset of one or two
// voltage sources.
type DCSweep struct {
	BaseAnalysis
	op          *OperatingPoint
	sourceNames []string                // Tags of the voltage sources to sweep
	startVals   []float64               // Start values for each source
	stopVals    []float64               // Stop values for each source
	increments  []float64               // Incremental value of steps for each source
	sweepVals   [][]float64             // Generated sweep values for each source
	origVals    []float64               // Original offsets of the sources
	sources     []*device.VoltageSource // resolved at setup
}

func NewDCSweep(sources []string, starts, stops, increments []float64) (*DCSweep, error) {
	n := len(sources)
	if n == 0 || n > 2 {
		return nil, fmt.Errorf("%w: dc sweep over %d sources", simerr.ErrConfig, n)
	}
	if len(starts) != n || len(stops) != n || len(increments) != n {
		return nil, fmt.Errorf("%w: inconsistent dc sweep parameter lengths", simerr.ErrConfig)
	}

	dc := &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		sourceNames:  sources,
		startVals:    starts,
		stopVals:     stops,
		increments:   increments,
		sweepVals:    make([][]float64, n),
		origVals:     make([]float64, n),
		sources:      make([]*device.VoltageSource, n),
	}

	// Generate sweep values for each source
	for i := range sources {
		if increments[i] <= 0 {
			return nil, fmt.Errorf("%w: dc sweep increment of %s must be positive", simerr.ErrConfig, sources[i])
		}
		steps := int((stops[i]-starts[i])/increments[i] + 1e-9)
		sweep := make([]float64, 0, steps+1)
		for k := 0; k <= steps; k++ {
			sweep = append(sweep, starts[i]+float64(k)*increments[i])
		}
		dc.sweepVals[i] = sweep
	}
	return dc, nil
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	for i, name := range dc.sourceNames {
		v, ok := ckt.Component(name).(*device.VoltageSource)
		if !ok {
			return fmt.Errorf("%w: voltage source %s not found", simerr.ErrConfig, name)
		}
		dc.sources[i] = v
		dc.origVals[i] = v.Offset
	}
	if err := dc.op.Setup(ckt); err != nil {
		return err
	}
	dc.op.logger = dc.logger
	dc.Circuit = ckt
	return nil
}

func (dc *DCSweep) Execute() error {
	if dc.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	defer dc.restore()

	if len(dc.sources) == 1 {
		for _, v := range dc.sweepVals[0] {
			if err := dc.point([]float64{v}); err != nil {
				return err
			}
		}
		return nil
	}

	// Nested sweep, the first source in the outer loop
	for _, v1 := range dc.sweepVals[0] {
		for _, v2 := range dc.sweepVals[1] {
			if err := dc.point([]float64{v1, v2}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (dc *DCSweep) restore() {
	for i, src := range dc.sources {
		src.Offset = dc.origVals[i]
	}
}

// point solves one sweep point and appends it to the results.
func (dc *DCSweep) point(vals []float64) error {
	for i, v := range vals {
		dc.sources[i].Offset = v
	}
	if err := dc.op.solve(0); err != nil {
		return fmt.Errorf("dc sweep at %s=%g: %w", dc.sourceNames[0], vals[0], err)
	}

	names, values := meterColumns(dc.Circuit)
	for i, v := range vals {
		key := fmt.Sprintf("SWEEP%d", i+1)
		dc.results[key] = append(dc.results[key], v)
	}
	for i, name := range names {
		if _, exists := dc.results[name]; !exists {
			dc.columns = append(dc.columns, name)
		}
		dc.results[name] = append(dc.results[name], values[i])
	}
	return nil
}
