package analysis

import (
	"log"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/circuit"
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute() error
	GetResults() map[string][]float64
}

type BaseAnalysis struct {
	Circuit *circuit.Circuit
	results map[string][]float64 // key: column name, value: one entry per stored row
	columns []string
	logger  *log.Logger

	convergence struct {
		maxFreewheel int
	}
}

func NewBaseAnalysis() *BaseAnalysis {
	ba := &BaseAnalysis{results: make(map[string][]float64)}
	ba.convergence.maxFreewheel = consts.MaxFreewheel
	return ba
}

// SetLogger installs a progress logger. A nil logger keeps the analysis silent.
func (a *BaseAnalysis) SetLogger(l *log.Logger) {
	a.logger = l
}

func (a *BaseAnalysis) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// StoreTimeResult appends one row under the "TIME" key and the given column names.
func (a *BaseAnalysis) StoreTimeResult(time float64, names []string, values []float64) {
	// Ignore same time
	if ts := a.results["TIME"]; len(ts) > 0 && ts[len(ts)-1] == time {
		return
	}

	a.results["TIME"] = append(a.results["TIME"], time)
	for i, name := range names {
		if _, exists := a.results[name]; !exists {
			a.columns = append(a.columns, name)
		}
		a.results[name] = append(a.results[name], values[i])
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}

// Columns lists the stored column names in first-seen order, without "TIME".
func (a *BaseAnalysis) Columns() []string {
	return a.columns
}

// meterColumns names the meter readings and returns them in meter order.
func meterColumns(ckt *circuit.Circuit) ([]string, []float64) {
	meters := ckt.Meters()
	names := make([]string, len(meters))
	values := make([]float64, len(meters))
	for i, m := range meters {
		names[i] = m.GetTag()
		values[i] = m.Reading()
	}
	return names, values
}
