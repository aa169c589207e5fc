package config

import (
	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/simerr"
)

// Config holds the numeric settings of one transient run.
type Config struct {
	TimeLimit    float64 // simulated time span [s]
	TimeStep     float64 // integration step dt [s]
	DataStep     float64 // storage interval [s]
	OutputSlice  bool    // split output into DivNumber windows
	DivNumber    int
	OutputDir    string
	Prefix       string
	MaxFreewheel int    // device state iteration cap
	Integrator   string // "rk4" or "euler"
}

func Default() *Config {
	return &Config{
		TimeLimit:    0.1,
		TimeStep:     1e-6,
		DataStep:     1e-5,
		DivNumber:    1,
		OutputDir:    ".",
		Prefix:       "ckt_output",
		MaxFreewheel: consts.MaxFreewheel,
		Integrator:   "rk4",
	}
}

// Windows is the number of output files the run produces.
func (c *Config) Windows() int {
	if c.OutputSlice && c.DivNumber > 1 {
		return c.DivNumber
	}
	return 1
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs simerr.List

	if c.TimeStep <= 0 {
		errs.Addf(simerr.ErrConfig, "time step must be positive, got %g", c.TimeStep)
	}
	if c.DataStep <= 0 {
		errs.Addf(simerr.ErrConfig, "data storage step must be positive, got %g", c.DataStep)
	} else if c.TimeStep > 0 && c.DataStep < c.TimeStep {
		errs.Addf(simerr.ErrConfig, "data storage step %g is shorter than the time step %g", c.DataStep, c.TimeStep)
	}
	if c.TimeLimit <= 0 {
		errs.Addf(simerr.ErrConfig, "time limit must be positive, got %g", c.TimeLimit)
	} else if c.TimeStep > c.TimeLimit {
		errs.Addf(simerr.ErrConfig, "time step %g exceeds the time limit %g", c.TimeStep, c.TimeLimit)
	}
	if c.OutputSlice && c.DivNumber < 2 {
		errs.Addf(simerr.ErrConfig, "output slicing needs at least 2 windows, got %d", c.DivNumber)
	}
	if c.MaxFreewheel < 1 {
		errs.Addf(simerr.ErrConfig, "freewheel cap must be at least 1, got %d", c.MaxFreewheel)
	}
	switch c.Integrator {
	case "", "rk4", "euler":
	default:
		errs.Addf(simerr.ErrConfig, "unknown integrator %q", c.Integrator)
	}
	return errs.Err()
}
