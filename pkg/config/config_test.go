package config

import (
	"errors"
	"testing"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	if cfg.Windows() != 1 {
		t.Errorf("windows = %d, expected 1", cfg.Windows())
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.TimeStep = 0
	cfg.DataStep = -1
	cfg.OutputSlice = true
	cfg.DivNumber = 1

	err := cfg.Validate()
	if !errors.Is(err, simerr.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	var list simerr.List
	if !errors.As(err, &list) || len(list) != 3 {
		t.Errorf("expected 3 errors, got %v", err)
	}
}

func TestValidateStepOrder(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		valid bool
	}{
		{"data step below dt", func(c *Config) { c.DataStep = c.TimeStep / 2 }, false},
		{"data step equals dt", func(c *Config) { c.DataStep = c.TimeStep }, true},
		{"dt above limit", func(c *Config) { c.TimeLimit = c.TimeStep / 2 }, false},
		{"euler", func(c *Config) { c.Integrator = "euler" }, true},
		{"unknown integrator", func(c *Config) { c.Integrator = "bdf2" }, false},
		{"sliced", func(c *Config) { c.OutputSlice, c.DivNumber = true, 4 }, true},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.edit(cfg)
		if err := cfg.Validate(); (err == nil) != tt.valid {
			t.Errorf("%s: valid=%v, err=%v", tt.name, tt.valid, err)
		}
	}
}
