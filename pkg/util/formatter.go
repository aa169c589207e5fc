package util

import (
	"fmt"
	"math"
)

var siPrefixes = []struct {
	scale  float64
	symbol string
}{
	{1e6, "M"},
	{1e3, "k"},
	{1, ""},
	{1e-3, "m"},
	{1e-6, "u"},
	{1e-9, "n"},
	{1e-12, "p"},
}

// FormatValueFactor prints value with an SI prefix and three decimals.
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	if absValue == 0 {
		return fmt.Sprintf("%.3f %s", 0.0, unit)
	}
	for _, p := range siPrefixes {
		if absValue >= p.scale {
			return fmt.Sprintf("%.3f %s%s", value/p.scale, p.symbol, unit)
		}
	}
	return fmt.Sprintf("%.3e %s", value, unit)
}

// FormatDuty prints a control ratio in percent.
func FormatDuty(d float64) string {
	return fmt.Sprintf("%5.1f %%", 100*d)
}
