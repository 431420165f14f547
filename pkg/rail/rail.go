// Package rail defines the PMIC voltage rails, their safe operating ranges,
// and the fixed voltage profile presets.
package rail

import (
	"errors"
	"fmt"
)

// ID identifies one independently controlled voltage output.
type ID string

const (
	CPU ID = "cpu"
	GPU ID = "gpu"
	MEM ID = "mem"
)

// All lists every rail in display order.
var All = []ID{CPU, GPU, MEM}

// ErrUnknownRail is returned when a rail name does not match any rail.
var ErrUnknownRail = errors.New("unknown rail")

// ErrUnknownProfile is returned when a preset name does not match any preset.
var ErrUnknownProfile = errors.New("unknown profile")

// Range is an inclusive millivolt range.
type Range struct {
	Min int
	Max int
}

// Contains reports whether mv lies within the range.
func (r Range) Contains(mv int) bool {
	return mv >= r.Min && mv <= r.Max
}

// Clamp limits mv to the range.
func (r Range) Clamp(mv int) int {
	if mv < r.Min {
		return r.Min
	}
	if mv > r.Max {
		return r.Max
	}
	return mv
}

var safeRanges = map[ID]Range{
	CPU: {Min: 800, Max: 1500},
	GPU: {Min: 800, Max: 1500},
	MEM: {Min: 1100, Max: 1800},
}

// SafeRange returns the safe millivolt range for a rail. The dashboard
// sliders are bounded by the same values.
func SafeRange(id ID) Range {
	return safeRanges[id]
}

// Parse converts a rail name into an ID. It accepts both the short form
// ("cpu") and the wire key form ("vdd-cpu").
func Parse(s string) (ID, error) {
	switch s {
	case "cpu", "vdd-cpu", "VDD_CPU":
		return CPU, nil
	case "gpu", "vdd-gpu", "VDD_GPU":
		return GPU, nil
	case "mem", "vdd-mem", "VDD_MEM":
		return MEM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRail, s)
}

// DisplayName returns the rail label shown to users, e.g. "VDD_CPU".
func (id ID) DisplayName() string {
	switch id {
	case CPU:
		return "VDD_CPU"
	case GPU:
		return "VDD_GPU"
	case MEM:
		return "VDD_MEM"
	default:
		return "Unknown Rail"
	}
}

// FormatVolts renders a millivolt value as volts with three decimals,
// e.g. 1400 -> "1.400 V".
func FormatVolts(mv int) string {
	return fmt.Sprintf("%.3f V", float64(mv)/1000)
}

// Volts converts millivolts to volts.
func Volts(mv int) float64 {
	return float64(mv) / 1000
}
