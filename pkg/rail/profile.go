package rail

import (
	"fmt"
	"sort"
)

// Profile is a complete set of rail voltages in millivolts. It is a value
// type so every copy is an independent snapshot.
type Profile struct {
	CPU int `json:"vdd-cpu" yaml:"vdd-cpu"`
	GPU int `json:"vdd-gpu" yaml:"vdd-gpu"`
	MEM int `json:"vdd-mem" yaml:"vdd-mem"`
}

// Get returns the millivolt value for a rail.
func (p Profile) Get(id ID) int {
	switch id {
	case CPU:
		return p.CPU
	case GPU:
		return p.GPU
	case MEM:
		return p.MEM
	}
	return 0
}

// With returns a copy of p with one rail replaced.
func (p Profile) With(id ID, mv int) Profile {
	switch id {
	case CPU:
		p.CPU = mv
	case GPU:
		p.GPU = mv
	case MEM:
		p.MEM = mv
	}
	return p
}

// Clamp returns a copy of p with every rail limited to its safe range.
// Externally sourced profiles must pass through Clamp before being applied.
func (p Profile) Clamp() Profile {
	for _, id := range All {
		p = p.With(id, SafeRange(id).Clamp(p.Get(id)))
	}
	return p
}

// Validate reports the first rail outside its safe range.
func (p Profile) Validate() error {
	for _, id := range All {
		if mv := p.Get(id); !SafeRange(id).Contains(mv) {
			r := SafeRange(id)
			return fmt.Errorf("%s = %d mV outside [%d, %d]", id.DisplayName(), mv, r.Min, r.Max)
		}
	}
	return nil
}

// Preset names.
const (
	PresetDefault     = "default"
	PresetPowerSaver  = "powerSaver"
	PresetPerformance = "performance"
)

var presets = map[string]Profile{
	PresetDefault:     {CPU: 1100, GPU: 950, MEM: 1200},
	PresetPowerSaver:  {CPU: 850, GPU: 800, MEM: 1100},
	PresetPerformance: {CPU: 1400, GPU: 1350, MEM: 1500},
}

// Default returns the default profile.
func Default() Profile {
	return presets[PresetDefault]
}

// Preset looks up a named preset.
func Preset(name string) (Profile, error) {
	p, ok := presets[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
