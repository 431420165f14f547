// Package alarm evaluates PMIC alarm conditions against telemetry samples.
// Conditions are CEL expressions so thresholds can be tuned from config
// without code changes.
package alarm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Flag names an alarm output.
type Flag string

const (
	FlagOverTemperature Flag = "overTemperature"
	FlagOverCurrent     Flag = "overCurrent"
)

// Thresholds used by the default policy.
const (
	OverTemperatureC = 85.0
	OverCurrentA     = 8.0
)

// Policy is a set of alarm rules. A flag is raised when any rule targeting
// it matches the sample.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

// Rule defines a single alarm condition.
type Rule struct {
	// Name identifies the rule for logging.
	Name string `yaml:"name"`

	// Flag is the alarm raised when Condition holds.
	Flag Flag `yaml:"flag"`

	// Condition is a CEL expression evaluated against each sample. The
	// expression has access to a 'sample' variable with fields:
	//   - sample.temperature_c (double)
	//   - sample.current_a (double)
	//   - sample.cpu_mv, sample.gpu_mv, sample.mem_mv (int)
	Condition string `yaml:"condition"`
}

// DefaultPolicy trips over-temperature above 85 °C and over-current above 8 A.
func DefaultPolicy() *Policy {
	return &Policy{
		Rules: []Rule{
			{
				Name:      "over-temperature",
				Flag:      FlagOverTemperature,
				Condition: fmt.Sprintf("sample.temperature_c > %.1f", OverTemperatureC),
			},
			{
				Name:      "over-current",
				Flag:      FlagOverCurrent,
				Condition: fmt.Sprintf("sample.current_a > %.1f", OverCurrentA),
			},
		},
	}
}

// LoadPolicy loads an alarm policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses an alarm policy from YAML data.
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy YAML: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}
	return &policy, nil
}

// Validate checks that the policy is well-formed.
func (p *Policy) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy must have at least one rule")
	}

	seen := make(map[string]bool)
	for i, rule := range p.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("rule %q: duplicate name", rule.Name)
		}
		seen[rule.Name] = true

		if rule.Condition == "" {
			return fmt.Errorf("rule %q: condition is required", rule.Name)
		}
		switch rule.Flag {
		case FlagOverTemperature, FlagOverCurrent:
		default:
			return fmt.Errorf("rule %q: invalid flag %q", rule.Name, rule.Flag)
		}
	}
	return nil
}
