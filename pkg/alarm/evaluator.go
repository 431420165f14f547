package alarm

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/pmicdash/pmicdash/pkg/rail"
)

// Input is the data exposed to rule conditions.
type Input struct {
	TemperatureC float64
	CurrentA     float64
	Rails        rail.Profile
}

// Conditions reports which alarm conditions hold for a sample.
type Conditions struct {
	OverTemperature bool
	OverCurrent     bool
}

// Evaluator evaluates samples against a compiled policy. It is safe for
// concurrent use.
type Evaluator struct {
	rules    []Rule
	programs map[string]cel.Program
}

// NewEvaluator compiles every rule in the policy.
func NewEvaluator(policy *Policy) (*Evaluator, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(
		cel.Variable("sample", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(policy.Rules))
	for _, rule := range policy.Rules {
		ast, issues := env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.Name, issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("create program for rule %q: %w", rule.Name, err)
		}
		programs[rule.Name] = program
	}

	rules := make([]Rule, len(policy.Rules))
	copy(rules, policy.Rules)

	return &Evaluator{rules: rules, programs: programs}, nil
}

// Evaluate returns the conditions that hold for in. A rule that fails to
// evaluate counts as not matching; its error is still returned so callers
// can log it.
func (e *Evaluator) Evaluate(in Input) (Conditions, error) {
	activation := map[string]any{
		"sample": map[string]any{
			"temperature_c": in.TemperatureC,
			"current_a":     in.CurrentA,
			"cpu_mv":        int64(in.Rails.CPU),
			"gpu_mv":        int64(in.Rails.GPU),
			"mem_mv":        int64(in.Rails.MEM),
		},
	}

	var (
		out  Conditions
		errs []error
	)
	for _, rule := range e.rules {
		val, _, err := e.programs[rule.Name].Eval(activation)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		if val.Type() != types.BoolType {
			errs = append(errs, fmt.Errorf("rule %q: condition returned %s, want bool", rule.Name, val.Type().TypeName()))
			continue
		}
		if !val.Value().(bool) {
			continue
		}

		switch rule.Flag {
		case FlagOverTemperature:
			out.OverTemperature = true
		case FlagOverCurrent:
			out.OverCurrent = true
		}
	}

	return out, errors.Join(errs...)
}

// Rules returns the compiled rules.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
