// Package envmerge implements the merge engine: ordered composition of
// per-platform set/unset/prepend/append environment operations, with the
// initial-overwrite rule and the PATH/HAB_URI restrictions.
package envmerge

import (
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/formatter"
)

// ErrEnvironmentRuleViolation is raised for a set/unset on PATH, or any
// operation referencing HAB_URI.
type ErrEnvironmentRuleViolation struct {
	Msg string
}

func (e *ErrEnvironmentRuleViolation) Error() string { return e.Msg }

// Ops is one block of operations for a single platform: unset names, then
// set/prepend/append values (each a formattable value, typically a string
// or list of strings prior to formatting).
type Ops struct {
	Unset   []string
	Set     map[string]interface{}
	Prepend map[string]interface{}
	Append  map[string]interface{}
}

// Value is the accumulated state for one variable: Unset marks it for
// removal; otherwise Parts is the hab-composed value. Touched distinguishes "hab has
// written to this variable at least once" from "never touched", which is
// what the initial-overwrite rule keys off of.
type Value struct {
	Parts   []string
	Touched bool
	Unset   bool
}

// Merger accumulates environment state for one platform across an ordered
// sequence of sources (ancestor -> node -> default-fallback -> distros).
type Merger struct {
	vars map[string]*Value
}

// New creates a Merger seeded with no prior state (a ground-up environment).
func New() *Merger {
	return &Merger{vars: map[string]*Value{}}
}

// Seed pre-populates name with v as already-touched state, so a later
// Apply's prepend/append combines with it instead of overwriting it under
// the initial-overwrite rule. Alias environments seed the global
// hab-managed value for any key they or their alias_mods reference.
func (m *Merger) Seed(name string, v *Value) {
	cp := *v
	cp.Touched = true
	m.vars[name] = &cp
}

func checkName(name string) error {
	if name == "HAB_URI" {
		return &ErrEnvironmentRuleViolation{Msg: "HAB_URI is a reserved environment variable name and cannot be referenced in environment_config"}
	}
	return nil
}

// Apply merges one Ops block into the accumulator, in the fixed order
// unset -> set -> prepend -> append, formatting each value against scope
// for target shell before combining.
func (m *Merger) Apply(ops Ops, scope formatter.Scope, target formatter.Shell) error {
	for _, name := range ops.Unset {
		if err := checkName(name); err != nil {
			return err
		}
		if name == "PATH" {
			return &ErrEnvironmentRuleViolation{Msg: "PATH cannot be unset"}
		}
		m.vars[name] = &Value{Unset: true, Touched: true}
	}

	for name, raw := range ops.Set {
		if err := checkName(name); err != nil {
			return err
		}
		if name == "PATH" {
			return &ErrEnvironmentRuleViolation{Msg: "PATH cannot be set directly; use prepend/append"}
		}
		parts, err := formatParts(raw, scope, target)
		if err != nil {
			return err
		}
		m.vars[name] = &Value{Parts: parts, Touched: true}
	}

	for name, raw := range ops.Prepend {
		if err := checkName(name); err != nil {
			return err
		}
		parts, err := formatParts(raw, scope, target)
		if err != nil {
			return err
		}
		cur, ok := m.vars[name]
		if !ok || !cur.Touched || cur.Unset {
			m.vars[name] = &Value{Parts: parts, Touched: true}
			continue
		}
		cur.Parts = append(append([]string{}, parts...), cur.Parts...)
	}

	for name, raw := range ops.Append {
		if err := checkName(name); err != nil {
			return err
		}
		parts, err := formatParts(raw, scope, target)
		if err != nil {
			return err
		}
		cur, ok := m.vars[name]
		if !ok || !cur.Touched || cur.Unset {
			m.vars[name] = &Value{Parts: parts, Touched: true}
			continue
		}
		cur.Parts = append(cur.Parts, parts...)
	}

	return nil
}

func formatParts(raw interface{}, scope formatter.Scope, target formatter.Shell) ([]string, error) {
	formatted, err := formatter.Format(raw, scope, target, false)
	if err != nil {
		return nil, err
	}
	switch v := formatted.(type) {
	case []interface{}:
		out := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Errorf("environment value element is not a string: %v", e)
			}
			out[i] = s
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, errors.Errorf("environment value must be a string or list of strings, got %T", raw)
	}
}

// Result is the final per-variable view: Unset true means the variable
// should be removed from any inherited environment; otherwise Parts holds
// the composed value list.
type Result map[string]*Value

// Finalize returns the accumulated state.
func (m *Merger) Finalize() Result {
	return Result(m.vars)
}
