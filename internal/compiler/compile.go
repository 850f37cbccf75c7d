package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nsboot/internal/ir"
)

// CompileTopology parses a CUE value into a Topology.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value must be the root of a topology definition:
//
//	name: "monad"
//	components: [{kind: "registry", artifact: "ENSRegistry"}, ...]
//	policy: [{id: "tld", action: "set-subnode-owner", target: "registry", args: [...]}]
//
// Lists are used rather than structs so declaration order survives
// evaluation. Kinds, actions, and literal formats are checked later by
// Validate; CompileTopology only rejects values of the wrong CUE type.
func CompileTopology(v cue.Value) (*ir.Topology, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &ir.Topology{}
	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.Name = name
	}

	compsVal := v.LookupPath(cue.ParsePath("components"))
	if !compsVal.Exists() {
		return nil, &CompileError{
			Field:   "components",
			Message: "components list is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := compsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		comp, err := compileComponent(iter.Value(), fmt.Sprintf("components[%d]", i))
		if err != nil {
			return nil, err
		}
		t.Components = append(t.Components, comp)
	}

	if policyVal := v.LookupPath(cue.ParsePath("policy")); policyVal.Exists() {
		iter, err := policyVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			step, err := compileStep(iter.Value(), fmt.Sprintf("policy[%d]", i), "")
			if err != nil {
				return nil, err
			}
			t.Policy = append(t.Policy, step)
		}
	}

	return t, nil
}

func compileComponent(v cue.Value, field string) (ir.ComponentDescriptor, error) {
	var d ir.ComponentDescriptor

	kind, err := requiredString(v, "kind", field)
	if err != nil {
		return d, err
	}
	d.Kind = ir.ComponentKind(kind)

	d.Artifact, err = requiredString(v, "artifact", field)
	if err != nil {
		return d, err
	}

	d.Args, err = compileArgs(v, field)
	if err != nil {
		return d, err
	}

	if setupVal := v.LookupPath(cue.ParsePath("setup")); setupVal.Exists() {
		iter, err := setupVal.List()
		if err != nil {
			return d, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			step, err := compileStep(iter.Value(), fmt.Sprintf("%s.setup[%d]", field, i), d.Kind)
			if err != nil {
				return d, err
			}
			d.Setup = append(d.Setup, step)
		}
	}

	return d, nil
}

// compileStep parses a wiring step. Setup steps pass their component as
// defaultTarget; policy steps must name a target.
func compileStep(v cue.Value, field string, defaultTarget ir.ComponentKind) (ir.WiringStep, error) {
	s := ir.WiringStep{Enabled: true}

	id, err := requiredString(v, "id", field)
	if err != nil {
		return s, err
	}
	s.ID = id

	action, err := requiredString(v, "action", field)
	if err != nil {
		return s, err
	}
	s.Action = ir.StepAction(action)

	s.Target = defaultTarget
	if target, ok, err := optionalString(v, "target"); err != nil {
		return s, err
	} else if ok {
		s.Target = ir.ComponentKind(target)
	} else if defaultTarget == "" {
		return s, &CompileError{
			Field:   field + ".target",
			Message: "policy steps must name a target",
			Pos:     v.Pos(),
		}
	}

	if method, ok, err := optionalString(v, "method"); err != nil {
		return s, err
	} else if ok {
		s.Method = method
	} else {
		s.Method = ir.ActionMethods[s.Action]
	}

	s.Args, err = compileArgs(v, field)
	if err != nil {
		return s, err
	}

	if reqVal := v.LookupPath(cue.ParsePath("requires")); reqVal.Exists() {
		iter, err := reqVal.List()
		if err != nil {
			return s, formatCUEError(err)
		}
		for iter.Next() {
			k, err := iter.Value().String()
			if err != nil {
				return s, formatCUEError(err)
			}
			s.Requires = append(s.Requires, ir.ComponentKind(k))
		}
	}

	if after, ok, err := optionalString(v, "after"); err != nil {
		return s, err
	} else if ok {
		s.After = ir.ComponentKind(after)
	}

	if s.Optional, _, err = optionalBool(v, "optional"); err != nil {
		return s, err
	}
	if enabled, ok, err := optionalBool(v, "enabled"); err != nil {
		return s, err
	} else if ok {
		s.Enabled = enabled
	}

	return s, nil
}

func compileArgs(v cue.Value, field string) ([]ir.ArgumentSpec, error) {
	argsVal := v.LookupPath(cue.ParsePath("args"))
	if !argsVal.Exists() {
		return nil, nil
	}
	iter, err := argsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var args []ir.ArgumentSpec
	for i := 0; iter.Next(); i++ {
		a, err := compileArg(iter.Value(), fmt.Sprintf("%s.args[%d]", field, i))
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// compileArg parses a single-field struct such as {ref: "registry"} or
// {node: "resolver"}.
func compileArg(v cue.Value, field string) (ir.ArgumentSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return ir.ArgumentSpec{}, &CompileError{
			Field:   field,
			Message: "argument must be a struct with exactly one field",
			Pos:     v.Pos(),
		}
	}

	var (
		arg   ir.ArgumentSpec
		count int
	)
	for iter.Next() {
		count++
		if count > 1 {
			return ir.ArgumentSpec{}, &CompileError{
				Field:   field,
				Message: "argument must have exactly one field",
				Pos:     v.Pos(),
			}
		}
		arg, err = compileArgValue(ir.ArgType(iter.Label()), iter.Value(), field)
		if err != nil {
			return ir.ArgumentSpec{}, err
		}
	}
	if count == 0 {
		return ir.ArgumentSpec{}, &CompileError{
			Field:   field,
			Message: "argument must have exactly one field",
			Pos:     v.Pos(),
		}
	}
	return arg, nil
}

func compileArgValue(t ir.ArgType, v cue.Value, field string) (ir.ArgumentSpec, error) {
	v, _ = v.Default()
	switch t {
	case ir.ArgRef:
		s, err := v.String()
		if err != nil {
			return ir.ArgumentSpec{}, formatCUEError(err)
		}
		return ir.Ref(ir.ComponentKind(s)), nil
	case ir.ArgOperator:
		return ir.Operator(), nil
	case ir.ArgBool:
		b, err := v.Bool()
		if err != nil {
			return ir.ArgumentSpec{}, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case ir.ArgUint:
		s, err := decimalString(v)
		if err != nil {
			return ir.ArgumentSpec{}, err
		}
		return ir.Lit(ir.ArgUint, s), nil
	case ir.ArgUints:
		iter, err := v.List()
		if err != nil {
			return ir.ArgumentSpec{}, formatCUEError(err)
		}
		values := []string{}
		for iter.Next() {
			s, err := decimalString(iter.Value())
			if err != nil {
				return ir.ArgumentSpec{}, err
			}
			values = append(values, s)
		}
		return ir.Uints(values...), nil
	case ir.ArgString, ir.ArgAddress, ir.ArgHash, ir.ArgNode, ir.ArgLabel, ir.ArgTemplate:
		s, err := v.String()
		if err != nil {
			return ir.ArgumentSpec{}, formatCUEError(err)
		}
		return ir.Lit(t, s), nil
	default:
		return ir.ArgumentSpec{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unknown argument form %q", t),
			Pos:     v.Pos(),
		}
	}
}

// decimalString accepts a CUE int or a decimal string. Amounts in wei
// overflow int64 regularly, so ints are read at arbitrary precision.
func decimalString(v cue.Value) (string, error) {
	v, _ = v.Default()
	if v.Kind() == cue.IntKind {
		n, err := v.Int(nil)
		if err != nil {
			return "", formatCUEError(err)
		}
		return n.String(), nil
	}
	s, err := v.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	s, ok, err := optionalString(v, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, name string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optionalBool(v cue.Value, name string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
