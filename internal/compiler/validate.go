package compiler

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger"
)

// Validation error codes (E100-E199)
const (
	// Topology errors (E101-E109)
	ErrEmptyTopology   = "E101" // at least one component required
	ErrUnknownKind     = "E102" // kind outside the closed set
	ErrDuplicateKind   = "E103" // kind declared twice
	ErrMissingArtifact = "E104" // artifact name required

	// Step and argument errors (E110-E119)
	ErrInvalidArgument  = "E110" // malformed literal or unknown form
	ErrInvalidAction    = "E111" // unknown action or bad method signature
	ErrArityMismatch    = "E112" // arg count differs from signature
	ErrArgTypeMismatch  = "E113" // arg form incompatible with ABI type
	ErrDuplicateStep    = "E114" // step id declared twice
	ErrRequiredDisabled = "E115" // non-optional step declared disabled
	ErrUndeclaredKind   = "E116" // reference to a kind with no descriptor
	ErrInvalidAnchor    = "E117" // after used outside policy
)

// configCodes maps validation codes onto configuration error categories.
var configCodes = map[string]ir.ConfigErrorCode{
	ErrEmptyTopology:    ir.ErrCodeEmptyTopology,
	ErrUnknownKind:      ir.ErrCodeUnknownKind,
	ErrDuplicateKind:    ir.ErrCodeDuplicateKind,
	ErrMissingArtifact:  ir.ErrCodeInvalidStep,
	ErrInvalidArgument:  ir.ErrCodeInvalidArgument,
	ErrInvalidAction:    ir.ErrCodeInvalidStep,
	ErrArityMismatch:    ir.ErrCodeInvalidStep,
	ErrArgTypeMismatch:  ir.ErrCodeInvalidArgument,
	ErrDuplicateStep:    ir.ErrCodeInvalidStep,
	ErrRequiredDisabled: ir.ErrCodeRequiredStepDisabled,
	ErrUndeclaredKind:   ir.ErrCodeMissingDependency,
	ErrInvalidAnchor:    ir.ErrCodeInvalidStep,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string           `json:"field"`
	Message string           `json:"message"`
	Code    string           `json:"code"`
	Kind    ir.ComponentKind `json:"kind,omitempty"`
	StepKey string           `json:"step,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ConfigCode returns the configuration error category of the code.
func (e ValidationError) ConfigCode() ir.ConfigErrorCode {
	if c, ok := configCodes[e.Code]; ok {
		return c
	}
	return ir.ErrCodeInvalidStep
}

// Check validates t and converts the first problem into a
// ConfigurationError. The message counts any further problems.
func Check(t *ir.Topology) error {
	errs := Validate(t)
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	msg := fmt.Sprintf("%s: %s", first.Field, first.Message)
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return &ir.ConfigurationError{
		Code:    first.ConfigCode(),
		Message: msg,
		Kind:    first.Kind,
		StepKey: first.StepKey,
	}
}

// Validate validates a compiled topology against schema rules.
// Returns all errors found (does not fail-fast). Ordering and availability
// are checked by BuildPlan.
func Validate(t *ir.Topology) []ValidationError {
	var errs []ValidationError

	// E101: at least one component
	if len(t.Components) == 0 {
		errs = append(errs, ValidationError{
			Field:   "components",
			Message: "at least one component is required",
			Code:    ErrEmptyTopology,
		})
	}

	declared := make(map[ir.ComponentKind]bool)
	for i, d := range t.Components {
		field := fmt.Sprintf("components[%d]", i)

		// E102: closed kind set
		if !d.Kind.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown component kind %q", d.Kind),
				Code:    ErrUnknownKind,
				Kind:    d.Kind,
			})
		}

		// E103: deployed at most once per run
		if declared[d.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("component kind %q declared more than once", d.Kind),
				Code:    ErrDuplicateKind,
				Kind:    d.Kind,
			})
		}
		declared[d.Kind] = true

		// E104
		if strings.TrimSpace(d.Artifact) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".artifact",
				Message: "artifact is required",
				Code:    ErrMissingArtifact,
				Kind:    d.Kind,
			})
		}
	}

	stepIDs := make(map[string]bool)
	checkID := func(field, id, key string) {
		// E114: ids are the handles for [steps] overrides
		if stepIDs[id] {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("step id %q declared more than once", id),
				Code:    ErrDuplicateStep,
				StepKey: key,
			})
		}
		stepIDs[id] = true
	}

	for i, d := range t.Components {
		field := fmt.Sprintf("components[%d]", i)
		for j, a := range d.Args {
			errs = append(errs, validateArg(a, fmt.Sprintf("%s.args[%d]", field, j), ir.DeployKey(d.Kind), declared)...)
		}
		for j, s := range d.Setup {
			sf := fmt.Sprintf("%s.setup[%d]", field, j)
			key := ir.SetupKey(d.Kind, s.ID)
			checkID(sf, s.ID, key)
			errs = append(errs, validateStep(s, sf, key, declared)...)
			if s.After != "" {
				errs = append(errs, ValidationError{
					Field:   sf + ".after",
					Message: "after applies to policy steps only",
					Code:    ErrInvalidAnchor,
					StepKey: key,
				})
			}
		}
	}

	for i, s := range t.Policy {
		field := fmt.Sprintf("policy[%d]", i)
		key := ir.PolicyKey(s.ID)
		checkID(field, s.ID, key)
		errs = append(errs, validateStep(s, field, key, declared)...)
		if s.After != "" {
			errs = append(errs, validateKindRef(s.After, field+".after", key, declared)...)
		}
	}

	return errs
}

func validateStep(s ir.WiringStep, field, key string, declared map[ir.ComponentKind]bool) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(s.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: "step id is required",
			Code:    ErrInvalidAction,
			StepKey: key,
		})
	}

	// E115: only optional steps may be switched off
	if !s.Optional && !s.Enabled {
		errs = append(errs, ValidationError{
			Field:   field + ".enabled",
			Message: fmt.Sprintf("step %q is not optional and cannot be disabled", s.ID),
			Code:    ErrRequiredDisabled,
			StepKey: key,
		})
	}

	errs = append(errs, validateKindRef(s.Target, field+".target", key, declared)...)
	for i, k := range s.Requires {
		errs = append(errs, validateKindRef(k, fmt.Sprintf("%s.requires[%d]", field, i), key, declared)...)
	}
	for i, a := range s.Args {
		errs = append(errs, validateArg(a, fmt.Sprintf("%s.args[%d]", field, i), key, declared)...)
	}

	// E111: the action must resolve to a parseable method
	if _, known := ir.ActionMethods[s.Action]; !known && s.Action != ir.ActionCall {
		return append(errs, ValidationError{
			Field:   field + ".action",
			Message: fmt.Sprintf("unknown action %q", s.Action),
			Code:    ErrInvalidAction,
			StepKey: key,
		})
	}
	if s.Method == "" {
		return append(errs, ValidationError{
			Field:   field + ".method",
			Message: "call steps must declare a method signature",
			Code:    ErrInvalidAction,
			StepKey: key,
		})
	}
	m, err := ledger.ParseMethod(s.Method)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field + ".method",
			Message: err.Error(),
			Code:    ErrInvalidAction,
			StepKey: key,
		})
	}

	// E112, E113: arguments line up with the signature
	if len(m.Inputs) != len(s.Args) {
		return append(errs, ValidationError{
			Field:   field + ".args",
			Message: fmt.Sprintf("%s takes %d arguments, got %d", s.Method, len(m.Inputs), len(s.Args)),
			Code:    ErrArityMismatch,
			StepKey: key,
		})
	}
	for i, a := range s.Args {
		abiType := m.Inputs[i].Type.String()
		if !abiCompatible(a.Type, abiType) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.args[%d]", field, i),
				Message: fmt.Sprintf("%s argument cannot encode as %s", a.Type, abiType),
				Code:    ErrArgTypeMismatch,
				StepKey: key,
			})
		}
	}

	return errs
}

func validateKindRef(k ir.ComponentKind, field, key string, declared map[ir.ComponentKind]bool) []ValidationError {
	switch {
	case !k.Valid():
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("unknown component kind %q", k),
			Code:    ErrUnknownKind,
			Kind:    k,
			StepKey: key,
		}}
	case !declared[k]:
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("component %q is not declared in the topology", k),
			Code:    ErrUndeclaredKind,
			Kind:    k,
			StepKey: key,
		}}
	}
	return nil
}

var hashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func validateArg(a ir.ArgumentSpec, field, key string, declared map[ir.ComponentKind]bool) []ValidationError {
	invalid := func(format string, args ...any) []ValidationError {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    ErrInvalidArgument,
			StepKey: key,
		}}
	}

	switch a.Type {
	case ir.ArgRef:
		return validateKindRef(a.Ref, field, key, declared)
	case ir.ArgTemplate:
		var errs []ValidationError
		for _, k := range ir.Placeholders(a.Value) {
			errs = append(errs, validateKindRef(k, field, key, declared)...)
		}
		return errs
	case ir.ArgOperator, ir.ArgString, ir.ArgBool:
		return nil
	case ir.ArgUint:
		if !isUint(a.Value) {
			return invalid("%q is not an unsigned decimal integer", a.Value)
		}
	case ir.ArgUints:
		for i, v := range a.Values {
			if !isUint(v) {
				return invalid("element %d: %q is not an unsigned decimal integer", i, v)
			}
		}
	case ir.ArgAddress:
		if !common.IsHexAddress(a.Value) {
			return invalid("%q is not a hex address", a.Value)
		}
	case ir.ArgHash:
		if !hashPattern.MatchString(a.Value) {
			return invalid("%q is not a 32-byte hex value", a.Value)
		}
	case ir.ArgNode:
		if a.Value == "" {
			return nil
		}
		for _, label := range strings.Split(a.Value, ".") {
			if label == "" {
				return invalid("name %q has an empty label", a.Value)
			}
		}
	case ir.ArgLabel:
		if a.Value == "" || strings.Contains(a.Value, ".") {
			return invalid("label %q must be a single non-empty segment", a.Value)
		}
	default:
		return invalid("unknown argument form %q", a.Type)
	}
	return nil
}

func isUint(s string) bool {
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0 && n.BitLen() <= 256
}

// abiCompatible reports whether an argument form can encode as abiType.
func abiCompatible(t ir.ArgType, abiType string) bool {
	switch t {
	case ir.ArgRef, ir.ArgOperator, ir.ArgAddress:
		return abiType == "address"
	case ir.ArgString, ir.ArgTemplate:
		return abiType == "string"
	case ir.ArgBool:
		return abiType == "bool"
	case ir.ArgHash, ir.ArgNode, ir.ArgLabel:
		return abiType == "bytes32"
	case ir.ArgUint:
		return strings.HasPrefix(abiType, "uint") && !strings.HasSuffix(abiType, "]")
	case ir.ArgUints:
		return strings.HasPrefix(abiType, "uint") && strings.HasSuffix(abiType, "[]")
	}
	return false
}
