package ir

import (
	"fmt"
	"regexp"
)

// ArgType discriminates the forms an ArgumentSpec can take.
type ArgType string

const (
	// ArgRef refers to the resulting address of a deployed component.
	ArgRef ArgType = "ref"
	// ArgOperator is the address of the account submitting transactions.
	ArgOperator ArgType = "operator"
	ArgString   ArgType = "string"
	// ArgUint is an unsigned integer as a decimal string (uint256).
	ArgUint ArgType = "uint"
	// ArgUints is a list of decimal strings (uint256[]).
	ArgUints   ArgType = "uints"
	ArgBool    ArgType = "bool"
	ArgAddress ArgType = "address"
	// ArgHash is a 32-byte hex literal.
	ArgHash ArgType = "hash"
	// ArgNode is the namehash of a dotted name. The empty name is the root node.
	ArgNode ArgType = "node"
	// ArgLabel is the labelhash of a single path segment.
	ArgLabel ArgType = "label"
	// ArgTemplate is a string with ${kind} placeholders replaced by addresses.
	ArgTemplate ArgType = "template"
)

// ValidArgTypes defines allowed argument forms.
var ValidArgTypes = map[ArgType]bool{
	ArgRef:      true,
	ArgOperator: true,
	ArgString:   true,
	ArgUint:     true,
	ArgUints:    true,
	ArgBool:     true,
	ArgAddress:  true,
	ArgHash:     true,
	ArgNode:     true,
	ArgLabel:    true,
	ArgTemplate: true,
}

// ArgumentSpec is a constructor or call argument: a literal value or a
// reference to a component address resolved at execution time.
type ArgumentSpec struct {
	Type   ArgType       `json:"type"`
	Value  string        `json:"value,omitempty"`
	Values []string      `json:"values,omitempty"` // ArgUints only
	Bool   bool          `json:"bool,omitempty"`   // ArgBool only
	Ref    ComponentKind `json:"ref,omitempty"`    // ArgRef only
}

// Ref builds a reference argument.
func Ref(k ComponentKind) ArgumentSpec { return ArgumentSpec{Type: ArgRef, Ref: k} }

// Operator builds an operator-address argument.
func Operator() ArgumentSpec { return ArgumentSpec{Type: ArgOperator} }

// Lit builds a scalar literal argument of the given type.
func Lit(t ArgType, v string) ArgumentSpec { return ArgumentSpec{Type: t, Value: v} }

// Node builds a namehash argument for a dotted name.
func Node(name string) ArgumentSpec { return ArgumentSpec{Type: ArgNode, Value: name} }

// Label builds a labelhash argument.
func Label(label string) ArgumentSpec { return ArgumentSpec{Type: ArgLabel, Value: label} }

// Bool builds a boolean literal argument.
func Bool(b bool) ArgumentSpec { return ArgumentSpec{Type: ArgBool, Bool: b} }

// Uints builds a uint256[] literal argument.
func Uints(vs ...string) ArgumentSpec { return ArgumentSpec{Type: ArgUints, Values: vs} }

// Template builds a template argument.
func Template(t string) ArgumentSpec { return ArgumentSpec{Type: ArgTemplate, Value: t} }

var placeholderPattern = regexp.MustCompile(`\$\{([a-z][a-z-]*)\}`)

// Placeholders returns the component kinds named by ${kind} placeholders in
// a template, in order of first appearance.
func Placeholders(template string) []ComponentKind {
	var kinds []ComponentKind
	seen := make(map[ComponentKind]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		k := ComponentKind(m[1])
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ExpandTemplate replaces every ${kind} placeholder using lookup.
// Returns error if lookup fails for any placeholder.
func ExpandTemplate(template string, lookup func(ComponentKind) (string, error)) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		k := ComponentKind(placeholderPattern.FindStringSubmatch(m)[1])
		v, err := lookup(k)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// References returns the component kinds this argument depends on.
func (a ArgumentSpec) References() []ComponentKind {
	switch a.Type {
	case ArgRef:
		return []ComponentKind{a.Ref}
	case ArgTemplate:
		return Placeholders(a.Value)
	default:
		return nil
	}
}

// String renders the argument in its declared (unresolved) form.
func (a ArgumentSpec) String() string {
	switch a.Type {
	case ArgRef:
		return "ref(" + string(a.Ref) + ")"
	case ArgOperator:
		return "operator"
	case ArgBool:
		return fmt.Sprintf("bool(%t)", a.Bool)
	case ArgUints:
		return fmt.Sprintf("uints%v", a.Values)
	default:
		return fmt.Sprintf("%s(%q)", a.Type, a.Value)
	}
}
