package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Method is a parsed canonical method signature.
type Method struct {
	Name      string
	Signature string
	Inputs    abi.Arguments
}

var (
	signaturePattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(([a-z0-9\[\],]*)\)$`)
	intTypePattern   = regexp.MustCompile(`^u?int([0-9]+)`)
)

// ParseMethod parses a canonical signature such as
// "setSubnodeOwner(bytes32,bytes32,address)". Tuple types are not supported.
func ParseMethod(signature string) (Method, error) {
	m := signaturePattern.FindStringSubmatch(signature)
	if m == nil {
		return Method{}, fmt.Errorf("invalid method signature %q", signature)
	}
	method := Method{Name: m[1], Signature: signature}
	if m[2] == "" {
		return method, nil
	}
	for i, typeName := range strings.Split(m[2], ",") {
		if err := checkIntWidth(typeName); err != nil {
			return Method{}, fmt.Errorf("method %s: param %d: %w", m[1], i, err)
		}
		t, err := abi.NewType(typeName, "", nil)
		if err != nil {
			return Method{}, fmt.Errorf("method %s: param %d: %w", m[1], i, err)
		}
		method.Inputs = append(method.Inputs, abi.Argument{Type: t})
	}
	return method, nil
}

// checkIntWidth rejects intN/uintN unless N is a multiple of 8 in [8, 256].
// abi.NewType accepts any width, which would produce a selector no contract
// implements. Array suffixes are checked through their element type.
func checkIntWidth(typeName string) error {
	m := intTypePattern.FindStringSubmatch(typeName)
	if m == nil {
		return nil
	}
	bits, err := strconv.Atoi(m[1])
	if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
		return fmt.Errorf("invalid integer type %q", typeName)
	}
	return nil
}

// Selector returns the 4-byte function selector of the signature.
func (m Method) Selector() []byte {
	return crypto.Keccak256([]byte(m.Signature))[:4]
}

// Encode returns selector ++ ABI-encoded args.
func (m Method) Encode(args ...any) ([]byte, error) {
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s: expected %d args, got %d", m.Name, len(m.Inputs), len(args))
	}
	packed, err := m.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", m.Name, err)
	}
	return append(m.Selector(), packed...), nil
}

// EncodeCall parses signature and encodes args in one step.
func EncodeCall(signature string, args []any) ([]byte, error) {
	m, err := ParseMethod(signature)
	if err != nil {
		return nil, err
	}
	return m.Encode(args...)
}
