package engine

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/namehash"
)

// argResolver turns declared arguments into ABI values using the current
// resolution table.
type argResolver struct {
	table    *ResolutionTable
	operator common.Address
	hasher   *namehash.Hasher
}

// resolveAll resolves args in order. It returns the ABI values and their
// rendered forms for step records.
func (r argResolver) resolveAll(stepKey string, args []ir.ArgumentSpec) ([]any, []string, error) {
	values := make([]any, 0, len(args))
	rendered := make([]string, 0, len(args))
	for i, a := range args {
		v, s, err := r.resolve(stepKey, a)
		if err != nil {
			var ce *ir.ConfigurationError
			if errors.As(err, &ce) {
				return nil, nil, err
			}
			return nil, nil, &ir.ConfigurationError{
				Code:    ir.ErrCodeInvalidArgument,
				Message: fmt.Sprintf("argument %d (%s): %v", i, a, err),
				StepKey: stepKey,
			}
		}
		values = append(values, v)
		rendered = append(rendered, s)
	}
	return values, rendered, nil
}

func (r argResolver) resolve(stepKey string, a ir.ArgumentSpec) (any, string, error) {
	switch a.Type {
	case ir.ArgRef:
		addr, ok := r.table.Lookup(a.Ref)
		if !ok {
			return nil, "", ir.NewUnresolvedError(stepKey, a.Ref)
		}
		return addr, addr.Hex(), nil
	case ir.ArgOperator:
		return r.operator, r.operator.Hex(), nil
	case ir.ArgString:
		return a.Value, a.Value, nil
	case ir.ArgBool:
		return a.Bool, fmt.Sprintf("%t", a.Bool), nil
	case ir.ArgUint:
		n, err := parseUint(a.Value)
		if err != nil {
			return nil, "", err
		}
		return n, n.String(), nil
	case ir.ArgUints:
		ns := make([]*big.Int, len(a.Values))
		for i, v := range a.Values {
			n, err := parseUint(v)
			if err != nil {
				return nil, "", err
			}
			ns[i] = n
		}
		return ns, "[" + strings.Join(a.Values, ",") + "]", nil
	case ir.ArgAddress:
		if !common.IsHexAddress(a.Value) {
			return nil, "", fmt.Errorf("%q is not a hex address", a.Value)
		}
		addr := common.HexToAddress(a.Value)
		return addr, addr.Hex(), nil
	case ir.ArgHash:
		h := common.HexToHash(a.Value)
		return [32]byte(h), h.Hex(), nil
	case ir.ArgNode:
		h := r.hasher.Node(a.Value)
		return [32]byte(h), h.Hex(), nil
	case ir.ArgLabel:
		h := r.hasher.Label(a.Value)
		return [32]byte(h), h.Hex(), nil
	case ir.ArgTemplate:
		s, err := ir.ExpandTemplate(a.Value, func(k ir.ComponentKind) (string, error) {
			addr, ok := r.table.Lookup(k)
			if !ok {
				return "", ir.NewUnresolvedError(stepKey, k)
			}
			return addr.Hex(), nil
		})
		if err != nil {
			return nil, "", err
		}
		return s, s, nil
	default:
		return nil, "", fmt.Errorf("unknown argument form %q", a.Type)
	}
}

func parseUint(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%q is not an unsigned decimal integer", s)
	}
	return n, nil
}
