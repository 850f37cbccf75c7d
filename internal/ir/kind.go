package ir

import "fmt"

// ComponentKind identifies one deployable unit of the namespace service.
type ComponentKind string

const (
	KindRegistry         ComponentKind = "registry"
	KindFallbackRegistry ComponentKind = "fallback-registry"
	KindRegistrar        ComponentKind = "registrar"
	KindReverseRegistrar ComponentKind = "reverse-registrar"
	KindBaseRegistrar    ComponentKind = "base-registrar"
	KindPriceOracle      ComponentKind = "price-oracle"
	KindController       ComponentKind = "controller"
	KindResolver         ComponentKind = "resolver"
)

// AllKinds lists every ComponentKind in canonical order.
var AllKinds = []ComponentKind{
	KindRegistry,
	KindFallbackRegistry,
	KindRegistrar,
	KindReverseRegistrar,
	KindBaseRegistrar,
	KindPriceOracle,
	KindController,
	KindResolver,
}

// Valid reports whether k is a member of the closed kind set.
func (k ComponentKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a string to a ComponentKind, rejecting unknown names.
func ParseKind(s string) (ComponentKind, error) {
	k := ComponentKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown component kind %q", s)
	}
	return k, nil
}
