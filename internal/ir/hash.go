package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPlan is the domain prefix for plan identity hashes.
// Version suffix enables future algorithm migration.
const DomainPlan = "nsboot/plan/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanHash computes the content-addressed identity of a plan. Two plans with
// the same steps, arguments and enabled flags hash identically, which makes
// runs reproducible from their journal header.
func PlanHash(p *Plan) (string, error) {
	canonical, err := MarshalCanonical(planObject(p))
	if err != nil {
		return "", fmt.Errorf("PlanHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// MustPlanHash is like PlanHash but panics on error.
// Use only in tests or when the plan is known to be valid.
func MustPlanHash(p *Plan) string {
	h, err := PlanHash(p)
	if err != nil {
		panic(err)
	}
	return h
}

func planObject(p *Plan) map[string]any {
	order := make([]string, len(p.Order))
	for i, k := range p.Order {
		order[i] = string(k)
	}
	steps := make([]any, len(p.Steps))
	for i, s := range p.Steps {
		step := map[string]any{
			"index": s.Index,
			"key":   s.Key,
			"type":  string(s.Type),
			"kind":  string(s.Kind),
			"args":  argsObject(s.Args()),
		}
		if s.Type == StepDeploy {
			step["artifact"] = s.Descriptor.Artifact
		} else {
			step["method"] = s.Wiring.Method
			step["target"] = string(s.Wiring.Target)
		}
		steps[i] = step
	}
	return map[string]any{
		"version":  PlanVersion,
		"topology": p.Topology,
		"order":    order,
		"steps":    steps,
	}
}

func argsObject(args []ArgumentSpec) []any {
	out := make([]any, len(args))
	for i, a := range args {
		obj := map[string]any{"type": string(a.Type)}
		switch a.Type {
		case ArgRef:
			obj["ref"] = string(a.Ref)
		case ArgBool:
			obj["bool"] = a.Bool
		case ArgUints:
			obj["values"] = append([]string{}, a.Values...)
		case ArgOperator:
		default:
			obj["value"] = a.Value
		}
		out[i] = obj
	}
	return out
}
