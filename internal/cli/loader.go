package cli

import (
	"errors"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/config"
	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/topology"
)

// planInputs is everything a command needs to execute or show a plan.
type planInputs struct {
	Config   config.Config
	Topology *ir.Topology
	Plan     *ir.Plan
	Hash     string
}

// loadConfig reads the run file at path, or returns the defaults when path
// is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// loadPlan builds the topology named by cfg (or topologyDir, when set),
// fills its params and compiles the plan with cfg's step overrides.
func loadPlan(cfg config.Config, topologyDir string) (*planInputs, error) {
	dir := cfg.Topology
	if topologyDir != "" {
		dir = topologyDir
	}

	topo, err := topology.Load(dir, cfg.Params)
	if err != nil {
		return nil, err
	}

	plan, err := compiler.BuildPlan(topo, compiler.PlanOptions{Steps: cfg.Steps})
	if err != nil {
		return nil, err
	}

	hash, err := ir.PlanHash(plan)
	if err != nil {
		return nil, err
	}

	return &planInputs{Config: cfg, Topology: topo, Plan: plan, Hash: hash}, nil
}

// errorCode picks the code reported for a load, compile or configuration
// error.
func errorCode(err error) string {
	var loadErr *topology.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return ErrCodeConfig
	}
	var ce *ir.ConfigurationError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	return ErrCodeGeneric
}
