// Package topology loads provisioning topologies written in CUE.
//
// The built-in topology reproduces the namespace bootstrap: two registries,
// the FIFS and base registrars, reverse registrar, price oracle, controller,
// and public resolver, wired by the namespace tree policy. A directory of
// CUE files can replace it; run parameters are filled into the `params`
// struct either way.
package topology

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nsboot/internal/compiler"
	"github.com/roach88/nsboot/internal/ir"
)

//go:embed default.cue
var defaultSource string

// DefaultSource returns the CUE text of the built-in topology.
func DefaultSource() string {
	return defaultSource
}

// Error code constants for loading failures.
const (
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeParams      = "E008" // Params conflict with the topology
)

// LoadError represents an error that occurred while loading a topology.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load builds the topology in dir, or the built-in one when dir is empty,
// fills params, and compiles it. Params keys are field names of the CUE
// `params` struct; values must be strings, integers, or string slices.
func Load(dir string, params map[string]any) (*ir.Topology, error) {
	v, err := build(dir)
	if err != nil {
		return nil, err
	}

	v, err = fillParams(v, params)
	if err != nil {
		return nil, err
	}

	return compiler.CompileTopology(v)
}

// Default compiles the built-in topology with its default params.
func Default() (*ir.Topology, error) {
	return Load("", nil)
}

func build(dir string) (cue.Value, error) {
	ctx := cuecontext.New()
	if dir == "" {
		v := ctx.CompileString(defaultSource, cue.Filename("default.cue"))
		if err := v.Err(); err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building default topology: %v", err)}
		}
		return v, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("topology directory not found: %s", dir)}
	}
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing topology directory: %v", err)}
	}
	if !info.IsDir() {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return v, nil
}

// fillParams unifies each param into `params`. Keys are applied in sorted
// order so conflicts report deterministically.
func fillParams(v cue.Value, params map[string]any) (cue.Value, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		path := cue.MakePath(cue.Str("params"), cue.Str(k))
		v = v.FillPath(path, params[k])
		if err := v.LookupPath(path).Err(); err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeParams, Message: fmt.Sprintf("param %s: %v", k, err)}
		}
	}
	return v, nil
}
