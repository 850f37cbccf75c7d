package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/nsboot/internal/ir"
)

// dependencyGraph maps a kind to the kinds its constructor references.
// Setup and policy references are availability checks, not edges.
type dependencyGraph struct {
	nodes []ir.ComponentKind // declaration order
	edges map[ir.ComponentKind][]ir.ComponentKind
}

func buildDependencyGraph(t *ir.Topology) dependencyGraph {
	g := dependencyGraph{edges: make(map[ir.ComponentKind][]ir.ComponentKind)}
	for _, d := range t.Components {
		g.nodes = append(g.nodes, d.Kind)
		g.edges[d.Kind] = d.References()
	}
	return g
}

// FindCycles returns every cycle among constructor references, each as a
// closed path such as [a b a]. An acyclic topology returns nil.
//
// The algorithm:
//  1. Build kind → referenced kinds from constructor arguments
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self-reference, as a cycle
//
// Nodes and edges are visited in declaration order, so results are stable.
func FindCycles(t *ir.Topology) [][]ir.ComponentKind {
	g := buildDependencyGraph(t)

	var cycles [][]ir.ComponentKind
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			cycles = append(cycles, reconstructCyclePath(scc, g))
		}
	}
	return cycles
}

// CheckCycles returns a CYCLE ConfigurationError for the first cycle found.
func CheckCycles(t *ir.Topology) error {
	cycles := FindCycles(t)
	if len(cycles) == 0 {
		return nil
	}
	return newCycleError(cycles[0])
}

func newCycleError(path []ir.ComponentKind) *ir.ConfigurationError {
	parts := make([]string, len(path))
	for i, k := range path {
		parts[i] = string(k)
	}
	return &ir.ConfigurationError{
		Code:    ir.ErrCodeCycle,
		Message: fmt.Sprintf("constructor references form a cycle: %s", strings.Join(parts, " → ")),
		Kind:    path[0],
		Path:    path,
	}
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node ir.ComponentKind, g dependencyGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g dependencyGraph) [][]ir.ComponentKind {
	var (
		index   = 0
		stack   []ir.ComponentKind
		indices = make(map[ir.ComponentKind]int)
		lowlink = make(map[ir.ComponentKind]int)
		onStack = make(map[ir.ComponentKind]bool)
		sccs    [][]ir.ComponentKind
	)

	var strongConnect func(ir.ComponentKind)
	strongConnect = func(v ir.ComponentKind) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []ir.ComponentKind
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a closed path through an SCC, starting at
// its earliest-declared member and exploring edges in argument order.
func reconstructCyclePath(scc []ir.ComponentKind, g dependencyGraph) []ir.ComponentKind {
	members := make(map[ir.ComponentKind]bool, len(scc))
	for _, k := range scc {
		members[k] = true
	}

	var start ir.ComponentKind
	for _, k := range g.nodes {
		if members[k] {
			start = k
			break
		}
	}

	visited := make(map[ir.ComponentKind]bool)
	var walk func(k ir.ComponentKind, path []ir.ComponentKind) []ir.ComponentKind
	walk = func(k ir.ComponentKind, path []ir.ComponentKind) []ir.ComponentKind {
		visited[k] = true
		path = append(path, k)
		for _, next := range g.edges[k] {
			if next == start {
				return append(path, start)
			}
			if members[next] && !visited[next] {
				if found := walk(next, path); found != nil {
					return found
				}
			}
		}
		return nil
	}
	return walk(start, nil)
}
