package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/statewire/internal/ir"
)

// Cycle is a set of states that read from each other. A cycle would make a
// derived state wait on itself, so graphs containing one are rejected.
type Cycle struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// dependencyGraph maps a state to the states it reads from.
type dependencyGraph map[string][]string

func buildDependencyGraph(spec *ir.GraphSpec) dependencyGraph {
	graph := make(dependencyGraph, len(spec.States))
	for _, st := range spec.States {
		deps := slices.Clone(st.Inputs)
		if st.Source != "" {
			deps = append(deps, st.Source)
		}
		if deps == nil {
			deps = []string{}
		}
		graph[st.Name] = deps
	}
	return graph
}

// AnalyzeCycles reports every dependency cycle in spec. An acyclic graph
// returns an empty list.
func AnalyzeCycles(spec *ir.GraphSpec) []Cycle {
	graph := buildDependencyGraph(spec)
	var cycles []Cycle
	for _, scc := range tarjanSCC(graph, stateOrder(spec)) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// buildOrder lists states so that every state comes after the states it
// reads from, keeping declaration order otherwise.
func buildOrder(spec *ir.GraphSpec) ([]string, error) {
	if cycles := AnalyzeCycles(spec); len(cycles) > 0 {
		return nil, fmt.Errorf("%s", cycles[0].Message)
	}

	graph := buildDependencyGraph(spec)
	done := make(map[string]bool, len(graph))
	var order []string

	var visit func(name string)
	visit = func(name string) {
		if done[name] {
			return
		}
		done[name] = true
		for _, dep := range graph[name] {
			if _, ok := graph[dep]; ok {
				visit(dep)
			}
		}
		order = append(order, name)
	}
	for _, name := range stateOrder(spec) {
		visit(name)
	}
	return order, nil
}

func stateOrder(spec *ir.GraphSpec) []string {
	names := make([]string, len(spec.States))
	for i, st := range spec.States {
		names[i] = st.Name
	}
	return names
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components, visiting roots in the
// given order so results are deterministic.
func tarjanSCC(graph dependencyGraph, roots []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, known := graph[w]; !known {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
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

	for _, node := range roots {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) Cycle {
	if len(scc) == 1 {
		return Cycle{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("state reads from itself: %s -> %s", scc[0], scc[0]),
		}
	}
	path := cyclePath(scc, graph)
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> ")),
	}
}

// cyclePath walks edges inside the SCC from its first member back to it.
func cyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
