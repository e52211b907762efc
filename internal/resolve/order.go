// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"fmt"
	"strings"
)

type (
	// CycleError reports recipes that depend on each other.
	CycleError struct {
		// Cycle lists the recipes left unordered; at least the cycle itself.
		Cycle []string
	}

	// buildGraph orders recipes so that every dependency builds before the
	// recipes needing it. An edge dep -> recipe reads "dep builds first".
	buildGraph struct {
		next  map[string][]string
		nodes []string
		seen  map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("recipe dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

func newBuildGraph() *buildGraph {
	return &buildGraph{next: make(map[string][]string), seen: make(map[string]bool)}
}

func (g *buildGraph) add(name string) {
	if g.seen[name] {
		return
	}
	g.seen[name] = true
	g.nodes = append(g.nodes, name)
}

// requires records that recipe needs dep built first.
func (g *buildGraph) requires(recipe, dep string) {
	g.add(recipe)
	g.add(dep)
	g.next[dep] = append(g.next[dep], recipe)
}

// order runs Kahn's algorithm. Recipes with no remaining dependencies are
// emitted in the order they were first added, so the result is stable.
func (g *buildGraph) order() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	pending := make(map[string]int, len(g.nodes))
	for _, dependents := range g.next {
		for _, d := range dependents {
			pending[d]++
		}
	}

	var ready []string
	for _, n := range g.nodes {
		if pending[n] == 0 {
			ready = append(ready, n)
		}
	}

	out := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, d := range g.next[n] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(out) != len(g.nodes) {
		var stuck []string
		for _, n := range g.nodes {
			if pending[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, &CycleError{Cycle: stuck}
	}
	return out, nil
}
