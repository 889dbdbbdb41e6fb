package bootstrap

import (
	"fmt"
	"strings"
)

// Graph is a set of phases connected by prerequisite edges.
//
// A Graph is built once and then only read; it is not safe for concurrent
// AddPhase calls.
type Graph struct {
	phases []Phase
	index  map[string]int

	// order caches the result of the last successful TopologicalOrder.
	order []string
}

// NewGraph returns a graph with the given phases added in order.
func NewGraph(phases ...Phase) (*Graph, error) {
	g := &Graph{index: make(map[string]int)}
	for _, p := range phases {
		if err := g.AddPhase(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddPhase appends a phase. Prerequisites may name phases added later;
// they are resolved by Validate.
func (g *Graph) AddPhase(p Phase) error {
	if g.index == nil {
		g.index = make(map[string]int)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: phase ID is required", ErrInvalidPhase)
	}
	if p.Action == nil {
		return fmt.Errorf("%w: phase %s has no action", ErrInvalidPhase, p.ID)
	}
	if _, exists := g.index[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, p.ID)
	}

	p.Prerequisites = append([]string(nil), p.Prerequisites...)
	g.index[p.ID] = len(g.phases)
	g.phases = append(g.phases, p)
	g.order = nil
	return nil
}

// Len returns the number of phases.
func (g *Graph) Len() int {
	return len(g.phases)
}

// Phase returns the phase with the given ID.
func (g *Graph) Phase(id string) (Phase, bool) {
	i, ok := g.index[id]
	if !ok {
		return Phase{}, false
	}
	return g.phases[i], true
}

// Phases returns the phases in insertion order.
func (g *Graph) Phases() []Phase {
	out := make([]Phase, len(g.phases))
	copy(out, g.phases)
	return out
}

// Validate checks that every prerequisite names a phase and that there are
// no cycles.
func (g *Graph) Validate() error {
	_, err := g.TopologicalOrder()
	return err
}

// TopologicalOrder returns phase IDs such that every phase follows all of its
// prerequisites. Among phases whose prerequisites are satisfied, the one
// added first comes first, so the order is stable across calls and runs.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if g.order != nil {
		return append([]string(nil), g.order...), nil
	}

	for _, p := range g.phases {
		for _, req := range p.Prerequisites {
			if _, ok := g.index[req]; !ok {
				return nil, fmt.Errorf("%w: phase %s requires %q", ErrUnknownPrerequisite, p.ID, req)
			}
		}
	}

	n := len(g.phases)
	indeg := make([]int, n)
	dependents := make([][]int, n)
	for i, p := range g.phases {
		seen := make(map[string]bool, len(p.Prerequisites))
		for _, req := range p.Prerequisites {
			if seen[req] {
				continue
			}
			seen[req] = true
			j := g.index[req]
			dependents[j] = append(dependents[j], i)
			indeg[i]++
		}
	}

	// ready holds phase indexes with no unsatisfied prerequisites, kept sorted
	// so the lowest insertion index is always taken next.
	var ready []int
	for i := range g.phases {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, n)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, g.phases[cur].ID)

		for _, d := range dependents[cur] {
			indeg[d]--
			if indeg[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(order) < n {
		return nil, &CycleError{Path: g.findCycle(indeg)}
	}

	g.order = order
	return append([]string(nil), order...), nil
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// findCycle returns a cycle among the phases Kahn's algorithm could not
// order (indeg > 0). The search starts from the earliest such phase and
// follows prerequisites in declaration order, so the reported path is
// deterministic.
func (g *Graph) findCycle(indeg []int) []string {
	const (
		unvisited = iota
		onStack
		done
	)
	color := make([]int, len(g.phases))
	var stack []int
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = onStack
		stack = append(stack, i)
		for _, req := range g.phases[i].Prerequisites {
			j := g.index[req]
			switch color[j] {
			case onStack:
				start := 0
				for k, s := range stack {
					if s == j {
						start = k
						break
					}
				}
				for _, s := range stack[start:] {
					cycle = append(cycle, g.phases[s].ID)
				}
				cycle = append(cycle, g.phases[j].ID)
				return true
			case unvisited:
				if visit(j) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = done
		return false
	}

	for i := range g.phases {
		if indeg[i] > 0 && color[i] == unvisited && visit(i) {
			return cycle
		}
	}
	return nil
}
