package transform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when models depend on each other circularly.
var ErrCycle = errors.New("transform: dependency cycle")

// Graph is the lineage of a model set.
type Graph struct {
	models     map[string]Model
	names      []string // registration order, used to break ties
	dependents map[string][]string
}

// NewGraph validates models and their dependencies.
func NewGraph(models []Model) (*Graph, error) {
	g := &Graph{
		models:     make(map[string]Model, len(models)),
		dependents: make(map[string][]string, len(models)),
	}
	for _, m := range models {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := g.models[m.Name]; dup {
			return nil, fmt.Errorf("transform: duplicate model %s", m.Name)
		}
		g.models[m.Name] = m
		g.names = append(g.names, m.Name)
	}
	for _, name := range g.names {
		for _, dep := range g.models[name].DependsOn {
			if _, ok := g.models[dep]; !ok {
				return nil, fmt.Errorf("transform: model %s depends on unknown model %s", name, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}
	return g, nil
}

func (g *Graph) Model(name string) (Model, bool) {
	m, ok := g.models[name]
	return m, ok
}

func (g *Graph) Names() []string { return append([]string(nil), g.names...) }

// Order returns every model with dependencies first. Ties keep
// registration order so the result is stable.
func (g *Graph) Order() ([]string, error) {
	inDegree := make(map[string]int, len(g.models))
	for _, name := range g.names {
		inDegree[name] = len(g.models[name].DependsOn)
	}

	var order []string
	done := make(map[string]bool, len(g.names))
	for len(order) < len(g.names) {
		progressed := false
		for _, name := range g.names {
			if done[name] || inDegree[name] > 0 {
				continue
			}
			done[name] = true
			order = append(order, name)
			for _, d := range g.dependents[name] {
				inDegree[d]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, name := range g.names {
				if !done[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

// Upstream returns the transitive dependencies of name in build order.
func (g *Graph) Upstream(name string) []string {
	return g.walk(name, func(n string) []string { return g.models[n].DependsOn })
}

// Downstream returns every model that transitively depends on name, in
// build order.
func (g *Graph) Downstream(name string) []string {
	return g.walk(name, func(n string) []string { return g.dependents[n] })
}

func (g *Graph) walk(start string, next func(string) []string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), next(start)...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] || n == start {
			continue
		}
		seen[n] = true
		stack = append(stack, next(n)...)
	}
	return g.ordered(seen)
}

func (g *Graph) ordered(set map[string]bool) []string {
	order, err := g.Order()
	if err != nil {
		order = g.names
	}
	out := []string{}
	for _, n := range order {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

// Select resolves selectors into the models to build, in build order.
// "name" selects the model with its upstreams, "name+" adds its downstream
// models too. No selector selects everything.
func (g *Graph) Select(selectors []string) ([]string, error) {
	if _, err := g.Order(); err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		return g.Order()
	}
	set := map[string]bool{}
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		name, withDownstream := strings.CutSuffix(sel, "+")
		if _, ok := g.models[name]; !ok {
			return nil, fmt.Errorf("transform: unknown model %s", name)
		}
		roots := []string{name}
		if withDownstream {
			roots = append(roots, g.Downstream(name)...)
		}
		for _, r := range roots {
			set[r] = true
			for _, up := range g.Upstream(r) {
				set[up] = true
			}
		}
	}
	return g.ordered(set), nil
}
