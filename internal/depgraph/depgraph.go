// Package depgraph tracks the dependency edges between recipes and their
// primitives, so that cycles (recipe A depending on B depending on A) are
// rejected eagerly at registration time instead of deadlocking at request
// time.
package depgraph

import "fmt"

type vertex struct {
	id   string
	deps map[string]*vertex // edges toward primitives
}

// Graph is a directed graph of raster identities. It is not safe for
// concurrent use; callers synchronize registration externally.
type Graph struct {
	vertices map[string]*vertex
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{vertices: make(map[string]*vertex)}
}

// Add registers id if not already present.
func (g *Graph) Add(id string) {
	if _, ok := g.vertices[id]; ok {
		return
	}
	g.vertices[id] = &vertex{id: id, deps: make(map[string]*vertex)}
}

// AddDependency records that `from` consumes `to` as a primitive. It fails
// when the edge would close a cycle, or on a self-reference.
func (g *Graph) AddDependency(from, to string) error {
	if from == to {
		return fmt.Errorf("depgraph: %q cannot be its own primitive", from)
	}
	g.Add(from)
	g.Add(to)
	if g.reaches(to, from) {
		return fmt.Errorf("depgraph: %q -> %q closes a dependency cycle", from, to)
	}
	g.vertices[from].deps[to] = g.vertices[to]
	return nil
}

// Remove deletes id and its outgoing edges. It is meant for rolling back
// ids whose registration failed partway; such ids were never visible to
// other callers, so nothing can hold an edge toward them.
func (g *Graph) Remove(id string) {
	delete(g.vertices, id)
}

// reaches walks dependency edges depth-first from `start` looking for
// `target`.
func (g *Graph) reaches(start, target string) bool {
	seen := make(map[string]bool)
	var visit func(v *vertex) bool
	visit = func(v *vertex) bool {
		if v.id == target {
			return true
		}
		if seen[v.id] {
			return false
		}
		seen[v.id] = true
		for _, dep := range v.deps {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	v, ok := g.vertices[start]
	return ok && visit(v)
}

// Dependencies returns the primitive ids of `id`.
func (g *Graph) Dependencies(id string) []string {
	v, ok := g.vertices[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.deps))
	for depID := range v.deps {
		out = append(out, depID)
	}
	return out
}
