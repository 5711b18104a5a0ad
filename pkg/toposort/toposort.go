// Package toposort provides a small directed graph over string-named nodes
// with deterministic topological ordering and cycle detection. It backs the
// accumulator registry's dependency resolution, where nodes are statistic
// producer names and an edge A -> B means B depends on A.
package toposort

import "sort"

// DFS visit marks for cycle detection.
const (
	unvisited = iota
	visiting
	visited
)

// Graph is a directed graph over string-named nodes.
type Graph struct {
	edges map[string]map[string]struct{}
	nodes []string
	seen  map[string]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		edges: make(map[string]map[string]struct{}),
		seen:  make(map[string]struct{}),
	}
}

// AddNode inserts a node. Returns false if the node already exists.
func (g *Graph) AddNode(name string) bool {
	if _, ok := g.seen[name]; ok {
		return false
	}

	g.seen[name] = struct{}{}
	g.nodes = append(g.nodes, name)

	return true
}

// AddEdge inserts a directed edge from "from" to "to", creating the nodes
// as needed. Returns false if the edge already exists.
func (g *Graph) AddEdge(from, to string) bool {
	g.AddNode(from)
	g.AddNode(to)

	if g.edges[from] == nil {
		g.edges[from] = make(map[string]struct{})
	}

	if _, ok := g.edges[from][to]; ok {
		return false
	}

	g.edges[from][to] = struct{}{}

	return true
}

// Children returns the targets of outgoing edges from the node, sorted.
func (g *Graph) Children(from string) []string {
	children := make([]string, 0, len(g.edges[from]))
	for to := range g.edges[from] {
		children = append(children, to)
	}

	sort.Strings(children)

	return children
}

// Toposort returns the nodes in topological order. Ties are broken
// lexicographically so the order is deterministic. The second return is
// false when the graph contains a cycle.
func (g *Graph) Toposort() ([]string, bool) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = 0
	}

	for _, targets := range g.edges {
		for to := range targets {
			inDegree[to]++
		}
	}

	ready := make([]string, 0, len(g.nodes))

	for _, n := range g.nodes {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))

	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		released := make([]string, 0)

		for _, child := range g.Children(node) {
			inDegree[child]--
			if inDegree[child] == 0 {
				released = append(released, child)
			}
		}

		// Keep the ready queue sorted for deterministic output.
		ready = append(ready, released...)
		sort.Strings(ready)
	}

	return order, len(order) == len(g.nodes)
}

// FindCycle returns one cycle reachable from any node, as the list of
// nodes along the cycle, or nil when the graph is acyclic. Detection is a
// depth-first traversal with visiting/visited marks.
func (g *Graph) FindCycle() []string {
	marks := make(map[string]int, len(g.nodes))

	var stack []string

	var walk func(node string) []string

	walk = func(node string) []string {
		marks[node] = visiting
		stack = append(stack, node)

		for _, child := range g.Children(node) {
			switch marks[child] {
			case visiting:
				// Back edge: slice the cycle out of the visit stack.
				for i, n := range stack {
					if n == child {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])

						return cycle
					}
				}
			case unvisited:
				if cycle := walk(child); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		marks[node] = visited

		return nil
	}

	ordered := make([]string, len(g.nodes))
	copy(ordered, g.nodes)
	sort.Strings(ordered)

	for _, n := range ordered {
		if marks[n] == unvisited {
			if cycle := walk(n); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
