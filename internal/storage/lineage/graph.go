package lineage

import (
	"iter"
	"sync"
	"time"

	"github.com/stratadb/strata/internal/errors"
)

// Graph is the causal lineage structure over write events: a DAG where an
// edge parent -> child means the child write named the parent as its
// predecessor. Record is the only mutator; traversals are read-only.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	edges int
}

type node struct {
	parents   []string
	children  []string
	createdAt time.Time
}

// NewGraph creates an empty lineage graph
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// Record adds a write event with its causal parents. Every parent must
// already be recorded. Fails with DuplicateNode if the write was already
// recorded and CycleDetected if the new edges would close a cycle.
func (g *Graph) Record(writeID string, parents []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[writeID]; exists {
		return errors.DuplicateNode(writeID)
	}

	for _, parent := range parents {
		if parent == writeID {
			return errors.CycleDetected(writeID)
		}
		if _, exists := g.nodes[parent]; !exists {
			return errors.UnknownParent(writeID, parent)
		}
	}

	// A fresh node has no children, so a cycle through it is only possible
	// if the node were reachable from one of its parents already. Check
	// anyway: a corrupted replay could hand us inconsistent edges.
	for _, parent := range parents {
		if g.reachableLocked(writeID, parent) {
			return errors.CycleDetected(writeID)
		}
	}

	n := &node{
		parents:   append([]string(nil), parents...),
		createdAt: time.Now(),
	}
	g.nodes[writeID] = n

	for _, parent := range parents {
		p := g.nodes[parent]
		p.children = append(p.children, writeID)
		g.edges++
	}

	return nil
}

// reachableLocked reports whether target is reachable from start following
// parent edges. Caller holds the lock.
func (g *Graph) reachableLocked(target, start string) bool {
	if start == target {
		return true
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[current]
		if !ok {
			continue
		}
		for _, parent := range n.parents {
			if parent == target {
				return true
			}
			if !seen[parent] {
				seen[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false
}

// Contains reports whether a write is recorded
func (g *Graph) Contains(writeID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[writeID]
	return ok
}

// Ancestors returns a lazy, restartable breadth-first traversal of the
// write's ancestors. The starting node itself is not yielded. Each node is
// yielded at most once.
func (g *Graph) Ancestors(writeID string) iter.Seq[string] {
	return g.traverse(writeID, func(n *node) []string { return n.parents })
}

// Descendants is the symmetric traversal over child edges
func (g *Graph) Descendants(writeID string) iter.Seq[string] {
	return g.traverse(writeID, func(n *node) []string { return n.children })
}

func (g *Graph) traverse(start string, next func(*node) []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := map[string]bool{start: true}
		queue := []string{start}
		first := true

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			if !first {
				if !yield(current) {
					return
				}
			}
			first = false

			g.mu.RLock()
			n, ok := g.nodes[current]
			var frontier []string
			if ok {
				frontier = append(frontier, next(n)...)
			}
			g.mu.RUnlock()

			for _, id := range frontier {
				if !seen[id] {
					seen[id] = true
					queue = append(queue, id)
				}
			}
		}
	}
}

// LeastCommonAncestor returns the closest common ancestor of a and b, where
// closest means first found walking b's ancestry breadth-first. A node
// counts as its own ancestor, so if a lies on b's ancestry the result is a.
// maxDepth bounds the size of a's collected ancestor set; zero means
// unbounded. Returns false when the histories are disjoint.
func (g *Graph) LeastCommonAncestor(a, b string, maxDepth int) (string, bool) {
	if !g.Contains(a) || !g.Contains(b) {
		return "", false
	}

	ancestorsOfA := map[string]bool{a: true}
	for id := range g.Ancestors(a) {
		if maxDepth > 0 && len(ancestorsOfA) > maxDepth {
			break
		}
		ancestorsOfA[id] = true
	}

	if ancestorsOfA[b] {
		return b, true
	}
	for id := range g.Ancestors(b) {
		if ancestorsOfA[id] {
			return id, true
		}
	}
	return "", false
}

// DescendantCount returns the number of distinct descendants of a write.
// Feeds the fitness score used for cold demotion decisions.
func (g *Graph) DescendantCount(writeID string) int {
	count := 0
	for range g.Descendants(writeID) {
		count++
	}
	return count
}

// Roots returns all writes with no recorded parent
func (g *Graph) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []string
	for id, n := range g.nodes {
		if len(n.parents) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Frontier returns all writes with no recorded children
func (g *Graph) Frontier() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var frontier []string
	for id, n := range g.nodes {
		if len(n.children) == 0 {
			frontier = append(frontier, id)
		}
	}
	return frontier
}

// NodeCount returns the number of recorded writes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of recorded causal edges
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}
