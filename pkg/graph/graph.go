// Package graph provides precedence reasoning over task breakdowns:
// cycle detection, deterministic topological ordering, parallel level
// grouping, and critical path extraction.
package graph

import (
	"errors"
	"sort"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// ErrHasCycles indicates an ordering was requested on a cyclic graph.
var ErrHasCycles = errors.New("dependency graph has cycles")

// Graph holds task precedence edges. A task's prerequisites must complete
// before the task may run. Unknown prerequisite ids are accepted at AddTask
// time so a breakdown can load in any order; Validate surfaces them.
//
// Graph is not safe for concurrent mutation; build it, then read it.
type Graph struct {
	nodes      map[string]bool
	prereqs    map[string][]string // task -> its prerequisites
	dependents map[string][]string // task -> tasks that depend on it
}

// New returns an empty graph
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]bool),
		prereqs:    make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// FromBreakdown builds a graph from a breakdown's leaf tasks
func FromBreakdown(b *models.WorkBreakdown) (*Graph, error) {
	g := New()
	for _, t := range b.AllTasks() {
		if err := g.AddTask(t.ID, t.DependsOn...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddTask registers a task and its prerequisite edges.
// Empty and duplicate ids are rejected, as are self-edges. Prerequisites
// that are not yet known are recorded and checked later by Validate.
func (g *Graph) AddTask(id string, prerequisites ...string) error {
	if id == "" {
		return faults.New(faults.CodeValidation, "task id must not be empty")
	}
	if g.nodes[id] {
		return faults.Newf(faults.CodeConflict, "task %q already in graph", id)
	}
	for _, p := range prerequisites {
		if p == id {
			return faults.Newf(faults.CodeValidation, "task %q cannot depend on itself", id)
		}
	}
	g.nodes[id] = true
	g.prereqs[id] = append([]string(nil), prerequisites...)
	for _, p := range prerequisites {
		g.dependents[p] = append(g.dependents[p], id)
	}
	return nil
}

// Len returns the number of tasks in the graph
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Has reports whether the task id is in the graph
func (g *Graph) Has(id string) bool {
	return g.nodes[id]
}

// Prerequisites returns a copy of the task's prerequisite list
func (g *Graph) Prerequisites(id string) []string {
	return append([]string(nil), g.prereqs[id]...)
}

// Dependents returns a copy of the tasks that depend on id
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// ids returns all node ids sorted lexicographically.
// Deterministic iteration order is a contract for every traversal below.
func (g *Graph) ids() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// danglingRefs returns prerequisite ids that name no known task
func (g *Graph) danglingRefs() []string {
	var missing []string
	seen := make(map[string]bool)
	for _, id := range g.ids() {
		for _, p := range g.prereqs[id] {
			if !g.nodes[p] && !seen[p] {
				seen[p] = true
				missing = append(missing, p)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// Validate succeeds iff every prerequisite reference resolves and the
// graph is acyclic.
func (g *Graph) Validate() error {
	if missing := g.danglingRefs(); len(missing) > 0 {
		return faults.New(faults.CodeValidation,
			"dependency references unknown tasks").
			WithDetail("missing", missing)
	}
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return faults.Wrap(faults.CodeConflict,
			"breakdown contains circular dependencies", ErrHasCycles).
			WithDetail("cycles", cycles)
	}
	return nil
}

// DetectCycles finds every simple cycle reachable through prerequisite
// edges using a depth-first walk with an explicit recursion stack. All
// cycles are reported, not just the first, so blockers can list each one.
// Prerequisites that are not in the graph are skipped; they cannot close
// a cycle.
func (g *Graph) DetectCycles() [][]string {
	var cycles [][]string
	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	var stack []string
	onStack := make(map[string]int) // id -> index in stack
	reported := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		state[id] = 1
		onStack[id] = len(stack)
		stack = append(stack, id)

		// Sorted edge order keeps cycle reporting deterministic.
		edges := append([]string(nil), g.prereqs[id]...)
		sort.Strings(edges)
		for _, p := range edges {
			if !g.nodes[p] {
				continue
			}
			switch state[p] {
			case 0:
				visit(p)
			case 1:
				cycle := append([]string(nil), stack[onStack[p]:]...)
				if key := canonicalCycleKey(cycle); !reported[key] {
					reported[key] = true
					cycles = append(cycles, canonicalCycle(cycle))
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		state[id] = 2
	}

	for _, id := range g.ids() {
		if state[id] == 0 {
			visit(id)
		}
	}
	return cycles
}

// canonicalCycle rotates a cycle so its lexicographically smallest node
// comes first, preserving traversal order.
func canonicalCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	out = append(out, cycle[:min]...)
	return out
}

func canonicalCycleKey(cycle []string) string {
	c := canonicalCycle(cycle)
	key := ""
	for _, id := range c {
		key += id + "\x00"
	}
	return key
}

// TopologicalOrder returns every task id with prerequisites before
// dependents, computed with Kahn's algorithm over prerequisite counts.
// When several tasks are ready at once the lexicographically smallest id
// is emitted first, so the order is fully deterministic.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.prereqs[id])
	}

	var ready []string
	for _, id := range g.ids() {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// ids() seeds ready sorted; insertions below keep it sorted.
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				at := sort.SearchStrings(ready, dep)
				ready = append(ready, "")
				copy(ready[at+1:], ready[at:])
				ready[at] = dep
			}
		}
	}

	return order, nil
}

// ParallelGroups partitions tasks into execution levels: tasks with no
// prerequisites are level 0, every other task sits one past its deepest
// prerequisite. Levels come back in ascending order, ids within a level
// sorted lexicographically. Tasks in one level share no ordering
// constraint and may run concurrently.
func (g *Graph) ParallelGroups() ([][]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	maxLevel := 0
	for _, id := range order {
		l := 0
		for _, p := range g.prereqs[id] {
			if level[p]+1 > l {
				l = level[p] + 1
			}
		}
		level[id] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	groups := make([][]string, maxLevel+1)
	for _, id := range order {
		groups[level[id]] = append(groups[level[id]], id)
	}
	for _, group := range groups {
		sort.Strings(group)
	}
	return groups, nil
}

// CriticalPath returns the longest prerequisite chain in the graph,
// measured by edge count, from a root task to its furthest dependent.
// Ties at every choice point resolve to the lexicographically smallest
// candidate so the path is stable across runs.
func (g *Graph) CriticalPath() ([]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	dist := make(map[string]int, len(order))
	pred := make(map[string]string, len(order))
	for _, id := range order {
		best := 0
		bestPred := ""
		prereqs := append([]string(nil), g.prereqs[id]...)
		sort.Strings(prereqs)
		for _, p := range prereqs {
			if d := dist[p] + 1; d > best {
				best = d
				bestPred = p
			}
		}
		dist[id] = best
		if bestPred != "" {
			pred[id] = bestPred
		}
	}

	end := ""
	for _, id := range order {
		if end == "" || dist[id] > dist[end] || (dist[id] == dist[end] && id < end) {
			end = id
		}
	}

	var path []string
	for id := end; id != ""; id = pred[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// ReadyTasks returns every not-yet-completed task whose prerequisites are
// all completed, sorted lexicographically.
func (g *Graph) ReadyTasks(completed map[string]bool) []string {
	var ready []string
	for _, id := range g.ids() {
		if completed[id] {
			continue
		}
		ok := true
		for _, p := range g.prereqs[id] {
			if !completed[p] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}
