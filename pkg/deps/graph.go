// Package deps derives producer/consumer relationships between requests and
// orders them so every producer runs before its consumers.
package deps

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blackcoderx/restseq/pkg/grammar"
)

// ErrDuplicateProducer is returned when two requests bind the same tag.
var ErrDuplicateProducer = errors.New("tag bound by more than one producer")

// CyclicDependencyError lists the requests caught in at least one cycle, in
// declaration order. Requests that only depend on a cycle are left out.
type CyclicDependencyError struct {
	Requests []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency among requests: " + strings.Join(e.Requests, ", ")
}

// Dependency is one incoming edge of a consumer.
type Dependency struct {
	Producer string
	Tag      string
}

// Graph is the directed producer -> consumer graph of a collection.
type Graph struct {
	ids      []string
	index    map[string]int
	producer map[string]string       // tag -> producer id
	in       map[string][]Dependency // consumer -> producers
	out      map[string][]string     // producer -> consumers
	unbound  map[string][]string     // consumer -> tags with no producer
}

// Build derives the graph. An edge producer -> consumer exists whenever the
// consumer holds a DynamicObject tag bound by one of the producer's rules.
func Build(c *grammar.Collection) (*Graph, error) {
	g := &Graph{
		ids:      c.IDs(),
		index:    make(map[string]int),
		producer: make(map[string]string),
		in:       make(map[string][]Dependency),
		out:      make(map[string][]string),
		unbound:  make(map[string][]string),
	}
	for i, id := range g.ids {
		g.index[id] = i
	}

	for _, e := range c.Edges() {
		if prev, ok := g.producer[e.Rule.Tag]; ok && prev != e.Producer {
			return nil, fmt.Errorf("%w: %q (%s, %s)", ErrDuplicateProducer, e.Rule.Tag, prev, e.Producer)
		}
		g.producer[e.Rule.Tag] = e.Producer
	}

	for _, r := range c.Requests() {
		seen := make(map[string]bool)
		for _, tag := range r.ConsumedTags() {
			p, ok := g.producer[tag]
			if !ok {
				g.unbound[r.ID()] = append(g.unbound[r.ID()], tag)
				continue
			}
			g.in[r.ID()] = append(g.in[r.ID()], Dependency{Producer: p, Tag: tag})
			if !seen[p] {
				seen[p] = true
				g.out[p] = append(g.out[p], r.ID())
			}
		}
	}
	return g, nil
}

// IDs returns every request id in declaration order.
func (g *Graph) IDs() []string { return append([]string(nil), g.ids...) }

// Producers returns the incoming dependencies of id.
func (g *Graph) Producers(id string) []Dependency {
	return append([]Dependency(nil), g.in[id]...)
}

// Consumers returns the requests that consume a value produced by id.
func (g *Graph) Consumers(id string) []string {
	return append([]string(nil), g.out[id]...)
}

// ProducerOf returns the request that binds tag.
func (g *Graph) ProducerOf(tag string) (string, bool) {
	p, ok := g.producer[tag]
	return p, ok
}

// Unbound returns the consumed tags of id that no request produces.
func (g *Graph) Unbound(id string) []string {
	return append([]string(nil), g.unbound[id]...)
}

// TopologicalOrder returns every id such that producers precede their
// consumers. Ties are broken by declaration order, so the result is stable
// across runs and unrelated requests keep their relative order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		// One count per distinct producer, matching out-edge dedup in Build.
		producers := make(map[string]bool)
		for _, d := range g.in[id] {
			producers[d.Producer] = true
		}
		indegree[id] = len(producers)
	}

	// ready holds declaration indices, kept sorted.
	var ready []int
	for i, id := range g.ids {
		if indegree[id] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		next := g.ids[ready[0]]
		ready = ready[1:]
		order = append(order, next)

		for _, consumer := range g.out[next] {
			indegree[consumer]--
			if indegree[consumer] == 0 {
				idx := g.index[consumer]
				pos := sort.SearchInts(ready, idx)
				ready = append(ready, 0)
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = idx
			}
		}
	}

	if len(order) != len(g.ids) {
		stuck := make(map[string]bool)
		for _, id := range g.ids {
			if indegree[id] > 0 {
				stuck[id] = true
			}
		}
		var members []string
		for _, id := range g.ids {
			if stuck[id] && g.reachesItself(id, stuck) {
				members = append(members, id)
			}
		}
		return nil, &CyclicDependencyError{Requests: members}
	}
	return order, nil
}

// reachesItself walks out-edges restricted to within and reports whether id
// leads back to itself.
func (g *Graph) reachesItself(id string, within map[string]bool) bool {
	visited := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, consumer := range g.out[next] {
			if consumer == id {
				return true
			}
			if within[consumer] && !visited[consumer] {
				visited[consumer] = true
				stack = append(stack, consumer)
			}
		}
	}
	return false
}

// Components partitions the requests into weakly connected groups of the
// dependency graph. Groups are ordered by their first member and members keep
// declaration order. Distinct groups share no values and may run concurrently.
func (g *Graph) Components() [][]string {
	parent := make([]int, len(g.ids))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for producer, consumers := range g.out {
		for _, c := range consumers {
			union(g.index[producer], g.index[c])
		}
	}

	groups := make(map[int][]string)
	var roots []int
	for i, id := range g.ids {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], id)
	}

	out := make([][]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, groups[r])
	}
	return out
}
