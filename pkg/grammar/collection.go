package grammar

import (
	"fmt"

	"github.com/blackcoderx/restseq/pkg/extract"
)

// Edge declares that the response of Producer yields the value of Rule.Tag.
type Edge struct {
	Producer string
	Rule     extract.Rule
}

// Collection owns every request template of a grammar together with its
// dependency edges. It is built once at load time and only read afterwards.
type Collection struct {
	Name string

	order []string
	byID  map[string]*Request
	edges []Edge
}

// NewCollection creates an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{
		Name: name,
		byID: make(map[string]*Request),
	}
}

// Add appends a request; ids must be unique.
func (c *Collection) Add(r *Request) error {
	if r == nil {
		return fmt.Errorf("nil request")
	}
	if _, ok := c.byID[r.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, r.ID())
	}
	c.byID[r.ID()] = r
	c.order = append(c.order, r.ID())
	return nil
}

// AddEdge registers an extraction rule on an already added producer.
func (c *Collection) AddEdge(e Edge) error {
	if _, ok := c.byID[e.Producer]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, e.Producer)
	}
	if err := e.Rule.Validate(); err != nil {
		return fmt.Errorf("edge from %s: %w", e.Producer, err)
	}
	c.edges = append(c.edges, e)
	return nil
}

// Get looks a request up by id.
func (c *Collection) Get(id string) (*Request, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Len returns the number of requests.
func (c *Collection) Len() int { return len(c.order) }

// IDs returns request ids in insertion order.
func (c *Collection) IDs() []string {
	return append([]string(nil), c.order...)
}

// Requests returns the templates in insertion order.
func (c *Collection) Requests() []*Request {
	out := make([]*Request, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Edges returns every dependency edge in declaration order.
func (c *Collection) Edges() []Edge {
	return append([]Edge(nil), c.edges...)
}

// EdgesFor returns the edges whose producer is id.
func (c *Collection) EdgesFor(id string) []Edge {
	var out []Edge
	for _, e := range c.edges {
		if e.Producer == id {
			out = append(out, e)
		}
	}
	return out
}
