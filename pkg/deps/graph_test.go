package deps

import (
	"errors"
	"testing"

	"github.com/blackcoderx/restseq/pkg/extract"
	"github.com/blackcoderx/restseq/pkg/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reqDef describes one request of a test collection: the tags it consumes and
// the tags its response produces.
type reqDef struct {
	id       string
	consumes []string
	produces []string
}

func collection(t *testing.T, defs ...reqDef) *grammar.Collection {
	t.Helper()
	coll := grammar.NewCollection("test")
	for _, s := range defs {
		prims := []grammar.Primitive{grammar.StaticString{Content: "GET /" + s.id}}
		for _, tag := range s.consumes {
			prims = append(prims, grammar.DynamicObject{Tag: tag})
		}
		req, err := grammar.NewRequest(s.id, prims...)
		require.NoError(t, err)
		require.NoError(t, coll.Add(req))
	}
	for _, s := range defs {
		for _, tag := range s.produces {
			require.NoError(t, coll.AddEdge(grammar.Edge{
				Producer: s.id,
				Rule:     extract.Rule{Tag: tag, Path: "$." + tag},
			}))
		}
	}
	return coll
}

func position(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return pos
}

func TestTopologicalOrder_ProducersFirst(t *testing.T) {
	// Declared consumers first to force reordering.
	coll := collection(t,
		reqDef{id: "get-evolution", consumes: []string{"species_id"}},
		reqDef{id: "get-pokemon", consumes: []string{"pokemon_id"}, produces: []string{"species_id"}},
		reqDef{id: "create-pokemon", produces: []string{"pokemon_id"}},
		reqDef{id: "list-berries"},
	)
	g, err := Build(coll)
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := position(order)
	for _, id := range g.IDs() {
		for _, dep := range g.Producers(id) {
			assert.Less(t, pos[dep.Producer], pos[id], "%s must precede %s", dep.Producer, id)
		}
	}
	assert.Equal(t, []string{"create-pokemon", "get-pokemon", "get-evolution", "list-berries"}, order)
}

func TestTopologicalOrder_StableTies(t *testing.T) {
	coll := collection(t,
		reqDef{id: "c"},
		reqDef{id: "a"},
		reqDef{id: "b"},
	)
	g, err := Build(coll)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, order)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	tests := []struct {
		name  string
		defs  []reqDef
		stuck []string
	}{
		{
			name: "two requests",
			defs: []reqDef{
				{id: "ok"},
				{id: "a", consumes: []string{"y"}, produces: []string{"x"}},
				{id: "b", consumes: []string{"x"}, produces: []string{"y"}},
			},
			stuck: []string{"a", "b"},
		},
		{
			name: "self dependency",
			defs: []reqDef{
				{id: "loop", consumes: []string{"x"}, produces: []string{"x"}},
			},
			stuck: []string{"loop"},
		},
		{
			name: "downstream consumers excluded",
			defs: []reqDef{
				{id: "a", consumes: []string{"y"}, produces: []string{"x"}},
				{id: "after", consumes: []string{"x"}, produces: []string{"z"}},
				{id: "b", consumes: []string{"x"}, produces: []string{"y"}},
				{id: "last", consumes: []string{"z"}},
			},
			stuck: []string{"a", "b"},
		},
		{
			name: "two separate cycles",
			defs: []reqDef{
				{id: "a", consumes: []string{"y"}, produces: []string{"x"}},
				{id: "b", consumes: []string{"x"}, produces: []string{"y"}},
				{id: "c", consumes: []string{"w"}, produces: []string{"w"}},
				{id: "d", consumes: []string{"w"}},
			},
			stuck: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(collection(t, tt.defs...))
			require.NoError(t, err)

			_, err = g.TopologicalOrder()
			var cycle *CyclicDependencyError
			require.True(t, errors.As(err, &cycle))
			assert.Equal(t, tt.stuck, cycle.Requests)
		})
	}
}

func TestBuild_DuplicateProducer(t *testing.T) {
	coll := collection(t,
		reqDef{id: "a", produces: []string{"x"}},
		reqDef{id: "b", produces: []string{"x"}},
	)
	_, err := Build(coll)
	assert.ErrorIs(t, err, ErrDuplicateProducer)
}

func TestBuild_Edges(t *testing.T) {
	coll := collection(t,
		reqDef{id: "p", produces: []string{"x", "y"}},
		reqDef{id: "c", consumes: []string{"x", "y", "z"}},
	)
	g, err := Build(coll)
	require.NoError(t, err)

	assert.Equal(t, []Dependency{{Producer: "p", Tag: "x"}, {Producer: "p", Tag: "y"}}, g.Producers("c"))
	assert.Equal(t, []string{"c"}, g.Consumers("p"))
	assert.Equal(t, []string{"z"}, g.Unbound("c"))

	p, ok := g.ProducerOf("y")
	require.True(t, ok)
	assert.Equal(t, "p", p)
	_, ok = g.ProducerOf("z")
	assert.False(t, ok)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "c"}, order)
}

func TestComponents(t *testing.T) {
	coll := collection(t,
		reqDef{id: "a", produces: []string{"x"}},
		reqDef{id: "solo"},
		reqDef{id: "b", consumes: []string{"x"}},
		reqDef{id: "c", produces: []string{"y"}},
		reqDef{id: "d", consumes: []string{"y"}},
	)
	g, err := Build(coll)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"solo"}, {"c", "d"}}, g.Components())
}
