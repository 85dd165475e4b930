package grammar

import (
	"bytes"
	"fmt"
)

// Request is an immutable request template: a stable id plus an ordered list of
// primitives. The id is a lookup key only and is never interpreted.
type Request struct {
	id         string
	primitives []Primitive
}

// NewRequest builds a request template. The primitive slice is copied.
func NewRequest(id string, primitives ...Primitive) (*Request, error) {
	if id == "" {
		return nil, fmt.Errorf("request id is required")
	}
	for i, p := range primitives {
		if p == nil {
			return nil, fmt.Errorf("request %s: primitive %d is nil", id, i)
		}
	}
	return &Request{
		id:         id,
		primitives: append([]Primitive(nil), primitives...),
	}, nil
}

// ID returns the request id.
func (r *Request) ID() string { return r.id }

// Primitives returns a copy of the primitive sequence.
func (r *Request) Primitives() []Primitive {
	return append([]Primitive(nil), r.primitives...)
}

// Render concatenates the rendered bytes of every primitive in order.
// No separators are inserted.
func (r *Request) Render(rc *RenderContext) ([]byte, error) {
	var buf bytes.Buffer
	for i, p := range r.primitives {
		b, err := Render(p, rc)
		if err != nil {
			return nil, fmt.Errorf("render %s: primitive %d (%s): %w", r.id, i, p.Kind(), err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// ConsumedTags returns the DynamicObject tags referenced by the request, first
// occurrence order, without duplicates.
func (r *Request) ConsumedTags() []string {
	return r.tags(KindDynamicObject)
}

// AuthTags returns the AuthToken tags referenced by the request.
func (r *Request) AuthTags() []string {
	return r.tags(KindAuthToken)
}

func (r *Request) tags(kind Kind) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, p := range r.primitives {
		var tag string
		switch p := p.(type) {
		case DynamicObject:
			if kind != KindDynamicObject {
				continue
			}
			tag = p.Tag
		case AuthToken:
			if kind != KindAuthToken {
				continue
			}
			tag = p.Tag
		default:
			continue
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}
