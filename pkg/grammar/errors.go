package grammar

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRequest is returned when two requests share an id.
	ErrDuplicateRequest = errors.New("duplicate request id")
	// ErrUnknownRequest is returned when an edge names a producer that was never added.
	ErrUnknownRequest = errors.New("unknown request id")
)

// UnresolvedTagError reports a dynamic primitive whose tag has no bound value.
type UnresolvedTagError struct {
	Tag  string
	Kind Kind
}

func (e *UnresolvedTagError) Error() string {
	return fmt.Sprintf("unresolved %s tag %q", e.Kind, e.Tag)
}
