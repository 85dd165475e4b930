// Package resolver materializes dynamic primitives: fuzzable overrides,
// authentication tokens, and values extracted from earlier responses.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackcoderx/restseq/pkg/auth"
	"github.com/blackcoderx/restseq/pkg/grammar"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AuthRefreshError reports a token that could not be obtained even after one refresh.
type AuthRefreshError struct {
	Tag string
	Err error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("auth token %q: refresh failed: %v", e.Tag, e.Err)
}

func (e *AuthRefreshError) Unwrap() error { return e.Err }

// Resolver implements grammar.Resolver for one run. The value store lives as
// long as the Resolver; create a new one per run.
type Resolver struct {
	store     *Store
	tokens    auth.TokenProvider
	refresh   *singleflight.Group
	overrides map[string]string
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTokenProvider sets the provider behind AuthToken primitives.
func WithTokenProvider(p auth.TokenProvider) Option {
	return func(r *Resolver) { r.tokens = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStore shares an existing value store.
func WithStore(s *Store) Option {
	return func(r *Resolver) {
		if s != nil {
			r.store = s
		}
	}
}

// New creates a Resolver with an empty value store.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		store:   NewStore(),
		refresh: &singleflight.Group{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithOverrides returns a view of r for a single render pass in which
// fuzzable values named in overrides replace their defaults. The view shares
// the value store and token provider.
func (r *Resolver) WithOverrides(overrides map[string]string) *Resolver {
	view := *r
	view.overrides = overrides
	return &view
}

// Store exposes the value store.
func (r *Resolver) Store() *Store { return r.store }

// Bind records a value extracted from a producer response.
func (r *Resolver) Bind(tag, value string) {
	r.store.Bind(tag, value)
}

// Lookup returns the bound value of tag.
func (r *Resolver) Lookup(tag string) (string, bool) {
	return r.store.Lookup(tag)
}

// Resolve produces the concrete value for ref.
func (r *Resolver) Resolve(ctx context.Context, ref grammar.Ref) (string, error) {
	switch {
	case ref.Kind == grammar.KindAuthToken:
		return r.resolveToken(ctx, ref.Tag)
	case ref.Kind == grammar.KindDynamicObject:
		if v, ok := r.store.Lookup(ref.Tag); ok {
			return v, nil
		}
		return "", &grammar.UnresolvedTagError{Tag: ref.Tag, Kind: ref.Kind}
	case ref.Kind.IsFuzzable():
		if v, ok := r.overrides[ref.Tag]; ok && ref.Tag != "" {
			return v, nil
		}
		return ref.Default, nil
	default:
		return "", fmt.Errorf("resolver: %s primitives are not dynamic", ref.Kind)
	}
}

// resolveToken asks the provider for the current token. An expired token is
// refreshed exactly once and the refreshed value is used as is.
func (r *Resolver) resolveToken(ctx context.Context, tag string) (string, error) {
	if r.tokens == nil {
		return "", &grammar.UnresolvedTagError{Tag: tag, Kind: grammar.KindAuthToken}
	}

	token, err := r.tokens.CurrentToken(ctx, tag)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, auth.ErrUnknownTag):
		return "", &grammar.UnresolvedTagError{Tag: tag, Kind: grammar.KindAuthToken}
	case !errors.Is(err, auth.ErrTokenExpired):
		return "", &AuthRefreshError{Tag: tag, Err: err}
	}

	r.logger.Debug("Refreshing auth token", zap.String("tag", tag))
	// Concurrent renders waiting on the same tag share one refresh.
	v, err, _ := r.refresh.Do(tag, func() (any, error) {
		return r.tokens.Refresh(ctx, tag)
	})
	if err != nil {
		return "", &AuthRefreshError{Tag: tag, Err: err}
	}
	token, _ = v.(string)
	if token == "" {
		return "", &AuthRefreshError{Tag: tag, Err: auth.ErrTokenExpired}
	}
	return token, nil
}
