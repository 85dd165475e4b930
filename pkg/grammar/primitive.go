// Package grammar models REST requests as ordered sequences of typed primitives.
// A Request renders to raw HTTP/1.1 bytes by concatenating its primitives; dynamic
// primitives are materialized through a Resolver supplied in the RenderContext.
package grammar

import (
	"context"
	"fmt"
	"strconv"
)

// Kind identifies the variant of a Primitive.
type Kind int

const (
	KindStaticString Kind = iota
	KindBasePath
	KindFuzzableInt
	KindFuzzableString
	KindFuzzableBool
	KindFuzzableGroup
	KindAuthToken
	KindDynamicObject
)

var kindNames = map[Kind]string{
	KindStaticString:   "static_string",
	KindBasePath:       "basepath",
	KindFuzzableInt:    "fuzzable_int",
	KindFuzzableString: "fuzzable_string",
	KindFuzzableBool:   "fuzzable_bool",
	KindFuzzableGroup:  "fuzzable_group",
	KindAuthToken:      "auth_token",
	KindDynamicObject:  "dynamic_object",
}

// String returns the kind name used in grammar files and error messages.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a grammar-file kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// IsFuzzable reports whether values of this kind may be overridden by a fuzzing strategy.
func (k Kind) IsFuzzable() bool {
	switch k {
	case KindFuzzableInt, KindFuzzableString, KindFuzzableBool, KindFuzzableGroup:
		return true
	}
	return false
}

// Primitive is a single typed token of a request. The set of implementations is
// closed; Render switches over all of them.
type Primitive interface {
	Kind() Kind
	primitive()
}

// StaticString contributes literal bytes, including separators such as " " and "\r\n".
type StaticString struct {
	Content string
}

// BasePath is a path prefix that the run configuration may replace.
type BasePath struct {
	Value string
}

// FuzzableInt renders Default unless a strategy overrides the value named Name.
type FuzzableInt struct {
	Name    string
	Default int64
}

// FuzzableString renders Default unless a strategy overrides the value named Name.
type FuzzableString struct {
	Name    string
	Default string
}

// FuzzableBool renders Default unless a strategy overrides the value named Name.
type FuzzableBool struct {
	Name    string
	Default bool
}

// FuzzableGroup is an enumeration; it renders its first option by default.
type FuzzableGroup struct {
	Name    string
	Options []string
}

// AuthToken is replaced by the current header lines of the named token.
type AuthToken struct {
	Tag string
}

// DynamicObject is replaced by a value extracted from an earlier response.
type DynamicObject struct {
	Tag string
}

func (StaticString) Kind() Kind   { return KindStaticString }
func (BasePath) Kind() Kind       { return KindBasePath }
func (FuzzableInt) Kind() Kind    { return KindFuzzableInt }
func (FuzzableString) Kind() Kind { return KindFuzzableString }
func (FuzzableBool) Kind() Kind   { return KindFuzzableBool }
func (FuzzableGroup) Kind() Kind  { return KindFuzzableGroup }
func (AuthToken) Kind() Kind      { return KindAuthToken }
func (DynamicObject) Kind() Kind  { return KindDynamicObject }

func (StaticString) primitive()   {}
func (BasePath) primitive()       {}
func (FuzzableInt) primitive()    {}
func (FuzzableString) primitive() {}
func (FuzzableBool) primitive()   {}
func (FuzzableGroup) primitive()  {}
func (AuthToken) primitive()      {}
func (DynamicObject) primitive()  {}

// NewFuzzableGroup builds an enumeration primitive; it needs at least one option.
func NewFuzzableGroup(name string, options ...string) (FuzzableGroup, error) {
	if len(options) == 0 {
		return FuzzableGroup{}, fmt.Errorf("fuzzable group %q has no options", name)
	}
	return FuzzableGroup{Name: name, Options: append([]string(nil), options...)}, nil
}

// Ref describes a value that a Resolver has to produce.
type Ref struct {
	Kind    Kind
	Tag     string
	Default string
}

// Resolver materializes dynamic and fuzzable primitives.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (string, error)
}

// RenderContext carries everything a render pass may consult.
type RenderContext struct {
	Context  context.Context
	Resolver Resolver
	// BasePath replaces the value of every BasePath primitive when non-empty.
	BasePath string
}

func (rc *RenderContext) ctx() context.Context {
	if rc == nil || rc.Context == nil {
		return context.Background()
	}
	return rc.Context
}

// Render materializes one primitive.
func Render(p Primitive, rc *RenderContext) ([]byte, error) {
	switch p := p.(type) {
	case StaticString:
		return []byte(p.Content), nil
	case BasePath:
		if rc != nil && rc.BasePath != "" {
			return []byte(rc.BasePath), nil
		}
		return []byte(p.Value), nil
	case FuzzableInt:
		return fuzzable(rc, Ref{Kind: p.Kind(), Tag: p.Name, Default: strconv.FormatInt(p.Default, 10)})
	case FuzzableString:
		return fuzzable(rc, Ref{Kind: p.Kind(), Tag: p.Name, Default: p.Default})
	case FuzzableBool:
		return fuzzable(rc, Ref{Kind: p.Kind(), Tag: p.Name, Default: strconv.FormatBool(p.Default)})
	case FuzzableGroup:
		if len(p.Options) == 0 {
			return nil, fmt.Errorf("fuzzable group %q has no options", p.Name)
		}
		return fuzzable(rc, Ref{Kind: p.Kind(), Tag: p.Name, Default: p.Options[0]})
	case AuthToken:
		return dynamic(rc, Ref{Kind: p.Kind(), Tag: p.Tag})
	case DynamicObject:
		return dynamic(rc, Ref{Kind: p.Kind(), Tag: p.Tag})
	default:
		return nil, fmt.Errorf("unknown primitive %T", p)
	}
}

func fuzzable(rc *RenderContext, ref Ref) ([]byte, error) {
	if rc == nil || rc.Resolver == nil {
		return []byte(ref.Default), nil
	}
	v, err := rc.Resolver.Resolve(rc.ctx(), ref)
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func dynamic(rc *RenderContext, ref Ref) ([]byte, error) {
	if rc == nil || rc.Resolver == nil {
		return nil, &UnresolvedTagError{Tag: ref.Tag, Kind: ref.Kind}
	}
	v, err := rc.Resolver.Resolve(rc.ctx(), ref)
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}
