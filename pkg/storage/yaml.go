// Package storage reads grammar and environment files and persists run results.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blackcoderx/restseq/pkg/grammar"
	"gopkg.in/yaml.v3"
)

// LoadGrammar reads, validates and compiles a grammar file.
func LoadGrammar(filePath string, env Environment) (*grammar.Collection, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar: %w", err)
	}
	coll, err := ParseGrammar(data, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return coll, nil
}

// ParseGrammar validates a YAML grammar document and builds its collection.
func ParseGrammar(data []byte, env Environment) (*grammar.Collection, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var file GrammarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode grammar: %w", err)
	}
	return Compile(file, env)
}

// Compile turns a decoded grammar file into a collection, substituting
// environment placeholders in static strings and base paths.
func Compile(file GrammarFile, env Environment) (*grammar.Collection, error) {
	coll := grammar.NewCollection(file.Name)

	for _, def := range file.Requests {
		primitives := make([]grammar.Primitive, 0, len(def.Primitives))
		for i, pd := range def.Primitives {
			p, err := compilePrimitive(pd, env)
			if err != nil {
				return nil, fmt.Errorf("request %s: primitive %d: %w", def.ID, i, err)
			}
			primitives = append(primitives, p)
		}

		req, err := grammar.NewRequest(def.ID, primitives...)
		if err != nil {
			return nil, err
		}
		if err := coll.Add(req); err != nil {
			return nil, err
		}
	}

	// Edges after all requests so every producer exists.
	for _, def := range file.Requests {
		for _, rule := range def.Produces {
			if err := coll.AddEdge(grammar.Edge{Producer: def.ID, Rule: rule}); err != nil {
				return nil, err
			}
		}
	}

	return coll, nil
}

func compilePrimitive(pd PrimitiveDef, env Environment) (grammar.Primitive, error) {
	kind, ok := grammar.ParseKind(pd.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown primitive kind %q", pd.Kind)
	}

	switch kind {
	case grammar.KindStaticString:
		value, err := substitute(pd.Value, env)
		if err != nil {
			return nil, err
		}
		return grammar.StaticString{Content: value}, nil
	case grammar.KindBasePath:
		value, err := substitute(pd.Value, env)
		if err != nil {
			return nil, err
		}
		return grammar.BasePath{Value: value}, nil
	case grammar.KindFuzzableInt:
		n, err := strconv.ParseInt(strings.TrimSpace(pd.Default), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("fuzzable_int %q: default %q is not an integer", pd.Name, pd.Default)
		}
		return grammar.FuzzableInt{Name: pd.Name, Default: n}, nil
	case grammar.KindFuzzableString:
		return grammar.FuzzableString{Name: pd.Name, Default: pd.Default}, nil
	case grammar.KindFuzzableBool:
		b, err := strconv.ParseBool(strings.TrimSpace(pd.Default))
		if err != nil {
			return nil, fmt.Errorf("fuzzable_bool %q: default %q is not a boolean", pd.Name, pd.Default)
		}
		return grammar.FuzzableBool{Name: pd.Name, Default: b}, nil
	case grammar.KindFuzzableGroup:
		return grammar.NewFuzzableGroup(pd.Name, pd.Options...)
	case grammar.KindAuthToken:
		return grammar.AuthToken{Tag: pd.Tag}, nil
	case grammar.KindDynamicObject:
		return grammar.DynamicObject{Tag: pd.Tag}, nil
	default:
		return nil, fmt.Errorf("unsupported primitive kind %q", pd.Kind)
	}
}

func substitute(text string, env Environment) (string, error) {
	out, missing := env.Substitute(text)
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ListGrammars lists the grammar files in the grammars directory
func ListGrammars(baseDir string) ([]string, error) {
	return listYAML(GetGrammarsDir(baseDir))
}

// ResolveGrammarPath accepts a path or a bare grammar name from the grammars directory.
func ResolveGrammarPath(baseDir, nameOrPath string) string {
	if _, err := os.Stat(nameOrPath); err == nil {
		return nameOrPath
	}
	filename := nameOrPath
	if !strings.HasSuffix(filename, ".yaml") && !strings.HasSuffix(filename, ".yml") {
		filename = strings.ToLower(strings.ReplaceAll(filename, " ", "-")) + ".yaml"
	}
	return filepath.Join(GetGrammarsDir(baseDir), filename)
}

// GetGrammarsDir returns the grammars directory path
func GetGrammarsDir(baseDir string) string {
	return filepath.Join(baseDir, "grammars")
}

// GetEnvironmentsDir returns the environments directory path
func GetEnvironmentsDir(baseDir string) string {
	return filepath.Join(baseDir, "environments")
}

// GetResultsDir returns the results directory path
func GetResultsDir(baseDir string) string {
	return filepath.Join(baseDir, "results")
}
