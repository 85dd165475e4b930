// Package extract pulls values out of responses so later requests can consume them.
package extract

import (
	"fmt"
	"strings"

	"github.com/blackcoderx/restseq/pkg/transport"
	"github.com/tidwall/gjson"
)

// Source selects which part of a response a rule reads.
type Source string

const (
	SourceBody   Source = "body"
	SourceHeader Source = "header"
)

// Rule binds the value found at Path to Tag.
//
// Body paths use gjson syntax; a leading "$." as written in JSONPath-style
// configurations is accepted and dropped. Header paths are header names.
type Rule struct {
	Tag    string `yaml:"tag" json:"tag"`
	Source Source `yaml:"source,omitempty" json:"source,omitempty"`
	Path   string `yaml:"path" json:"path"`
}

// Validate checks that the rule is complete.
func (r Rule) Validate() error {
	if r.Tag == "" {
		return fmt.Errorf("extraction rule: tag is required")
	}
	if r.Path == "" {
		return fmt.Errorf("extraction rule %s: path is required", r.Tag)
	}
	switch r.Source {
	case "", SourceBody, SourceHeader:
		return nil
	default:
		return fmt.Errorf("extraction rule %s: unknown source %q (use: body, header)", r.Tag, r.Source)
	}
}

// Miss records a rule whose target was absent from the producer's response.
// It is a warning, never a run failure.
type Miss struct {
	Producer string `json:"producer"`
	Tag      string `json:"tag"`
	Path     string `json:"path"`
}

func (m Miss) Error() string {
	return fmt.Sprintf("extraction miss: %s did not yield %q at %s", m.Producer, m.Tag, m.Path)
}

// Apply evaluates rule against resp. The boolean is false when the target is
// absent or null.
func Apply(rule Rule, resp *transport.Response) (string, bool) {
	if resp == nil {
		return "", false
	}

	if rule.Source == SourceHeader {
		if resp.Header == nil {
			return "", false
		}
		values := resp.Header.Values(rule.Path)
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	}

	res := gjson.GetBytes(resp.Body, normalizePath(rule.Path))
	if !res.Exists() || res.Type == gjson.Null {
		return "", false
	}
	if res.IsObject() || res.IsArray() {
		return res.Raw, true
	}
	return res.String(), true
}

func normalizePath(path string) string {
	switch {
	case path == "$":
		return "@this"
	case strings.HasPrefix(path, "$."):
		return strings.TrimPrefix(path, "$.")
	default:
		return path
	}
}
