package storage

import (
	"fmt"
	"strings"

	"github.com/blackcoderx/restseq/pkg/extract"
	"github.com/xeipuuv/gojsonschema"
)

// GrammarFile is the on-disk form of a request collection.
type GrammarFile struct {
	Name     string       `yaml:"name"`               // Grammar name, used in reports
	Requests []RequestDef `yaml:"requests,omitempty"` // Requests in declaration order
}

// RequestDef is one request template and the values its response produces.
type RequestDef struct {
	ID         string         `yaml:"id"`                 // Stable request id, e.g. "/pokemon/{idOrName}"
	Primitives []PrimitiveDef `yaml:"primitives"`         // Ordered primitives
	Produces   []extract.Rule `yaml:"produces,omitempty"` // Extraction rules on the response
}

// PrimitiveDef is one primitive; which fields apply depends on Kind.
type PrimitiveDef struct {
	Kind    string   `yaml:"kind"`
	Value   string   `yaml:"value,omitempty"`   // static_string, basepath
	Name    string   `yaml:"name,omitempty"`    // fuzzable_*
	Default string   `yaml:"default,omitempty"` // fuzzable_int, fuzzable_string, fuzzable_bool
	Options []string `yaml:"options,omitempty"` // fuzzable_group
	Tag     string   `yaml:"tag,omitempty"`     // auth_token, dynamic_object
}

// grammarSchema is the JSON schema every grammar document must satisfy.
const grammarSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "requests"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "requests": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "primitives"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "primitives": {"type": "array", "items": {"$ref": "#/definitions/primitive"}},
          "produces": {"type": "array", "items": {"$ref": "#/definitions/rule"}}
        }
      }
    }
  },
  "definitions": {
    "rule": {
      "type": "object",
      "required": ["tag", "path"],
      "additionalProperties": false,
      "properties": {
        "tag": {"type": "string", "minLength": 1},
        "source": {"enum": ["body", "header"]},
        "path": {"type": "string", "minLength": 1}
      }
    },
    "primitive": {
      "type": "object",
      "required": ["kind"],
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["static_string", "basepath", "fuzzable_int", "fuzzable_string", "fuzzable_bool", "fuzzable_group", "auth_token", "dynamic_object"]},
        "value": {"type": "string"},
        "name": {"type": "string"},
        "default": {"type": ["string", "number", "boolean"]},
        "options": {"type": "array", "minItems": 1, "items": {"type": ["string", "number", "boolean"]}},
        "tag": {"type": "string", "minLength": 1}
      },
      "allOf": [
        {"if": {"properties": {"kind": {"enum": ["static_string", "basepath"]}}}, "then": {"required": ["value"]}},
        {"if": {"properties": {"kind": {"enum": ["fuzzable_int", "fuzzable_bool"]}}}, "then": {"required": ["default"]}},
        {"if": {"properties": {"kind": {"const": "fuzzable_group"}}}, "then": {"required": ["options"]}},
        {"if": {"properties": {"kind": {"enum": ["auth_token", "dynamic_object"]}}}, "then": {"required": ["tag"]}}
      ]
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(grammarSchema)

// validateDocument checks a decoded grammar document against grammarSchema.
func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate grammar: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid grammar: %s", strings.Join(msgs, "; "))
}
