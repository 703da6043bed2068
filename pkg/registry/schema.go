// pkg/registry/schema.go
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// catalogueSchema is the shape every sources file must satisfy.
const catalogueSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["sources"],
	"properties": {
		"sources": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "kind", "priority", "enabled"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"displayName": {"type": "string"},
					"kind": {"type": "string", "enum": ["http", "elasticsearch"]},
					"priority": {"type": "integer", "minimum": 0},
					"enabled": {"type": "boolean"}
				},
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

type catalogue struct {
	Sources []Entry `json:"sources"`
}

// Parse validates data against the catalogue schema and builds the registry.
// Duplicate ids are a hard error.
func Parse(data []byte) (*Registry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogueSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate source registry: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return nil, fmt.Errorf("invalid source registry: %s", strings.Join(issues, "; "))
	}

	var cat catalogue
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}

	byID := make(map[string]Entry, len(cat.Sources))
	for _, entry := range cat.Sources {
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("invalid source registry: duplicate source id '%s'", entry.ID)
		}
		byID[entry.ID] = entry
	}

	return &Registry{entries: cat.Sources, byID: byID}, nil
}
