package usecase

import (
	"fmt"
	"sort"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// GenerateSchema converts an evaluator field list into a strict JSON-Schema
// object: every key required, no extra properties allowed.
func GenerateSchema(fields []domain.EvaluatorField) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: evaluator has no output fields", domain.ErrInvalidArgument)
	}
	properties := map[string]any{}
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Key == "" {
			return nil, fmt.Errorf("%w: field key required", domain.ErrInvalidArgument)
		}
		prop, err := fieldSchema(f)
		if err != nil {
			return nil, err
		}
		properties[f.Key] = prop
		required = append(required, f.Key)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}, nil
}

func fieldSchema(f domain.EvaluatorField) (map[string]any, error) {
	var prop map[string]any
	switch f.Type {
	case "number":
		prop = map[string]any{"type": "number"}
	case "text":
		prop = map[string]any{"type": "string"}
	case "boolean":
		prop = map[string]any{"type": "boolean"}
	case "array":
		items, err := arrayItems(f.ArrayItemSchema)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		prop = map[string]any{"type": "array", "items": items}
	default:
		return nil, fmt.Errorf("%w: field %q has unknown type %q", domain.ErrInvalidArgument, f.Key, f.Type)
	}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	return prop, nil
}

// arrayItems builds the item schema: a primitive type name or a nested
// object whose properties are all required.
func arrayItems(itemSchema map[string]any) (map[string]any, error) {
	if itemSchema == nil {
		return map[string]any{"type": "string"}, nil
	}
	if t, ok := itemSchema["type"].(string); ok {
		switch t {
		case "string", "number", "boolean":
			return map[string]any{"type": t}, nil
		case "text":
			return map[string]any{"type": "string"}, nil
		}
	}
	props, ok := itemSchema["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: array item schema needs a primitive type or properties", domain.ErrInvalidArgument)
	}
	nested := map[string]any{}
	required := make([]string, 0, len(props))
	for key, raw := range props {
		typeName, _ := raw.(string)
		if m, isMap := raw.(map[string]any); isMap {
			typeName, _ = m["type"].(string)
		}
		switch typeName {
		case "number", "boolean":
			nested[key] = map[string]any{"type": typeName}
		case "string", "text", "":
			nested[key] = map[string]any{"type": "string"}
		default:
			return nil, fmt.Errorf("%w: array item property %q has unknown type %q", domain.ErrInvalidArgument, key, typeName)
		}
		required = append(required, key)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           nested,
		"required":             required,
		"additionalProperties": false,
	}, nil
}
