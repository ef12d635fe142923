// Package template implements the template engine (C10): parameter schema
// validation and JSON template expansion with typed injection and
// {{path}} string substitution.
package template

import (
	"encoding/json"
	"fmt"

	"github.com/taskhub/taskhub/internal/types"
)

// RenderResult is the output of Render.
type RenderResult struct {
	// Rendered is either a single-task envelope {"task": {...}} or a DAG
	// envelope {"config": {...}, "tasks": [...]}.
	Rendered json.RawMessage
}

// ValidationError is returned by Render when a parameter fails schema
// validation, formatted as "<name>: <reason>" per spec §8 scenario 6.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Param + ": " + e.Reason }

// Render validates params against tpl.Schema, resolves defaults, and
// recursively expands tpl.TaskJSONTemplate.
func Render(tpl types.TaskTemplate, params map[string]any) (RenderResult, error) {
	resolved, err := resolveParams(tpl.Schema, params)
	if err != nil {
		return RenderResult{}, err
	}

	var raw any
	if err := json.Unmarshal(tpl.TaskJSONTemplate, &raw); err != nil {
		return RenderResult{}, fmt.Errorf("invalid template json: %w", err)
	}

	expanded, err := expand(raw, resolved)
	if err != nil {
		return RenderResult{}, err
	}

	out, err := json.Marshal(expanded)
	if err != nil {
		return RenderResult{}, err
	}
	return RenderResult{Rendered: out}, nil
}

// resolveParams validates, per ParamDef: a required parameter missing is an
// error; a type-mismatched value is an error; a missing-but-defaulted
// parameter is injected from its default.
func resolveParams(schema []types.ParamDef, params map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(schema))
	for _, def := range schema {
		val, present := params[def.Name]
		if !present {
			if def.Required {
				return nil, &ValidationError{Param: def.Name, Reason: "required"}
			}
			if len(def.DefaultValue) == 0 {
				continue
			}
			var dv any
			if err := json.Unmarshal(def.DefaultValue, &dv); err != nil {
				return nil, &ValidationError{Param: def.Name, Reason: "invalid default: " + err.Error()}
			}
			resolved[def.Name] = dv
			continue
		}
		if err := checkType(def, val); err != nil {
			return nil, err
		}
		resolved[def.Name] = val
	}
	// Parameters not declared in the schema still resolve (schema is a
	// validation/defaulting layer, not an allow-list).
	for k, v := range params {
		if _, ok := resolved[k]; !ok {
			resolved[k] = v
		}
	}
	return resolved, nil
}

func checkType(def types.ParamDef, val any) error {
	switch def.Type {
	case types.ParamString:
		if _, ok := val.(string); !ok {
			return &ValidationError{Param: def.Name, Reason: "expected string"}
		}
	case types.ParamInt:
		switch val.(type) {
		case float64, int, int64:
		default:
			return &ValidationError{Param: def.Name, Reason: "expected int"}
		}
	case types.ParamBool:
		if _, ok := val.(bool); !ok {
			return &ValidationError{Param: def.Name, Reason: "expected bool"}
		}
	case types.ParamJSON:
		// any JSON value is acceptable.
	}
	return nil
}
