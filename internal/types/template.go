package types

import (
	"encoding/json"
	"fmt"
)

// ParamType is the declared type of one template parameter.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamBool
	ParamJSON
)

func (t ParamType) String() string {
	switch t {
	case ParamInt:
		return "int"
	case ParamBool:
		return "bool"
	case ParamJSON:
		return "json"
	default:
		return "string"
	}
}

// ParseParamType parses the wire string encoding of a ParamType.
func ParseParamType(s string) (ParamType, bool) {
	switch lower(s) {
	case "int":
		return ParamInt, true
	case "bool":
		return ParamBool, true
	case "json":
		return ParamJSON, true
	case "string", "":
		return ParamString, true
	default:
		return 0, false
	}
}

// MarshalJSON renders the type as its wire string.
func (t ParamType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the wire string into a ParamType.
func (t *ParamType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseParamType(s)
	if !ok {
		return fmt.Errorf("unknown param type %q", s)
	}
	*t = parsed
	return nil
}

// ParamDef declares one parameter a TaskTemplate accepts.
type ParamDef struct {
	Name         string          `json:"name"`
	Type         ParamType       `json:"type"`
	Required     bool            `json:"required"`
	DefaultValue json.RawMessage `json:"default_value,omitempty"`
}

// TaskTemplate is a reusable, parameterized DAG or task payload.
type TaskTemplate struct {
	TemplateID       string          `json:"template_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	TaskJSONTemplate json.RawMessage `json:"task_json_template"`
	Schema           []ParamDef      `json:"schema,omitempty"`
}
