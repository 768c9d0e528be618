// Package openapi compiles an OpenAPI 3.x document into the operation
// descriptors the wallet registry stores and the MCP server serves as
// tools — see spec.md §4.4.
package openapi

import "encoding/json"

// Document is the subset of an OpenAPI 3.x document this compiler reads.
// Unknown fields are preserved via json.RawMessage where resolution needs
// to re-walk them (schemas), and dropped elsewhere.
type Document struct {
	OpenAPI    string                `json:"openapi" yaml:"openapi"`
	Servers    []Server              `json:"servers" yaml:"servers"`
	Paths      map[string]PathItem   `json:"paths" yaml:"paths"`
	Components Components           `json:"components" yaml:"components"`
}

type Server struct {
	URL string `json:"url" yaml:"url"`
}

// PathItem maps HTTP methods to operations. Only the five methods this
// compiler supports are modeled; others are ignored.
type PathItem struct {
	Get    *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Post   *Operation `json:"post,omitempty" yaml:"post,omitempty"`
	Put    *Operation `json:"put,omitempty" yaml:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty" yaml:"delete,omitempty"`
	Patch  *Operation `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// byMethod returns the five (method, *Operation) pairs in the fixed order
// this compiler enumerates them, skipping absent ones.
func (p PathItem) byMethod() []struct {
	Method string
	Op     *Operation
} {
	all := []struct {
		Method string
		Op     *Operation
	}{
		{"get", p.Get},
		{"post", p.Post},
		{"put", p.Put},
		{"delete", p.Delete},
		{"patch", p.Patch},
	}
	out := make([]struct {
		Method string
		Op     *Operation
	}, 0, len(all))
	for _, e := range all {
		if e.Op != nil {
			out = append(out, e)
		}
	}
	return out
}

type Operation struct {
	OperationID string                 `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string                 `json:"summary,omitempty" yaml:"summary,omitempty"`
	Parameters  []ParameterSpec        `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody           `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Security    []map[string][]string  `json:"security,omitempty" yaml:"security,omitempty"`
}

type ParameterSpec struct {
	Name     string         `json:"name" yaml:"name"`
	In       string         `json:"in" yaml:"in"` // path | query | header
	Required bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Schema   json.RawMessage `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type RequestBody struct {
	Required bool                        `json:"required,omitempty" yaml:"required,omitempty"`
	Content  map[string]MediaTypeObject `json:"content,omitempty" yaml:"content,omitempty"`
}

type MediaTypeObject struct {
	Schema json.RawMessage `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty" yaml:"securitySchemes,omitempty"`
	Schemas         map[string]json.RawMessage `json:"schemas,omitempty" yaml:"schemas,omitempty"`
}

type SecurityScheme struct {
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`     // apiKey | http | oauth2
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"` // bearer | basic (for type=http)
	In     string `json:"in,omitempty" yaml:"in,omitempty"`         // header | query (for type=apiKey)
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`     // header/query param name
}
