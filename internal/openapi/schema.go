package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxRefDepth bounds local $ref resolution; a document that nests deeper
// than this is treated as circular and the offending node degrades to an
// empty-schema placeholder rather than failing the whole compile.
const maxRefDepth = 16

// NodeKind is the tag of a SchemaNode sum type.
type NodeKind int

const (
	KindObject NodeKind = iota
	KindArray
	KindScalar
	KindEnum
	KindAny
)

// ScalarType enumerates the scalar flavors a KindScalar node may carry.
type ScalarType int

const (
	ScalarString ScalarType = iota
	ScalarNumber
	ScalarBoolean
	ScalarInteger
)

// SchemaNode is the tagged-variant intermediate form every resolved
// OpenAPI schema is walked into before being re-serialised as JSON Schema
// for the MCP inputSchema field. Unknown or unresolvable constructs
// degrade to KindAny rather than propagate the source document verbatim —
// see spec.md §9.
type SchemaNode struct {
	Kind        NodeKind
	Description string

	// KindObject
	Properties map[string]*SchemaNode
	Required   []string

	// KindArray
	Items *SchemaNode

	// KindScalar
	Scalar ScalarType

	// KindEnum
	EnumValues []string
}

// resolveSchema walks a raw OpenAPI schema node, inlining local $ref
// pointers up to maxRefDepth, and produces a SchemaNode. depth counts the
// current nesting depth of $ref indirection (not structural nesting).
func resolveSchema(raw json.RawMessage, doc *Document, depth int) *SchemaNode {
	if len(raw) == 0 || string(raw) == "null" {
		return &SchemaNode{Kind: KindAny}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return &SchemaNode{Kind: KindAny}
	}

	if ref, ok := m["$ref"].(string); ok {
		if depth >= maxRefDepth {
			return &SchemaNode{Kind: KindAny, Description: "circular $ref, depth exceeded"}
		}
		target, ok := resolveLocalRef(ref, doc)
		if !ok {
			return &SchemaNode{Kind: KindAny, Description: "unresolvable $ref: " + ref}
		}
		return resolveSchema(target, doc, depth+1)
	}

	node := &SchemaNode{Kind: KindAny}
	if desc, ok := m["description"].(string); ok {
		node.Description = desc
	}

	if rawEnum, ok := m["enum"].([]any); ok {
		vals := make([]string, 0, len(rawEnum))
		for _, v := range rawEnum {
			vals = append(vals, fmt.Sprintf("%v", v))
		}
		node.Kind = KindEnum
		node.EnumValues = vals
		return node
	}

	typeStr, _ := m["type"].(string)
	switch typeStr {
	case "object":
		node.Kind = KindObject
		node.Properties = map[string]*SchemaNode{}
		if props, ok := m["properties"].(map[string]any); ok {
			for name, v := range props {
				sub, err := json.Marshal(v)
				if err != nil {
					node.Properties[name] = &SchemaNode{Kind: KindAny}
					continue
				}
				node.Properties[name] = resolveSchema(sub, doc, depth)
			}
		}
		if req, ok := m["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					node.Required = append(node.Required, s)
				}
			}
		}
	case "array":
		node.Kind = KindArray
		if items, ok := m["items"]; ok {
			sub, err := json.Marshal(items)
			if err == nil {
				node.Items = resolveSchema(sub, doc, depth)
			}
		}
		if node.Items == nil {
			node.Items = &SchemaNode{Kind: KindAny}
		}
	case "string":
		node.Kind = KindScalar
		node.Scalar = ScalarString
	case "number":
		node.Kind = KindScalar
		node.Scalar = ScalarNumber
	case "boolean":
		node.Kind = KindScalar
		node.Scalar = ScalarBoolean
	case "integer":
		node.Kind = KindScalar
		node.Scalar = ScalarInteger
	default:
		node.Kind = KindAny
	}

	return node
}

// resolveLocalRef resolves a "#/components/schemas/Name"-shaped pointer
// within doc. External refs (anything not starting with "#/") are
// rejected per spec.md §4.4.
func resolveLocalRef(ref string, doc *Document) (json.RawMessage, bool) {
	const prefix = "#/components/schemas/"
	if !strings.HasPrefix(ref, prefix) {
		return nil, false
	}
	name := strings.TrimPrefix(ref, prefix)
	target, ok := doc.Components.Schemas[name]
	return target, ok
}

// jsonSchema is the re-serialised form MCP consumes: a plain JSON Schema
// object, not a pass-through of the source document.
type jsonSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*jsonSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *jsonSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// ToJSONSchema re-serialises a SchemaNode as JSON Schema.
func (n *SchemaNode) ToJSONSchema() json.RawMessage {
	js := n.toJSONSchemaStruct()
	raw, err := json.Marshal(js)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

func (n *SchemaNode) toJSONSchemaStruct() *jsonSchema {
	if n == nil {
		return &jsonSchema{Type: "object"}
	}
	js := &jsonSchema{Description: n.Description}
	switch n.Kind {
	case KindObject:
		js.Type = "object"
		if len(n.Properties) > 0 {
			js.Properties = make(map[string]*jsonSchema, len(n.Properties))
			for name, sub := range n.Properties {
				js.Properties[name] = sub.toJSONSchemaStruct()
			}
		}
		sort.Strings(n.Required)
		js.Required = n.Required
	case KindArray:
		js.Type = "array"
		js.Items = n.Items.toJSONSchemaStruct()
	case KindScalar:
		switch n.Scalar {
		case ScalarString:
			js.Type = "string"
		case ScalarNumber:
			js.Type = "number"
		case ScalarBoolean:
			js.Type = "boolean"
		case ScalarInteger:
			js.Type = "integer"
		}
	case KindEnum:
		js.Type = "string"
		js.Enum = n.EnumValues
	default:
		// KindAny degrades to an unconstrained schema — no "type" keyword.
	}
	return js
}
