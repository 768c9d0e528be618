package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcpvault/mcpvault/internal/wallet"
)

// Result is the outcome of compiling one integration's OpenAPI document.
type Result struct {
	Operations []wallet.OperationDescriptor
	BaseURL    string
	AuthNote   string // non-empty when no credential is bound yet and why
}

// Compile runs the full pipeline of spec.md §4.4 against doc, producing
// one operation descriptor per (path, method) pair, under integrationKey
// and baseURLOverride (which, when non-empty, takes the place of the
// document's servers[0].url, and is required when the document has none).
func Compile(doc *Document, integrationKey, baseURLOverride string) (*Result, error) {
	baseURL := baseURLOverride
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w: no server URL in document and none supplied", ErrBadSpec)
	}
	if strings.Contains(baseURL, "{") {
		return nil, fmt.Errorf("%w: server URL has unsubstituted template variables: %s", ErrBadSpec, baseURL)
	}

	scheme, authSpec := detectAuthScheme(doc)

	used := map[string]bool{}
	var ops []wallet.OperationDescriptor

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := doc.Paths[path]
		for _, entry := range item.byMethod() {
			desc, err := compileOperation(doc, integrationKey, path, entry.Method, entry.Op, authSpec, used)
			if err != nil {
				return nil, err
			}
			desc.BaseURL = baseURL
			ops = append(ops, *desc)
		}
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].ToolName < ops[j].ToolName })

	result := &Result{Operations: ops, BaseURL: baseURL}
	if scheme == wallet.AuthNone {
		result.AuthNote = "no recognised security scheme; integration pending until a credential is bound"
		for _, ss := range doc.Components.SecuritySchemes {
			if ss.Type == "oauth2" {
				result.AuthNote = "oauth2 security scheme is recognised but not supported; integration pending until a credential is bound"
				break
			}
		}
	}
	return result, nil
}

func compileOperation(doc *Document, integrationKey, path, method string, op *Operation, authSpec wallet.AuthSpec, used map[string]bool) (*wallet.OperationDescriptor, error) {
	rawName := op.OperationID
	if rawName == "" {
		rawName = method + "_" + path
	}
	toolName := integrationKey + "_" + uniqueToolName(rawName, used)

	params := make([]wallet.Param, 0, len(op.Parameters)+1)
	properties := map[string]*SchemaNode{}
	var required []string

	for _, p := range op.Parameters {
		loc := wallet.ParamLocation(p.In)
		switch loc {
		case wallet.ParamPath, wallet.ParamQuery, wallet.ParamHeader:
		default:
			continue // unsupported parameter location, ignore
		}
		node := resolveSchema(p.Schema, doc, 0)
		typ := scalarTypeName(node)
		params = append(params, wallet.Param{
			Name:     p.Name,
			Location: loc,
			Required: p.Required || loc == wallet.ParamPath,
			Type:     typ,
		})
		properties[p.Name] = node
		if p.Required || loc == wallet.ParamPath {
			required = append(required, p.Name)
		}
	}

	if op.RequestBody != nil {
		if media, ok := op.RequestBody.Content["application/json"]; ok {
			bodyNode := resolveSchema(media.Schema, doc, 0)
			params = append(params, wallet.Param{
				Name:     "body",
				Location: wallet.ParamBody,
				Required: op.RequestBody.Required,
				Type:     "object",
			})
			properties["body"] = bodyNode
			if op.RequestBody.Required {
				required = append(required, "body")
			}
		}
	}

	sort.Strings(required)
	inputNode := &SchemaNode{Kind: KindObject, Properties: properties, Required: required}

	return &wallet.OperationDescriptor{
		ToolName:     toolName,
		Description:  op.Summary,
		Method:       strings.ToUpper(method),
		PathTemplate: path,
		Parameters:   params,
		InputSchema:  inputNode.ToJSONSchema(),
		Auth:         authSpec,
	}, nil
}

func scalarTypeName(n *SchemaNode) string {
	if n == nil {
		return "string"
	}
	switch n.Kind {
	case KindScalar:
		switch n.Scalar {
		case ScalarNumber:
			return "number"
		case ScalarBoolean:
			return "boolean"
		case ScalarInteger:
			return "integer"
		default:
			return "string"
		}
	case KindEnum:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "string"
	}
}

// detectAuthScheme inspects components.securitySchemes and the global
// security requirement, picking the first supported scheme in priority
// bearer > apiKey-header > apiKey-query > basic. oauth2 schemes are
// recognised but unsupported — noted, not silently classified as none.
func detectAuthScheme(doc *Document) (wallet.AuthScheme, wallet.AuthSpec) {
	type candidate struct {
		scheme wallet.AuthScheme
		spec   wallet.AuthSpec
		rank   int
	}
	var best *candidate

	consider := func(c candidate) {
		if best == nil || c.rank < best.rank {
			cc := c
			best = &cc
		}
	}

	for _, ss := range doc.Components.SecuritySchemes {
		switch {
		case ss.Type == "http" && ss.Scheme == "bearer":
			consider(candidate{wallet.AuthBearer, wallet.AuthSpec{Scheme: wallet.AuthBearer}, 0})
		case ss.Type == "apiKey" && ss.In == "header":
			consider(candidate{wallet.AuthAPIKeyHdr, wallet.AuthSpec{Scheme: wallet.AuthAPIKeyHdr, HeaderName: ss.Name}, 1})
		case ss.Type == "apiKey" && ss.In == "query":
			consider(candidate{wallet.AuthAPIKeyQuery, wallet.AuthSpec{Scheme: wallet.AuthAPIKeyQuery, QueryName: ss.Name}, 2})
		case ss.Type == "http" && ss.Scheme == "basic":
			consider(candidate{wallet.AuthBasic, wallet.AuthSpec{Scheme: wallet.AuthBasic}, 3})
		case ss.Type == "oauth2":
			// recognised-but-unsupported: never silently reported as none.
			consider(candidate{wallet.AuthNone, wallet.AuthSpec{Scheme: wallet.AuthNone}, 4})
		}
	}

	if best == nil {
		return wallet.AuthNone, wallet.AuthSpec{Scheme: wallet.AuthNone}
	}
	return best.scheme, best.spec
}
