package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mcpvault/mcpvault/internal/crypto"
	"github.com/mcpvault/mcpvault/internal/dispatcher"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

// errUnauthenticated marks a tools/call whose integration has no bound
// credential and whose auth scheme is not none.
var errUnauthenticated = errors.New("mcpserver: integration has no bound credential")

// listTools enumerates every operation descriptor across every active
// integration, sorted lexicographically by tool name (spec.md §4.5).
func (s *Server) listTools() ([]ToolDescriptor, error) {
	integrations, err := s.Wallet.ListIntegrations()
	if err != nil {
		return nil, err
	}

	var tools []ToolDescriptor
	for _, rec := range integrations {
		if rec.Status != wallet.IntegrationActive {
			continue
		}
		for _, op := range rec.Operations {
			schema := op.InputSchema
			if len(schema) == 0 {
				schema = []byte(`{"type":"object","properties":{}}`)
			}
			tools = append(tools, ToolDescriptor{
				Name:        op.ToolName,
				Description: op.Description,
				InputSchema: schema,
			})
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// resolveTool finds which integration and operation a tool name belongs to.
func (s *Server) resolveTool(name string) (*wallet.IntegrationRecord, *wallet.OperationDescriptor, error) {
	integrations, err := s.Wallet.ListIntegrations()
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range integrations {
		for i := range rec.Operations {
			if rec.Operations[i].ToolName == name {
				return rec, &rec.Operations[i], nil
			}
		}
	}
	return nil, nil, fmt.Errorf("mcpserver: unknown tool %q", name)
}

// callTool resolves name to an operation, decrypts its bound credential
// (if any), and delegates to the dispatcher. A non-nil error is a
// protocol-level failure (bad tool name, bad arguments, unauthenticated,
// wallet locked); upstream/timeout/transport failures are instead folded
// into a successful ToolsCallResult with IsError set, per spec.md §4.5's
// tools/call error table.
// callTool's second return value is the resolved integration key, returned
// whenever resolution succeeded at all (even on a later protocol error)
// so the caller can label metrics and audit entries consistently.
func (s *Server) callTool(ctx context.Context, name string, arguments map[string]any) (*ToolsCallResult, string, error) {
	rec, op, err := s.resolveTool(name)
	if err != nil {
		return nil, "", err
	}

	if rec.CredentialID == "" && op.Auth.Scheme != wallet.AuthNone {
		return nil, rec.Key, errUnauthenticated
	}

	if op.Auth.Scheme == wallet.AuthNone {
		result, dispatchErr := s.Dispatcher.Dispatch(ctx, dispatcher.Request{
			Operation:      *op,
			IntegrationKey: rec.Key,
			Arguments:      arguments,
			Credential:     nil,
		})
		callResult, callErr := toolResultFromDispatch(result, dispatchErr)
		return callResult, rec.Key, callErr
	}

	var callResult *ToolsCallResult
	var callErr error
	err = s.Wallet.DecryptCredential(rec.CredentialID, func(sealed *crypto.Sealed) error {
		sealed.Borrow(func(secret []byte) {
			result, dispatchErr := s.Dispatcher.Dispatch(ctx, dispatcher.Request{
				Operation:      *op,
				IntegrationKey: rec.Key,
				Arguments:      arguments,
				Credential:     secret,
			})
			callResult, callErr = toolResultFromDispatch(result, dispatchErr)
		})
		return nil
	})
	if err != nil {
		return nil, rec.Key, err
	}
	return callResult, rec.Key, callErr
}

func toolResultFromDispatch(result *dispatcher.Result, err error) (*ToolsCallResult, error) {
	if err != nil {
		switch e := err.(type) {
		case *dispatcher.ErrBadArguments:
			return nil, fmt.Errorf("mcpserver: %w", e)
		case *dispatcher.ErrBadIntegration:
			return nil, fmt.Errorf("mcpserver: %w", e)
		case *dispatcher.ErrUpstreamStatus:
			return &ToolsCallResult{
				IsError: true,
				Content: []ContentBlock{{Type: "text", Text: e.Body}},
			}, nil
		case *dispatcher.ErrTimeout, *dispatcher.ErrTransport:
			return &ToolsCallResult{
				IsError: true,
				Content: []ContentBlock{{Type: "text", Text: e.Error()}},
			}, nil
		default:
			return nil, err
		}
	}
	return &ToolsCallResult{
		Content: []ContentBlock{{Type: "text", Text: string(result.Body)}},
	}, nil
}
