package wallet

import (
	"encoding/json"
	"time"
)

// IntegrationStatus is the lifecycle state of one bound third-party API.
type IntegrationStatus string

const (
	IntegrationPending  IntegrationStatus = "pending"
	IntegrationActive   IntegrationStatus = "active"
	IntegrationError    IntegrationStatus = "error"
	IntegrationDisabled IntegrationStatus = "disabled"
)

// CredentialKind identifies the shape of a stored credential's secret.
type CredentialKind string

const (
	CredentialAPIKey CredentialKind = "api_key"
	CredentialBearer CredentialKind = "bearer"
	CredentialBasic  CredentialKind = "basic"
)

// ParamLocation is where an operation parameter is carried on the wire.
type ParamLocation string

const (
	ParamPath   ParamLocation = "path"
	ParamQuery  ParamLocation = "query"
	ParamHeader ParamLocation = "header"
	ParamBody   ParamLocation = "body"
)

// AuthScheme is the authentication mechanism an operation expects.
type AuthScheme string

const (
	AuthBearer      AuthScheme = "bearer"
	AuthAPIKeyHdr   AuthScheme = "apiKey-header"
	AuthAPIKeyQuery AuthScheme = "apiKey-query"
	AuthBasic       AuthScheme = "basic"
	AuthNone        AuthScheme = "none"
)

// Param describes one input parameter of a compiled operation.
type Param struct {
	Name        string        `json:"name"`
	Location    ParamLocation `json:"location"`
	Required    bool          `json:"required"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
}

// AuthSpec records how to authenticate an outbound call for one operation.
type AuthSpec struct {
	Scheme     AuthScheme `json:"scheme"`
	HeaderName string     `json:"header_name,omitempty"`
	QueryName  string     `json:"query_name,omitempty"`
}

// OperationDescriptor is the compiled, stored form of one OpenAPI operation
// — everything the MCP server and dispatcher need without re-reading the
// original spec document.
type OperationDescriptor struct {
	ToolName     string          `json:"tool_name"`
	Description  string          `json:"description,omitempty"`
	Method       string          `json:"method"`
	BaseURL      string          `json:"base_url"`
	PathTemplate string          `json:"path_template"`
	Parameters   []Param         `json:"parameters"`
	InputSchema  json.RawMessage `json:"input_schema"`
	Auth         AuthSpec        `json:"auth"`
}

// IntegrationRecord is one caller-registered third-party API binding.
type IntegrationRecord struct {
	Key           string                 `json:"key"`
	DisplayName   string                 `json:"display_name"`
	SourceSpecURL string                 `json:"source_spec_url"`
	Operations    []OperationDescriptor  `json:"operations"`
	CredentialID  string                 `json:"credential_id,omitempty"`
	Status        IntegrationStatus      `json:"status"`
	LastSyncedAt  time.Time              `json:"last_synced_at,omitzero"`
	LastError     string                 `json:"last_error,omitempty"`
}

// CredentialRecord is one encrypted secret bound (or bindable) to an
// integration. Ciphertext is the AEAD blob `nonce‖ciphertext‖tag`; the plaintext
// never lives here.
type CredentialRecord struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	DisplayName string         `json:"display_name"`
	Kind        CredentialKind `json:"kind"`
	Prefix      string         `json:"prefix"`
	Ciphertext  []byte         `json:"ciphertext"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUsedAt  time.Time      `json:"last_used_at,omitzero"`
}

// registriesDoc is the plaintext shape encrypted into the vault file's
// "body" blob.
type registriesDoc struct {
	Integrations map[string]*IntegrationRecord `json:"integrations"`
	Credentials  map[string]*CredentialRecord  `json:"credentials"`
}

func newRegistriesDoc() *registriesDoc {
	return &registriesDoc{
		Integrations: make(map[string]*IntegrationRecord),
		Credentials:  make(map[string]*CredentialRecord),
	}
}
