package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcpvault/mcpvault/internal/wallet"
)

func demoOperation(baseURL string) wallet.OperationDescriptor {
	return wallet.OperationDescriptor{
		ToolName:     "demo_get_widget",
		Method:       http.MethodGet,
		BaseURL:      baseURL,
		PathTemplate: "/widgets/{id}",
		Parameters: []wallet.Param{
			{Name: "id", Location: wallet.ParamPath, Required: true, Type: "string"},
			{Name: "verbose", Location: wallet.ParamQuery, Required: false, Type: "boolean"},
		},
		Auth: wallet.AuthSpec{Scheme: wallet.AuthBearer},
	}
}

func TestDispatch_BearerHeaderConstruction(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := New(nil)
	_, err := d.Dispatch(context.Background(), Request{
		Operation:      demoOperation(srv.URL),
		IntegrationKey: "demo",
		Arguments:      map[string]any{"id": "abc123"},
		Credential:     []byte("sekret-token"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sekret-token" {
		t.Errorf("expected Bearer header, got %q", gotAuth)
	}
}

func TestDispatch_PathParamSubstitution(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(nil)
	_, err := d.Dispatch(context.Background(), Request{
		Operation:      demoOperation(srv.URL),
		IntegrationKey: "demo",
		Arguments:      map[string]any{"id": "widget-42"},
		Credential:     []byte("tok"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/widgets/widget-42" {
		t.Errorf("expected substituted path, got %q", gotPath)
	}
}

func TestDispatch_MissingRequiredParamFails(t *testing.T) {
	d := New(nil)
	_, err := d.Dispatch(context.Background(), Request{
		Operation:      demoOperation("http://example.invalid"),
		IntegrationKey: "demo",
		Arguments:      map[string]any{},
		Credential:     []byte("tok"),
	})
	var badArgs *ErrBadArguments
	if err == nil {
		t.Fatal("expected error for missing required path parameter")
	}
	if e, ok := err.(*ErrBadArguments); ok {
		badArgs = e
	}
	if badArgs == nil {
		t.Fatalf("expected ErrBadArguments, got %T: %v", err, err)
	}
}

func TestDispatch_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	d := New(nil)
	_, err := d.Dispatch(context.Background(), Request{
		Operation:      demoOperation(srv.URL),
		IntegrationKey: "demo",
		Arguments:      map[string]any{"id": "abc"},
		Credential:     []byte("tok"),
	})
	upstream, ok := err.(*ErrUpstreamStatus)
	if !ok {
		t.Fatalf("expected ErrUpstreamStatus, got %T: %v", err, err)
	}
	if upstream.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", upstream.Code)
	}
}

func TestDispatch_BadIntegrationOnRelativeBaseURL(t *testing.T) {
	op := demoOperation("")
	d := New(nil)
	_, err := d.Dispatch(context.Background(), Request{
		Operation:      op,
		IntegrationKey: "demo",
		Arguments:      map[string]any{"id": "abc"},
		Credential:     []byte("tok"),
	})
	if _, ok := err.(*ErrBadIntegration); !ok {
		t.Fatalf("expected ErrBadIntegration, got %T: %v", err, err)
	}
}

func TestDispatch_DeterministicAcrossRuns(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(nil)
	op := demoOperation(srv.URL)
	args := map[string]any{"id": "fixed-id", "verbose": true}

	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), Request{
			Operation:      op,
			IntegrationKey: "demo",
			Arguments:      args,
			Credential:     []byte("tok"),
		})
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}

	for i := 1; i < len(paths); i++ {
		if paths[i] != paths[0] {
			t.Errorf("expected identical outbound request across runs, got %q and %q", paths[0], paths[i])
		}
	}
}

func TestDispatch_CircuitBreakerTripsAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(nil)
	op := demoOperation(srv.URL)
	req := Request{Operation: op, IntegrationKey: "demo", Arguments: map[string]any{"id": "x"}, Credential: []byte("t")}

	// Default threshold is 3 consecutive failures; drive past it so the
	// breaker trips and the next call fails fast without reaching srv.
	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), req)
		if _, ok := err.(*ErrUpstreamStatus); !ok {
			t.Fatalf("call %d: expected ErrUpstreamStatus, got %T: %v", i, err, err)
		}
	}

	_, err := d.Dispatch(context.Background(), req)
	upstream, ok := err.(*ErrUpstreamStatus)
	if !ok {
		t.Fatalf("expected ErrUpstreamStatus for open circuit, got %T: %v", err, err)
	}
	if upstream.Code != 0 || upstream.Body != "circuit open" {
		t.Errorf("expected fail-fast circuit-open response, got %+v", upstream)
	}
}
