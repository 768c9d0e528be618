package controlauth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateProducesValidatableToken(t *testing.T) {
	plaintext, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(plaintext, "mcpvault_ctl_") {
		t.Errorf("token missing expected prefix: %s", plaintext[:13])
	}
	if !Validate(plaintext, hash) {
		t.Error("expected Validate to accept the freshly generated token")
	}
}

func TestValidateRejectsWrongToken(t *testing.T) {
	_, hash, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	other, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Validate(other, hash) {
		t.Error("expected Validate to reject a different token")
	}
}

func TestValidateRejectsEmptyHash(t *testing.T) {
	plaintext, _, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Validate(plaintext, "") {
		t.Error("expected Validate to reject an empty hash")
	}
}

func TestMiddlewareRejectsWithoutToken(t *testing.T) {
	_, hash, _ := Generate()
	handler := Middleware(hash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	plaintext, hash, _ := Generate()
	var authed bool
	handler := Middleware(hash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed = Authed(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !authed {
		t.Error("expected Authed(ctx) to be true inside the handler")
	}
}

func TestMiddlewareRejectsWhenNoTokenConfigured(t *testing.T) {
	handler := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/status", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
