package controlapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mcpvault/mcpvault/internal/controlauth"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

func newTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w := wallet.New(t.TempDir(), 0)
	if err := w.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := w.Initialise([]byte("correct horse battery staple")); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return w
}

func newTestServer(t *testing.T) (*httptest.Server, string, *wallet.Wallet) {
	t.Helper()
	w := newTestWallet(t)
	token, hash, err := controlauth.Generate()
	if err != nil {
		t.Fatalf("controlauth.Generate: %v", err)
	}
	r := chi.NewRouter()
	Mount(r, Dependencies{
		Wallet:      w,
		DataDir:     t.TempDir(),
		ControlHash: hash,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, token, w
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func TestStatusRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/admin/v1/status", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusReturnsWalletState(t *testing.T) {
	srv, token, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/admin/v1/status", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "locked" {
		t.Errorf("state = %q, want locked", body["state"])
	}
}

func TestUnlockThenLock(t *testing.T) {
	srv, token, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/v1/unlock", token, unlockRequest{Passphrase: "correct horse battery staple"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock status = %d, want 200", resp.StatusCode)
	}

	resp2 := doJSON(t, http.MethodGet, srv.URL+"/admin/v1/status", token, nil)
	defer resp2.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp2.Body).Decode(&body)
	if body["state"] != "unlocked" {
		t.Fatalf("state after unlock = %q, want unlocked", body["state"])
	}

	resp3 := doJSON(t, http.MethodPost, srv.URL+"/admin/v1/lock", token, nil)
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("lock status = %d, want 200", resp3.StatusCode)
	}
}

func TestUnlockWrongPassphraseReturns401(t *testing.T) {
	srv, token, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/v1/unlock", token, unlockRequest{Passphrase: "wrong"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCredentialAddListDelete(t *testing.T) {
	srv, token, w := newTestServer(t)
	if err := w.Unlock([]byte("correct horse battery staple")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/admin/v1/credentials", token, credentialAddRequest{
		Provider: "github", DisplayName: "GH token", Kind: wallet.CredentialBearer, Secret: "tok-ABC",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", resp.StatusCode)
	}
	var created map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&created)
	id := created["id"]
	if id == "" {
		t.Fatal("expected non-empty credential id")
	}

	listResp := doJSON(t, http.MethodGet, srv.URL+"/admin/v1/credentials", token, nil)
	defer listResp.Body.Close()
	var recs []wallet.CredentialRecord
	_ = json.NewDecoder(listResp.Body).Decode(&recs)
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}

	delResp := doJSON(t, http.MethodDelete, srv.URL+"/admin/v1/credentials/"+id, token, nil)
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", delResp.StatusCode)
	}
}

func TestSettingsGetSetRoundTrip(t *testing.T) {
	srv, token, _ := newTestServer(t)

	getResp := doJSON(t, http.MethodGet, srv.URL+"/admin/v1/settings", token, nil)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}

	setResp := doJSON(t, http.MethodPut, srv.URL+"/admin/v1/settings", token, map[string]any{
		"auto_lock_minutes": 5,
		"otel":              map[string]any{"enabled": false, "endpoint": "", "service_name": ""},
	})
	defer setResp.Body.Close()
	if setResp.StatusCode != http.StatusOK {
		t.Fatalf("set status = %d, want 200", setResp.StatusCode)
	}
}
