// Package controlapi implements the local control-plane HTTP API a desktop
// shell (or any local caller that would rather speak HTTP than exec a CLI)
// uses to drive the wallet: state query, unlock/lock/reset, integration
// and credential CRUD, bind, settings get/set, and the audit trail. It
// never forwards third-party traffic — that stays the MCP dispatcher's job
// — and it mounts on its own chi.Router separate from the MCP transport's
// `/messages`/`/sse`, gated by internal/controlauth instead of a resumed
// session token.
package controlapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcpvault/mcpvault/internal/audit"
	"github.com/mcpvault/mcpvault/internal/config"
	"github.com/mcpvault/mcpvault/internal/controlauth"
	"github.com/mcpvault/mcpvault/internal/idempotency"
	"github.com/mcpvault/mcpvault/internal/metrics"
	"github.com/mcpvault/mcpvault/internal/ratelimit"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

// Dependencies are the handles the control-plane handlers need. ControlHash
// is the bcrypt hash controlauth.Middleware validates against; empty means
// the API refuses every request.
type Dependencies struct {
	Wallet      *wallet.Wallet
	DataDir     string
	Audit       *audit.Log // nil disables the /audit endpoint
	Metrics     *metrics.Registry
	ControlHash string
	RateLimiter *ratelimit.Limiter // nil disables rate limiting
	Idempotency *idempotency.Cache // nil disables idempotency replay
}

const maxBodySize = 1 << 20 // 1 MiB; control-plane payloads are small JSON documents

func bodySizeLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// Mount registers the control-plane API under /admin/v1 on r.
func Mount(r chi.Router, d Dependencies) {
	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(bodySizeLimit)
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		if d.Idempotency != nil {
			r.Use(idempotency.Middleware(d.Idempotency))
		}
		r.Use(controlauth.Middleware(d.ControlHash))

		r.Get("/status", statusHandler(d))
		r.Post("/unlock", unlockHandler(d))
		r.Post("/lock", lockHandler(d))
		r.Post("/reset", resetHandler(d))

		r.Get("/integrations", integrationsListHandler(d))
		r.Post("/integrations/{key}/bind", integrationBindHandler(d))
		r.Delete("/integrations/{key}", integrationDeleteHandler(d))

		r.Get("/credentials", credentialsListHandler(d))
		r.Post("/credentials", credentialAddHandler(d))
		r.Delete("/credentials/{id}", credentialDeleteHandler(d))

		r.Get("/settings", settingsGetHandler(d))
		r.Put("/settings", settingsSetHandler(d))

		if d.Audit != nil {
			r.Get("/audit", auditListHandler(d))
		}
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// walletErrorStatus maps wallet package sentinel errors to HTTP status codes.
func walletErrorStatus(err error) int {
	switch {
	case errors.Is(err, wallet.ErrWalletLocked):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrAlreadyInitialised):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrNotInitialised):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrBadPassphrase):
		return http.StatusUnauthorized
	case errors.Is(err, wallet.ErrIntegrationNotFound), errors.Is(err, wallet.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrDuplicateIntegrationKey), errors.Is(err, wallet.ErrInvalidIntegrationKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func statusHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"state": d.Wallet.State().String(),
		})
	}
}

type unlockRequest struct {
	Passphrase string `json:"passphrase"`
}

func unlockHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req unlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Wallet.Unlock([]byte(req.Passphrase)); err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "wallet.unlocked", Status: "ok"})
		writeJSON(w, http.StatusOK, map[string]string{"state": d.Wallet.State().String()})
	}
}

func lockHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Wallet.Lock()
		recordAudit(r, d, audit.Entry{Kind: "wallet.locked", Status: "ok"})
		writeJSON(w, http.StatusOK, map[string]string{"state": d.Wallet.State().String()})
	}
}

func resetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Wallet.Reset(); err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "wallet.reset", Status: "ok"})
		writeJSON(w, http.StatusOK, map[string]string{"state": d.Wallet.State().String()})
	}
}

func integrationsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := d.Wallet.ListIntegrations()
		if err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func integrationDeleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := d.Wallet.RemoveIntegration(key); err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "integration.removed", IntegrationKey: key, Status: "ok"})
		w.WriteHeader(http.StatusNoContent)
	}
}

type bindRequest struct {
	CredentialID string `json:"credential_id"`
}

func integrationBindHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var req bindRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Wallet.BindCredential(key, req.CredentialID); err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "credential.bound", IntegrationKey: key, Status: "ok"})
		w.WriteHeader(http.StatusNoContent)
	}
}

func credentialsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := d.Wallet.ListCredentials()
		if err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

type credentialAddRequest struct {
	Provider    string                `json:"provider"`
	DisplayName string                `json:"display_name"`
	Kind        wallet.CredentialKind `json:"kind"`
	Secret      string                `json:"secret"`
}

func credentialAddHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := d.Wallet.AddCredential(req.Provider, req.DisplayName, req.Kind, []byte(req.Secret))
		if err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "credential.added", IntegrationKey: req.Provider, Status: "ok"})
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func credentialDeleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Wallet.RemoveCredential(id); err != nil {
			writeError(w, walletErrorStatus(err), err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "credential.removed", Status: "ok"})
		w.WriteHeader(http.StatusNoContent)
	}
}

func settingsGetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := config.LoadSettings(d.DataDir)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func settingsSetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s config.Settings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := config.SaveSettings(d.DataDir, s); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		recordAudit(r, d, audit.Entry{Kind: "settings.updated", Status: "ok"})
		writeJSON(w, http.StatusOK, s)
	}
}

func auditListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := d.Audit.List(r.Context(), 200, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// recordAudit records an audit entry best-effort; a logging failure never
// fails the underlying wallet operation, which has already succeeded.
func recordAudit(r *http.Request, d Dependencies, e audit.Entry) {
	if d.Audit == nil {
		return
	}
	_ = d.Audit.Record(r.Context(), e)
}
