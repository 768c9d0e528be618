// Package controlauth protects the control-plane HTTP API (the non-MCP
// admin surface the desktop shell drives) with a single bcrypt-hashed
// bearer token. Generate produces a token and its hash; vaultd reads the
// hash from the MCPVAULT_CONTROL_TOKEN_HASH environment variable at
// startup. It is deliberately far simpler than a
// multi-tenant API key system: there is exactly one local shell talking
// to exactly one vaultd process.
package controlauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	tokenPrefix    = "mcpvault_ctl_"
	tokenRandBytes = 32
	bcryptCost     = 10
)

// hashForBcrypt pre-hashes a token with SHA-256 to stay within bcrypt's
// 72-byte input limit, same approach the teacher's apikey package uses.
func hashForBcrypt(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(h[:]))
}

// Generate creates a new random control-plane token and its bcrypt hash.
// The plaintext is returned exactly once — only the hash is persisted.
func Generate() (plaintext string, hash string, err error) {
	raw := make([]byte, tokenRandBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}
	plaintext = tokenPrefix + hex.EncodeToString(raw)
	h, err := bcrypt.GenerateFromPassword(hashForBcrypt(plaintext), bcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return plaintext, string(h), nil
}

// Validate reports whether token matches the stored bcrypt hash.
func Validate(token, hash string) bool {
	if hash == "" || !strings.HasPrefix(token, tokenPrefix) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), hashForBcrypt(token)) == nil
}

var ErrNoToken = errors.New("control-plane token not configured")

type contextKey string

const authedKey contextKey = "controlauth.authed"

// Authed reports whether the request's middleware chain already validated
// a control-plane token.
func Authed(ctx context.Context) bool {
	v, _ := ctx.Value(authedKey).(bool)
	return v
}

// Middleware validates Authorization: Bearer <token> against hash. An
// empty hash means no control-plane token has been configured, in which
// case every request is rejected rather than silently allowed through.
func Middleware(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				slog.Warn("control auth: no token configured", slog.String("path", r.URL.Path))
				http.Error(w, ErrNoToken.Error(), http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || !Validate(token, hash) {
				slog.Warn("control auth: invalid token", slog.String("path", r.URL.Path))
				http.Error(w, "invalid control-plane token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), authedKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
