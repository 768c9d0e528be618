package mcpserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// MountHTTP registers the MCP HTTP/SSE transport's two endpoints on r:
// POST /messages (one JSON-RPC request/response per call) and GET /sse
// (a long-lived Server-Sent-Events stream carrying notifications), both
// authorised by Authorization: Bearer <session-token> — spec.md §4.5.
func MountHTTP(r chi.Router, s *Server) {
	r.Group(func(r chi.Router) {
		if s.RateLimiter != nil {
			r.Use(s.RateLimiter.Middleware)
		}
		r.Use(bearerAuth(s.SessionToken))
		r.Post("/messages", messagesHandler(s))
		r.Get("/sse", sseHandler(s))
	})
}

func bearerAuth(sessionToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			provided, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(sessionToken)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func messagesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		resp := s.HandleMessage(r.Context(), body)
		w.Header().Set("Content-Type", "application/json")
		if resp == nil {
			// Notification: no JSON-RPC response body, per spec.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// sseHandler streams bus events to the connected client, mirroring the
// teacher's httpapi.SSEHandler.
func sseHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if s.Bus == nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		sub := s.Bus.Subscribe(64)
		if s.Metrics != nil {
			s.Metrics.SSESubscribers.Inc()
			defer s.Metrics.SSESubscribers.Dec()
		}
		defer s.Bus.Unsubscribe(sub)

		_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case e := <-sub.C:
				data := (&e).JSON()
				_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
				flusher.Flush()
			}
		}
	}
}
