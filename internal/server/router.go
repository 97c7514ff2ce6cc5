// Package server exposes the credential broker over HTTP Basic auth.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/systmms/mailbroker/internal/broker"
	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/metrics"
)

// Authenticator is satisfied by *broker.Broker.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*broker.CredentialBundle, error)
}

// NewRouter returns the HTTP handler. Every GET path outside /healthz and
// /metrics is an authentication request. rec may be nil.
func NewRouter(auth Authenticator, rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()

	// No request logger: the broker writes the one line per attempt.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if rec != nil {
		r.Handle("/metrics", rec.Handler())
	}

	h := &authHandler{auth: auth}
	r.Get("/", h.ServeHTTP)
	r.Get("/*", h.ServeHTTP)

	return otelhttp.NewHandler(r, "mailbroker")
}

type authHandler struct {
	auth Authenticator
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *authHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	bundle, err := h.auth.Authenticate(r.Context(), username, password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, bundle)
	case mberrors.Is(err, mberrors.Unauthorized):
		w.WriteHeader(http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
