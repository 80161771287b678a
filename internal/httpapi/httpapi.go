// Package httpapi exposes the vault's public HTTP surface: signing,
// per-domain JWKS publication, manual rotation, a liveness probe, and
// Prometheus metrics. The actual Sign/GetJWKS/Rotate RPCs are pinned
// operations with no generated wire stubs in this tree, so they're served
// as plain JSON over net/http rather than gRPC; it mirrors the plain
// *http.Server/http.ServeMux pattern the gRPC service's own REST proxy and
// metrics listeners use, rather than a router framework.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/keymanager"
	"go.keyforge.dev/vault/internal/vault/validate"
)

// Server serves the vault's sign, JWKS, rotate, health, and metrics
// endpoints.
type Server struct {
	keys   *keymanager.Manager
	logger *slog.Logger
	http   *http.Server
}

// New builds a Server bound to addr. Routes are registered immediately;
// call Start to begin serving.
func New(addr string, keys *keymanager.Manager, logger *slog.Logger) *Server {
	s := &Server{keys: keys, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/sign/", s.handleSign)
	mux.HandleFunc("/rotate/", s.handleRotate)
	mux.HandleFunc("/jwks/", s.handleJwks)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "starting sign/jwks/rotate/health/metrics server", slog.String("address", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type signResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	domain := strings.TrimPrefix(r.URL.Path, "/sign/")
	if err := validate.Domain(domain); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	// The manager enforces its own byte cap on the final marshaled payload
	// (after it adds iat), so this gate only checks shape, not size.
	payload, err := validate.SignPayload(raw, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.keys.Sign(r.Context(), vaultinternal.Domain(domain), payload)
	if err != nil {
		s.writeSignError(w, r.Context(), domain, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signResponse{Token: token})
}

func (s *Server) writeSignError(w http.ResponseWriter, ctx context.Context, domain string, err error) {
	var validationErr *vaultinternal.ValidationError
	var missingKeyErr *vaultinternal.MissingKeyError
	switch {
	case errors.As(err, &validationErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &missingKeyErr):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	default:
		s.logger.ErrorContext(ctx, "sign request failed", slog.String("domain", domain), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type rotateResponse struct {
	Kid     string `json:"kid"`
	Outcome string `json:"outcome"`
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	domain := strings.TrimPrefix(r.URL.Path, "/rotate/")
	if err := validate.Domain(domain); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	kid, outcome, err := s.keys.TriggerDomainRotation(r.Context(), vaultinternal.Domain(domain))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "rotate request failed", slog.String("domain", domain), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rotateResponse{Kid: string(kid), Outcome: outcome.String()})
}

func (s *Server) handleJwks(w http.ResponseWriter, r *http.Request) {
	domain := strings.TrimPrefix(r.URL.Path, "/jwks/")
	if err := validate.Domain(domain); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := s.keys.GetJwks(r.Context(), vaultinternal.Domain(domain))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to build JWKS response", slog.String("domain", domain), slog.Any("error", err))
		http.Error(w, "failed to build JWKS", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
