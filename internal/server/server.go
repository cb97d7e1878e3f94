// Package server implements the HTTP surface (C8): the three routes of
// §4.8, body-size limiting, and auth-driven role resolution, the way
// node/rpcstack.go builds its HTTP handler stack.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/router"
)

// Server is C8: the HTTP surface wrapping the router.
type Server struct {
	router             *router.Router
	controllerVerifier *auth.ControllerVerifier
	clientVerifier     *auth.KeyCollection
	bodyLimit          int64

	httpSrv  *http.Server
	listener net.Listener
}

// New builds the server's handler stack. corsOrigins empty disables CORS,
// matching node/rpcstack.go's newCorsHandler: consensus clients never send
// an Origin header, so the default is to skip CORS entirely.
func New(addr string, port int, bodyLimit int64, corsOrigins []string, r *router.Router, controllerVerifier *auth.ControllerVerifier, clientVerifier *auth.KeyCollection) *Server {
	s := &Server{router: r, controllerVerifier: controllerVerifier, clientVerifier: clientVerifier, bodyLimit: bodyLimit}

	mux := http.NewServeMux()
	mux.HandleFunc("/canonical", s.handleCanonical)
	mux.HandleFunc("/", s.handleClient)
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = mux
	if len(corsOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodGet},
			AllowedHeaders: []string{"*"},
			MaxAge:         600,
		}).Handler(handler)
	}

	s.httpSrv = &http.Server{
		Addr:    net.JoinHostPort(addr, strconv.Itoa(port)),
		Handler: handler,
	}
	return s
}

// ListenAndServe binds the listener and serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.httpSrv.Addr, err)
	}
	s.listener = ln
	log.Info("http server listening", "addr", s.httpSrv.Addr)
	err = s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleCanonical(w http.ResponseWriter, req *http.Request) {
	role, err := s.resolveRole(req, auth.RoleController)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.serveJSONRPC(w, req, role)
}

func (s *Server) handleClient(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	role, err := s.resolveRole(req, auth.RoleClient)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.serveJSONRPC(w, req, role)
}

// resolveRole verifies req's bearer token against the verifier appropriate
// for expected, and confirms the resolved role matches — a client secret
// on /canonical (or vice versa) is still a verification failure, since
// each route only has a verifier for its own expected role.
func (s *Server) resolveRole(req *http.Request, expected auth.RoleKind) (auth.Role, error) {
	bearer, err := auth.BearerToken(req.Header.Get("Authorization"))
	if err != nil {
		return auth.Role{}, err
	}
	switch expected {
	case auth.RoleController:
		return s.controllerVerifier.Verify(bearer)
	default:
		return s.clientVerifier.Verify(bearer)
	}
}
