package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/auth"
	"github.com/avelar/chatd/internal/config"
)

// Server exposes the WebSocket endpoint and a liveness probe. Credentials
// are checked before the upgrade, so a rejected client never reaches the
// authenticated state and costs no session resources.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	auth     *auth.Authenticator
	deps     Deps
	upgrader websocket.Upgrader
	srv      *http.Server
	allowAll bool
	allowed  map[string]struct{}
}

// NewServer wires the HTTP surface. AllowedOrigins containing "*" disables
// the origin check.
func NewServer(cfg *config.Config, logger *zap.Logger, authenticator *auth.Authenticator, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		auth:    authenticator,
		deps:    deps,
		allowed: make(map[string]struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			s.allowAll = true
			continue
		}
		s.allowed[strings.TrimSuffix(strings.ToLower(origin), "/")] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HandshakeGrace.Duration,
	}
	return s
}

// Handler returns the HTTP handler, for serving through a test listener.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start blocks serving connections until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", zap.String("addr", s.cfg.ListenAddr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains the listener. Live WebSocket sessions are closed by their
// own lifecycle when the process tears the rest down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients carry no Origin header.
		return true
	}
	_, ok := s.allowed[strings.TrimSuffix(strings.ToLower(origin), "/")]
	return ok
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWS authenticates, upgrades, and hands the connection to a session.
// The handler goroutine is the session's read loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	machine := newStateMachine()

	user, err := s.auth.Verify(bearerToken(r))
	if err != nil {
		_ = machine.transition(StateDisconnected)
		s.logger.Warn("connection rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := machine.transition(StateAuthenticated); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := newClient(conn, s.cfg.SendBuffer, s.logger)
	newSession(s.deps, user, client, machine, s.logger).run()
}

// bearerToken extracts the credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
