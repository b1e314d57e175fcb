package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"codeberg.org/mutker/cryoctl/internal/publish"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	maxRequestSize    = 64 << 10
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type Config struct {
	Listen         string
	OriginPatterns []string
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

// Server exposes the command protocol over HTTP and WebSocket, plus
// read-only status endpoints.
type Server struct {
	cfg     Config
	ctrl    Controller
	handler *Handler
	logger  logger.Logger
}

func New(cfg Config, ctrl Controller) *Server {
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		handler: NewHandler(ctrl),
		logger:  logger.Component("server"),
	}
}

// Router returns the HTTP handler with every route and the access log.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/command", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/v1/command/ws", s.handleCommandWS).Methods(http.MethodGet)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics).Methods(http.MethodGet)
	}

	return handlers.LoggingHandler(logger.Writer("http"), r)
}

// Run serves until ctx is cancelled. A listener failure is returned as a
// transport_failed error; a cancelled ctx shuts the server down gracefully
// and returns nil.
func (s *Server) Run(ctx context.Context) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(errors.ErrTransport, err).WithData(s.cfg.Listen)
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
		// websocket handlers end with ctx, hijacked connections are not
		// tracked by Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	s.logger.Info().Str("listen", ln.Addr().String()).Msg("Command endpoint listening")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errFactory.Wrap(errors.ErrTransport, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	s.logger.Info().Msg("Command endpoint stopped")

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, publish.NewStatusMessage(s.ctrl.Status()))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read command body")
		http.Error(w, "unreadable request body", http.StatusBadRequest)
		return
	}

	ack := s.handler.Handle(r.Context(), body)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ack)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("Failed to encode response")
	}
}
