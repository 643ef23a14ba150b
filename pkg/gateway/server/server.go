package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/camarero-ai/camarero/pkg/gateway/config"
	"github.com/camarero-ai/camarero/pkg/gateway/handlers"
	"github.com/camarero-ai/camarero/pkg/gateway/lifecycle"
	"github.com/camarero-ai/camarero/pkg/gateway/mw"
	"github.com/camarero-ai/camarero/pkg/session"
)

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	lifecycle *lifecycle.Lifecycle

	store    *session.Store
	pipeline *session.Pipeline
}

// New wires the HTTP surface around an already-constructed store and
// pipeline. Provider clients are built by the caller so tests can inject
// fakes.
func New(cfg config.Config, store *session.Store, pipeline *session.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		store:     store,
		pipeline:  pipeline,
	}

	s.routes()
	return s
}

// NewHTTPClient returns the outbound client used for provider calls.
func NewHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/session/action", &handlers.ActionHandler{
		Store:        s.store,
		Pipeline:     s.pipeline,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
		Logger:       s.logger,
	})
	s.mux.Handle("/session/poll", &handlers.PollHandler{
		Store: s.store,
	})
	s.mux.Handle("/session/stream", &handlers.StreamHandler{
		Config: s.cfg,
		Store:  s.store,
		Logger: s.logger,
	})
}

// SetDraining flips readiness to 503 so load balancers stop routing new
// sessions during shutdown.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
