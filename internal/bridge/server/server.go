// Package server provides the HTTP server for chatbridge. It mounts the session
// endpoints, version and readiness checks and the metrics endpoint behind the
// logging, panic recovery and CORS middleware.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/tansive/chatbridge/internal/bridge/observability"
	"github.com/tansive/chatbridge/internal/bridge/session"
	"github.com/tansive/chatbridge/internal/common/httpx"
	"github.com/tansive/chatbridge/internal/common/logtrace"
	"github.com/tansive/chatbridge/internal/common/middleware"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	HandleCORS     bool
	RequestTimeout time.Duration
	DriverVersion  string
	Ready          ReadinessCheck
}

// BridgeServer is the HTTP server of the service.
type BridgeServer struct {
	Router *chi.Mux // HTTP router for request handling

	api     *session.API
	metrics *observability.Metrics
	opts    Options
}

// CreateNewServer creates a server for the coordinator. metrics may be nil, in
// which case /metrics is not served.
func CreateNewServer(coordinator *session.Coordinator, metrics *observability.Metrics, opts Options) (*BridgeServer, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	return &BridgeServer{
		Router:  chi.NewRouter(),
		api:     session.NewAPI(coordinator),
		metrics: metrics,
		opts:    opts,
	}, nil
}

// MountHandlers sets up all HTTP routes and middleware for the server.
func (s *BridgeServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	if s.opts.HandleCORS {
		s.Router.Use(s.HandleCORS)
	}
	s.mountResourceHandlers(s.Router)
	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in chatbridge router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("Error walking router")
		}
	}
}

func (s *BridgeServer) mountResourceHandlers(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.SetTimeout(s.opts.RequestTimeout))
		s.api.Router(r)
	})
	s.api.StreamRouter(r)
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

// GetVersionRsp represents the response for version information.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`           // server version string
	DriverVersion string `json:"driverVersion,omitempty"` // automation sidecar version, when probed
}

func (s *BridgeServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Chatbridge Server: " + Version,
		DriverVersion: s.opts.DriverVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *BridgeServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// HandleCORS provides CORS middleware for cross-origin requests.
func (s *BridgeServer) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
