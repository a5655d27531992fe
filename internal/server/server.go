// Package server assembles the read-only HTTP façade over the search
// index: health probes, version, and the /api search surface. The server
// never writes to the index; imports stay a CLI concern.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/internal/server/handlers"
	"github.com/3leaps/gotrawl/internal/server/middleware"
	"github.com/3leaps/gotrawl/pkg/indexstore"
)

// Default lifecycle timeouts, overridable through the server.* config keys.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Option adjusts a Server at construction.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStore attaches the index store served under /api.
func WithStore(store *indexstore.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithTimeouts overrides the HTTP server timeouts. Zero values keep the
// defaults.
func WithTimeouts(read, write, idle, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// WithBasicAuth guards the /api routes with HTTP basic auth. Health and
// version endpoints stay open for probes.
func WithBasicAuth(user, password string) Option {
	return func(s *Server) {
		s.basicUser = user
		s.basicPass = password
	}
}

// Server is the HTTP façade.
type Server struct {
	host string
	port int
	log  *zap.Logger

	store     *indexstore.Store
	basicUser string
	basicPass string

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	httpSrv *http.Server
}

// New builds a server bound to host:port. Port 0 picks an ephemeral port
// at Start.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:            host,
		port:            port,
		log:             observability.ServerLogger,
		readTimeout:     DefaultReadTimeout,
		writeTimeout:    DefaultWriteTimeout,
		idleTimeout:     DefaultIdleTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Port returns the configured port, or the bound port once Start has
// listened.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the host:port the server binds.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Handler builds the router. Every response, including router-level 404
// and 405, uses the standard error envelope.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(s.log))
	r.Use(middleware.Recovery)
	r.Use(chimw.Timeout(s.writeTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.NotFound(w, req, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.MethodNotAllowed(w, req)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	r.Route("/api", func(r chi.Router) {
		if s.basicUser != "" || s.basicPass != "" {
			r.Use(middleware.BasicAuth(s.basicUser, s.basicPass))
		}
		if s.store == nil {
			r.Get("/search", handlers.NotConfigured)
			r.Get("/suggest", handlers.NotConfigured)
			r.Get("/docs/{id}", handlers.NotConfigured)
			return
		}
		api := handlers.NewAPI(s.store, s.log)
		r.Get("/search", api.Search)
		r.Get("/suggest", api.Suggest)
		r.Get("/docs/{id}", api.Document)
	})

	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests
// under the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	s.log.Info("http server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("index_attached", s.store != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown drains in-flight requests. Safe before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
