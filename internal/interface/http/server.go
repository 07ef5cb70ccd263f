// Package http implements the worker's operational HTTP endpoints: health
// checks, Prometheus metrics, batch status and read-only user stats.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/leetsync/leetsync-stats/internal/application/query"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
	"github.com/leetsync/leetsync-stats/pkg/logger"
)

// Config is the ops listener.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// EnableMetrics mounts the Prometheus registry on /metrics.
	EnableMetrics bool
	// EnableTrigger mounts POST /api/v1/batch/run.
	EnableTrigger bool
}

// DefaultConfig listens on all interfaces, port 9090, with metrics on and
// the manual trigger off.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           9090,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		EnableMetrics:  true,
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthChecker reports whether the fact source and the cache are reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BatchReporter exposes the most recent batch.
type BatchReporter interface {
	LastResult() *jobs.BatchResult
}

// JobRunner lists and triggers scheduled jobs. *scheduler.Scheduler implements it.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, jobName string) (*scheduler.JobResult, error)
}

// Dependencies are optional; a nil member turns its endpoints into 501s.
type Dependencies struct {
	Health    HealthChecker
	Batch     BatchReporter
	Jobs      JobRunner
	UserStats *query.GetUserStatsHandler
	Metrics   http.Handler
	Logger    *logger.Logger

	// BatchJobName is the job POST /api/v1/batch/run triggers.
	BatchJobName string
	// Version is reported on GET /.
	Version string
}

// Server serves the ops endpoints. Manual batch runs started through it are
// cancelled and awaited by Shutdown.
type Server struct {
	config  Config
	deps    Dependencies
	log     *logger.Logger
	handler http.Handler
	srv     *http.Server

	runCtx    context.Context
	runCancel context.CancelFunc
	runs      sync.WaitGroup

	mu        sync.Mutex
	startedAt time.Time // zero while not serving
}

func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    log.With(logger.Component("http")),
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	s.handler = chain(s.routes(),
		s.withRequestID,
		s.withRecovery,
		s.withAccessLog,
	)
	s.srv = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler is the full middleware-wrapped mux.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /live", s.handleLive)
	for _, path := range healthPaths {
		mux.HandleFunc("GET "+path, s.handleHealth)
	}

	mux.HandleFunc("GET /api/v1/users/{username}/stats", s.handleGetUserStats)
	mux.HandleFunc("GET /api/v1/batch/last", s.handleLastBatch)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	if s.config.EnableTrigger {
		mux.HandleFunc("POST /api/v1/batch/run", s.handleRunBatch)
	}
	if s.config.EnableMetrics && s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	return mux
}

var healthPaths = []string{"/health", "/healthz"}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// StartAsync binds the listener and serves in the background. The channel
// yields at most one error and is closed when serving stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	s.mu.Lock()
	if !s.startedAt.IsZero() {
		s.mu.Unlock()
		errCh <- errors.New("http: server already running")
		close(errCh)
		return errCh
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.mu.Unlock()
		errCh <- fmt.Errorf("http: listen on %s: %w", s.srv.Addr, err)
		close(errCh)
		return errCh
	}
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("serving ops endpoints", logger.String("address", ln.Addr().String()))

	go func() {
		defer close(errCh)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: serve: %w", err)
		}
		s.mu.Lock()
		s.startedAt = time.Time{}
		s.mu.Unlock()
	}()
	return errCh
}

// Shutdown cancels manual runs, drains connections and waits for the runs to
// return. It is safe to call on a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.runCancel()

	s.mu.Lock()
	serving := !s.startedAt.IsZero()
	s.mu.Unlock()

	var err error
	if serving {
		s.log.Info("shutting down ops endpoints")
		err = s.srv.Shutdown(ctx)
	}
	s.runs.Wait()
	return err
}

// Uptime is zero unless the server is serving.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
