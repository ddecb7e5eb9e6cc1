package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/harborkv/dsgate/pkg/access"
	"github.com/harborkv/dsgate/pkg/api"
	"github.com/harborkv/dsgate/pkg/budget"
	"github.com/harborkv/dsgate/pkg/bulk"
	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/executor"
	"github.com/harborkv/dsgate/pkg/observability"
)

// Server represents the main gateway process
type Server struct {
	log    logrus.FieldLogger
	config *Config

	store         datastore.Store
	accessService access.Service
	bulkService   bulk.Service
	apiService    api.Service

	pprofServer  *http.Server
	healthServer *http.Server
}

// NewServer creates a new server instance, wiring every component
func NewServer(_ context.Context, log logrus.FieldLogger, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := datastore.New(log, &config.Datastore)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore: %w", err)
	}

	tracker, err := budget.NewTracker(log, &config.Budget)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget tracker: %w", err)
	}

	cch, err := cache.New(log, &config.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	exec, err := executor.New(log, &config.Executor, tracker, cch)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	accessService, err := access.NewService(log, &config.Access, store, exec, cch)
	if err != nil {
		return nil, fmt.Errorf("failed to create access service: %w", err)
	}

	bulkService, err := bulk.NewService(log, &config.Bulk, exec, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk engine: %w", err)
	}

	apiService := api.NewService(&config.API, accessService, bulkService, log)

	return &Server{
		config:        config,
		log:           log,
		store:         store,
		accessService: accessService,
		bulkService:   bulkService,
		apiService:    apiService,
	}, nil
}

// Start starts the server and all its components
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if err := s.accessService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start access service: %w", err)
	}

	if err := s.bulkService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bulk engine: %w", err)
	}

	if err := s.apiService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start api service: %w", err)
	}

	// Start metrics server
	g.Go(func() error {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.log.WithField("panic", recovered).Error("Panic in metrics server goroutine")
			}
		}()
		observability.StartMetricsServer(ctx, s.config.MetricsAddr)
		<-ctx.Done()

		return nil
	})

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		// Use a fresh context for cleanup since the current one is canceled
		cleanupCtx := context.Background()

		return s.stop(cleanupCtx)
	})

	return g.Wait()
}

func (s *Server) stop(ctx context.Context) error {
	// Create a timeout context for cleanup
	cleanupCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if err := s.apiService.Stop(); err != nil {
		s.log.WithError(err).Error("failed to stop api service")
	}

	if err := s.bulkService.Stop(); err != nil {
		s.log.WithError(err).Error("failed to stop bulk engine")
	}

	if err := s.accessService.Stop(); err != nil {
		s.log.WithError(err).Error("failed to stop access service")
	}

	if err := s.store.Close(); err != nil {
		s.log.WithError(err).Error("failed to close datastore")
	}

	// Shutdown HTTP servers
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	// Stop metrics server using observability package
	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Gateway stopped gracefully")

	return nil
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s.healthServer.ListenAndServe()
}
