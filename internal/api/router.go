package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/DALE-GH/location-tracker/internal/api/handlers/http/locations"
	"github.com/DALE-GH/location-tracker/internal/api/handlers/http/system"
	"github.com/DALE-GH/location-tracker/internal/config"
	"github.com/DALE-GH/location-tracker/internal/middleware"
	"github.com/DALE-GH/location-tracker/internal/service"
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    config.Config
}

func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc *service.Service, db system.Pinger) *Server {
	locationHandler := locations.NewHandler(logger, svc.LocationService, svc.StatsService)
	systemHandler := system.NewHandler(logger, db)

	r := InitRouter(ctx, cfg, locationHandler, systemHandler, logger)

	return &Server{
		logger: logger,
		router: r,
		cfg:    *cfg,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func InitRouter(ctx context.Context, cfg *config.Config, locationHandler *locations.Handler, systemHandler *system.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewMux()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", systemHandler.SystemHealth)

		api.Group(func(pr chi.Router) {
			if cfg.AuthRequired() {
				pr.Use(middleware.APIKeyMiddleware(cfg.APIKey))
			}
			if rl := cfg.Http.RateLimit.WithDefaults(); !rl.Disabled {
				pr.Use(middleware.Limit(ctx, rl.RPS, rl.Burst, rl.IdleTTL, logger))
			}
			pr.Use(middleware.BodyLimit(cfg.Http.MaxBodyBytes))

			pr.Get("/stats", locationHandler.LocationStats)
			pr.Get("/export", locationHandler.LocationExport)
			pr.Post("/import", locationHandler.LocationImport)

			pr.Route("/locations", func(lr chi.Router) {
				lr.Get("/", locationHandler.LocationList)
				lr.Post("/", locationHandler.LocationUpsert)
				lr.Delete("/", locationHandler.LocationDeleteAll)

				lr.Get("/nearby/{lat}/{lng}", locationHandler.LocationNearby)

				lr.Route("/{id}", func(ir chi.Router) {
					ir.Get("/", locationHandler.LocationGet)
					ir.Put("/", locationHandler.LocationUpdate)
					ir.Delete("/", locationHandler.LocationDelete)
				})
			})
		})
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Http.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Http.ReadTimeout,
		ReadTimeout:       s.cfg.Http.ReadTimeout,
		WriteTimeout:      s.cfg.Http.WriteTimeout,
		IdleTimeout:       30 * time.Second,
	}

	rl := s.cfg.Http.RateLimit.WithDefaults()

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("location api listening",
			slog.String("addr", srv.Addr),
			slog.String("env", s.cfg.Env),
			slog.Bool("auth_required", s.cfg.AuthRequired()),
			slog.Int64("max_body_bytes", s.cfg.Http.MaxBodyBytes),
			slog.Bool("rate_limit", !rl.Disabled),
			slog.Int("rate_rps", rl.RPS),
			slog.Int("rate_burst", rl.Burst),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api.Server.Run: listen on %s: %w", srv.Addr, err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("location api shutting down",
			slog.String("reason", ctx.Err().Error()),
			slog.Duration("grace", s.cfg.Http.ShutdownTimeout),
		)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown did not finish in time", slog.Any("error", err))
			return fmt.Errorf("api.Server.Run: %w", err)
		}
		s.logger.Info("location api stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
