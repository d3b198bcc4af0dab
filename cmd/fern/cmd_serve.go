package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/resolve"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve single-record resolution, stored decisions, health and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			checker := health.NewChecker(version)
			backend := &servingBackend{}
			e := newServer(a, checker, backend)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Port),
				Handler:      e,
				ReadTimeout:  time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:  time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				a.logger.WithContext(ctx).Infof("Listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			if err := a.start(ctx); err != nil {
				_ = server.Close()
				return err
			}
			registerChecks(a, checker)
			backend.engine.Store(a.engine)
			if a.repo != nil {
				backend.repo.Store(a.repo)
			}
			checker.SetReady(true)
			a.logger.WithContext(ctx).Info("Ready")

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
			}

			checker.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.logger.WithContext(shutdownCtx).Info("Shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
	return cmd
}

// newServer builds the echo server. The resolve routes answer 503 until backend is filled.
func newServer(a *app, checker *health.Checker, backend *servingBackend) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	resolve.NewHandler(backend, backend, backend, a.logger).Register(e.Group("/api/v1"))
	return e
}

func registerChecks(a *app, checker *health.Checker) {
	if a.db != nil {
		checker.AddCheck("database", a.db.PingContext)
	}
	if a.redis != nil {
		checker.AddCheck("redis", a.redis.Ping)
	}
	if a.graph != nil {
		checker.AddCheck("graph", a.graph.VerifyConnectivity)
	}
}
