package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aimd54/addon-ratings/internal/api/ratings"
	"github.com/aimd54/addon-ratings/internal/api/stats"
	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/service/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server, task workers and scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.migrate(); err != nil {
		return err
	}
	system, err := a.systemUser()
	if err != nil {
		return err
	}
	service, err := a.ratingService(system)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	a.startQueue(ctx)

	if a.cfg.Scheduler.Enabled {
		sched := scheduler.NewService(&a.cfg.Scheduler, a.denorm, a.log.Component("scheduler"))
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	if a.cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ratings.RequestID(), ratings.AccessLog(a.log.Component("http")), gin.Recovery())
	if err := router.SetTrustedProxies(a.cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	verifier := auth.NewVerifier(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer)
	statsHandler := stats.NewHandler(a.addons, a.denorm, map[string]stats.Check{
		"postgres": func(context.Context) error { return a.db.Health() },
		"redis":    a.cache.Health,
	}, a.log.Component("stats"))

	router.GET("/health", statsHandler.Health)
	if a.cfg.Metrics.Prometheus.Enabled {
		router.GET(a.cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1", auth.Middleware(verifier, a.users, a.log.Component("auth")))
	ratings.NewHandler(service, a.log.Component("api")).Register(api)
	statsHandler.Register(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		var reason string
		select {
		case s := <-quit:
			reason = s.String()
		case <-ctx.Done():
			reason = "context cancelled"
		}
		a.log.Info().Str("signal", reason).Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	a.log.Info().Int("port", a.cfg.Server.Port).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdown; err != nil {
		return err
	}

	stop()
	a.log.Info().Msg("Server stopped")
	return nil
}
