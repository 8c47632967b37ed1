package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"milestone-escrow/handlers"
	"milestone-escrow/logger"
	"milestone-escrow/routers"
	"milestone-escrow/scheduler"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the escrow HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Logger.Info("Starting escrow server...")

	// Initialize HTTP handlers
	h := handlers.NewHandler(handlers.Services{
		Funding:    a.funding,
		Disputes:   a.disputes,
		Reputation: a.ledger,
		Balances:   a.book,
		Store:      a.store,
		Hub:        a.hub,
		Metrics:    promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Admins:     a.cfg.Admin.Identities,
	})

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: cors.New(cors.Options{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", handlers.IdentityHeader},
		}).Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var manager *scheduler.Manager
	if a.cfg.Scheduler.Enabled {
		sweeper, err := scheduler.NewSweeper(a.funding, a.disputes, a.cfg.Scheduler.Workers, nil)
		if err != nil {
			return fmt.Errorf("create sweeper: %w", err)
		}
		defer sweeper.Close()
		manager, err = scheduler.NewManager(sweeper, a.cfg.Scheduler.Interval)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if err := manager.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Logger.Info("Server running on port", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Logger.Info("Shutdown signal received, exiting...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if manager != nil {
			err = errors.Join(err, manager.Stop())
		}
		return err
	})
	return g.Wait()
}
