package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/basket-guardian/internal/server"
	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the scheduled budget sweep",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	logger := a.Logger
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	sched, err := startSweepSchedule(cfg.Budget.SweepSchedule, a.Monitor, logger)
	if err != nil {
		return err
	}
	if sched != nil {
		defer func() { <-sched.Stop().Done() }()
	}

	apiServer := server.NewServer(a.ServerDeps(), logger, server.WithMaxBodySize(cfg.Server.MaxBodySize))
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api started", "listen", cfg.Server.Listen)
		fmt.Fprintf(os.Stderr, "Basket Guardian listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("api stopped")
	return nil
}

// startSweepSchedule runs the budget sweep on a cron schedule. An empty
// spec disables it and returns nil.
func startSweepSchedule(spec string, monitor *budget.Monitor, logger *slog.Logger) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := monitor.Sweep(ctx); err != nil {
			logger.Error("scheduled budget sweep", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("budget.sweep_schedule %q: %w", spec, err)
	}
	c.Start()
	logger.Info("budget sweep scheduled", "schedule", spec)
	return c, nil
}
