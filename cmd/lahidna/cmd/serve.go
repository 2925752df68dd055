package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lahidna/internal/server"
	"github.com/MeKo-Tech/lahidna/internal/version"
)

const pruneInterval = 10 * time.Minute

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the background HTTP server",
	Long: `Start an HTTP server hosting the background side of the engine.

The server provides the following endpoints:
  GET  /health   - Health check endpoint
  GET  /metrics  - Prometheus metrics
  GET  /rewrite  - Apply the search rewrite rule to ?url=
  GET  /detect   - Classify ?text= (or POST {"text": ...})
  GET  /route    - Show which adapter serves ?host=
  GET  /relay    - WebSocket relay for content pages

Examples:
  lahidna serve
  lahidna serve --port 8080
  lahidna serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		rateLimitEnabled := cfg.Server.RateLimitEnabled
		if cmd.Flags().Changed("rate-limit-enabled") {
			rateLimitEnabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
		}

		requestsPerMinute := cfg.Server.RequestsPerMinute
		if cmd.Flags().Changed("requests-per-minute") {
			requestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}

		requestsPerHour := cfg.Server.RequestsPerHour
		if cmd.Flags().Changed("requests-per-hour") {
			requestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}

		maxPerDay := cfg.Server.MaxRequestsPerDay
		if cmd.Flags().Changed("max-requests-per-day") {
			maxPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer func() { _ = a.Close() }()

		if a.reporter != nil {
			a.reporter.Start(ctx)
		}
		go func() {
			if err := a.rules.Run(ctx, cfg.RewriteRefresh()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Search rewrite sync stopped", "error", err)
			}
		}()
		go refreshLoop(ctx, cfg.FeaturesRefresh(), func(ctx context.Context) {
			if err := a.flags.Refresh(ctx); err != nil {
				slog.Warn("Failed to refresh feature flags", "error", err)
			}
		})

		srv := server.NewServer(server.Config{
			Host:              host,
			Port:              port,
			CORSOrigin:        corsOrigin,
			TimeoutSec:        timeout,
			Version:           version.Version,
			RateLimitEnabled:  rateLimitEnabled,
			RequestsPerMinute: requestsPerMinute,
			RequestsPerHour:   requestsPerHour,
			MaxRequestsPerDay: maxPerDay,
			Rewriter:          a.rules,
			Detector:          a.detector,
			Relay:             a.background,
			RelayTimeout:      cfg.RelayTimeout(),
		})
		if rateLimitEnabled {
			go refreshLoop(ctx, pruneInterval, func(context.Context) {
				if n := srv.PruneRateLimits(); n > 0 {
					slog.Debug("Pruned rate limit entries", "count", n)
				}
			})
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting lahidna server", "host", host, "port", port, "user_id", a.userID)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}
		cancel()
		if a.reporter != nil {
			select {
			case <-a.reporter.Done():
			case <-shutdownCtx.Done():
			}
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// refreshLoop calls fn every interval until ctx ends.
func refreshLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
}
