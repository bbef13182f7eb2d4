package commands

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

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/dashboard"
	"github.com/flowdeck/flowdeck/internal/history"
	"github.com/flowdeck/flowdeck/internal/metrics"
	"github.com/flowdeck/flowdeck/internal/telemetry"
	"github.com/flowdeck/flowdeck/internal/traffic"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string
	var tracing bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the flowdeck dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				// Fall back to defaults if no config file
				cfg = config.Defaults()
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if tracing {
				cfg.Server.Tracing = true
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Server.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Server.Tracing {
				shutdown, err := telemetry.Setup(ctx)
				if err != nil {
					return err
				}
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(flushCtx)
				}()
			}

			m := metrics.New()
			tracker := traffic.NewTracker(m, logger)

			store, err := history.NewStore(cfg.History.Path, cfg.History.RetentionDays, logger)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			defer func() { _ = store.Close() }()

			// Persist a summary of every snapshot the feed delivers.
			// The recorder must be fully drained before the deferred
			// store.Close runs.
			snaps := tracker.Hub().Subscribe()
			recorderDone := make(chan struct{})
			go func() {
				defer close(recorderDone)
				for snap := range snaps {
					store.Record(history.Summarize(snap))
				}
			}()
			defer func() {
				tracker.Hub().Unsubscribe(snaps)
				<-recorderDone
			}()

			feed := traffic.NewFeed(cfg.Feed.RedisAddr, cfg.Feed.Channel, tracker, logger)
			defer func() { _ = feed.Close() }()
			feedErr := make(chan error, 1)
			go func() { feedErr <- feed.Run(ctx) }()

			dash := dashboard.NewServer(cfg, tracker, store, m, logger)

			// Hot-reload tab order and selector tuning on config change.
			go func() {
				if err := config.Watch(ctx, cfgFile, logger, dash.Reconfigure); err != nil {
					logger.Warn("config watcher unavailable", "error", err)
				}
			}()

			var handler http.Handler = dash.Handler()
			if cfg.Server.Tracing {
				handler = otelhttp.NewHandler(handler, "dashboard")
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			printBanner(cfg, dash.AccessCode())

			httpErr := make(chan error, 1)
			go func() { httpErr <- srv.ListenAndServe() }()

			select {
			case err := <-feedErr:
				return fmt.Errorf("feed: %w", err)
			case err := <-httpErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().BoolVar(&tracing, "trace", false, "emit OpenTelemetry spans to stdout")
	return cmd
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printBanner(cfg *config.Config, accessCode string) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	codeStyle := color.New(color.FgCyan, color.Bold)

	fmt.Println()
	fmt.Println("  flowdeck")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Dashboard:  http://%s:%d/dashboard\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Metrics:    http://%s:%d/metrics\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Health:     http://%s:%d/health\n", bindAddr, cfg.Server.Port)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Access code:  %s\n", codeStyle.Sprint(accessCode))
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Feed: redis://%s %s\n", cfg.Feed.RedisAddr, cfg.Feed.Channel)
	fmt.Println()
	fmt.Println("  Enter this code in the browser to access the dashboard.")
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}
