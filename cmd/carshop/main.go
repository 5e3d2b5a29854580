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

	"github.com/MimeLyc/carshop-agent/internal/config"
	"github.com/MimeLyc/carshop-agent/internal/httpapi"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carshop",
		Short: "Toyota shopping assistant",
		Long: `Toyota shopping assistant backed by an OpenAI-compatible model.

Available subcommands:
  serve       Run the HTTP API, the confirmation outbox and the catalog audit
  chat        Talk to the assistant from the terminal
  audit       Sweep the catalog for malformed drive types once
  seed        Load trim rows from a JSON file
  session     Issue a session token for a user`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newSessionCmd())
	return cmd
}

// loadConfig reads the environment and any saved runtime settings.
func loadConfig() (*config.Config, error) {
	opts, err := config.OptionalRuntimeSettings(config.RuntimeSettingsFilePath())
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime settings: %w", err)
	}
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

type backgroundService interface {
	Start() error
	Stop()
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	opts := []httpapi.Option{
		httpapi.WithUI(cfg.Server.UIStaticDir, cfg.Server.UIStaticDir != ""),
		httpapi.WithResolver(a.resolver),
		httpapi.WithBookings(a.bookingService, a.store),
		httpapi.WithPreferences(a.store),
		httpapi.WithVoiceTools(a.voice, cfg.Retell.APIKey),
		httpapi.WithRequirements(cfg.RequireLLM, cfg.RequireEmail, cfg.RequireRetell),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithHealthCheck(a.store),
		httpapi.WithMetrics(a.metrics.Handler(), a.metrics.ObserveTurn),
		httpapi.WithAdminToken(cfg.Server.AdminToken),
		httpapi.WithChatTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second),
	}
	services := []backgroundService{a.outboxService()}
	if a.auditor != nil {
		opts = append(opts, httpapi.WithAuditor(a.auditor))
		services = append(services, a.auditor)
	}
	if err := cfg.RequireAdmin(); err != nil {
		log.Warn("admin API disabled: %v", err)
	}

	srv := httpapi.NewServer(a.agent, a.cars, opts...)
	return runWithComponents(ctx, cfg, services, srv)
}

// runWithComponents starts the background services and the HTTP server and
// blocks until ctx is done or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, services []backgroundService, httpSrv httpServer) error {
	started := make([]backgroundService, 0, len(services))
	defer func() {
		for i := len(started) - 1; i >= 0; i-- {
			started[i].Stop()
		}
	}()
	for _, svc := range services {
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start background service: %w", err)
		}
		started = append(started, svc)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
