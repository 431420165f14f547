package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pmicdash/pmicdash/pkg/alarm"
	"github.com/pmicdash/pmicdash/pkg/assistant"
	"github.com/pmicdash/pmicdash/pkg/auth"
	"github.com/pmicdash/pmicdash/pkg/config"
	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/kv"
	"github.com/pmicdash/pmicdash/pkg/metrics"
	"github.com/pmicdash/pmicdash/pkg/mqttpub"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/ui"
)

func serveCmd() *cobra.Command {
	var configPath, envFile, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(envFile); err != nil {
				return err
			}

			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}
			if addr != "" {
				cfg.Spec.Address = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(cfg.Spec.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to a .env file with secrets (skipped if missing)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides spec.address)")

	return cmd
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// serve runs the dashboard until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Dashboard, logger *slog.Logger) error {
	spec := cfg.Spec

	logger.Info("starting PMIC dashboard",
		slog.String("addr", spec.Address),
		slog.String("store", spec.Store.Driver),
	)

	store, err := openStore(spec.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("error closing store", slog.String("error", err.Error()))
		}
	}()

	evaluator, err := alarm.NewEvaluator(cfg.AlarmPolicy())
	if err != nil {
		return fmt.Errorf("failed to load alarm policy: %w", err)
	}
	logger.Info("loaded alarm policy", slog.Int("rules", len(evaluator.Rules())))

	verifier, err := newVerifier(spec.Auth)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	registry := prometheus.NewRegistry()
	registry.MustRegister(m)

	managerCfg := dashboard.ManagerConfig{
		InitiallyEnabled:  *spec.InitiallyEnabled,
		LogCapacity:       spec.LogCapacity,
		TelemetryInterval: spec.TelemetryInterval.Duration(),
		Evaluator:         evaluator,
		Notifier:          notify.Multi{notify.NewLogNotifier(logger), m},
		Store:             store,
		Observer:          m,
	}

	if client := newAssistant(cfg, logger); client != nil {
		managerCfg.Suggester = client
		managerCfg.Chats = client
	}

	if spec.MQTT != nil {
		pub, err := mqttpub.New(mqttpub.Config{
			Broker:   spec.MQTT.Broker,
			Topic:    spec.MQTT.Topic,
			ClientID: spec.MQTT.ClientID,
			Username: spec.MQTT.Username,
			Password: cfg.MQTTPassword(),
		}, logger)
		if err != nil {
			return err
		}
		if err := pub.Connect(); err != nil {
			return err
		}
		defer pub.Close()
		managerCfg.Sink = func(session string) pmic.TelemetrySink { return pub.ForSession(session) }
		logger.Info("publishing telemetry", slog.String("broker", spec.MQTT.Broker), slog.String("topic", pub.Topic()))
	}

	manager := dashboard.NewManager(managerCfg, logger)
	defer manager.Close()
	m.SetSource(manager)

	token := cfg.AuthToken()
	uiHandler, err := ui.NewHandler(ui.Config{
		Manager:           manager,
		Store:             store,
		Verifier:          verifier,
		DefaultAPIBaseURL: spec.Auth.APIBaseURL,
		BearerToken:       token,
		SecureCookies:     spec.Auth.SecureCookies,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create ui handler: %w", err)
	}
	if token != "" {
		logger.Info("bearer authentication enabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler(store, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", uiHandler)

	httpServer := &http.Server{
		Addr:              spec.Address,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			serverErrChan <- err
		}
	}()

	logger.Info("dashboard ready", slog.String("addr", spec.Address))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-serverErrChan:
		logger.Error("server error triggered shutdown", slog.String("error", serveErr.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("dashboard stopped")
	return serveErr
}

func openStore(spec config.StoreSpec) (kv.Store, error) {
	switch spec.Driver {
	case config.StoreSQLite:
		return kv.OpenSQLite(spec.Path)
	case config.StoreMemory, "":
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", spec.Driver)
	}
}

func newVerifier(spec config.AuthSpec) (auth.Verifier, error) {
	if len(spec.Users) == 0 {
		return auth.NewUpstreamVerifier(nil), nil
	}
	users := make(map[string]string, len(spec.Users))
	for _, u := range spec.Users {
		users[u.Username] = u.PasswordHash
	}
	return auth.NewStaticVerifier(users)
}

// newAssistant returns the Gemini client, or nil when the assistant is
// disabled or no credentials are available. Without a client, assistant
// requests fail with the usual error messages.
func newAssistant(cfg *config.Dashboard, logger *slog.Logger) *assistant.Client {
	spec := cfg.Spec.Assistant
	if spec.Disabled {
		logger.Info("assistant disabled")
		return nil
	}
	client, err := assistant.New(assistant.Config{
		APIKey:            cfg.AssistantAPIKey(),
		Model:             spec.Model,
		BaseURL:           spec.BaseURL,
		Timeout:           spec.Timeout.Duration(),
		SystemInstruction: spec.SystemInstruction,
		Logger:            logger,
	})
	if err != nil {
		logger.Warn("assistant unavailable",
			slog.String("key_env", spec.APIKeyEnv),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("assistant configured", slog.String("model", client.Model()))
	return client
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func readyzHandler(store kv.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := store.Get(r.Context(), kv.KeyAPIBaseURL); err != nil {
			if logger != nil {
				logger.Warn("readiness check failed", slog.String("error", err.Error()))
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("store not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}
