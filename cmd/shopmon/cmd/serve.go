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

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/donaldgifford/shopmon/internal/api/handlers"
	"github.com/donaldgifford/shopmon/internal/api/middleware"
	"github.com/donaldgifford/shopmon/internal/config"
	"github.com/donaldgifford/shopmon/internal/coordinator"
	"github.com/donaldgifford/shopmon/internal/etsy"
	"github.com/donaldgifford/shopmon/internal/hmacsig"
	"github.com/donaldgifford/shopmon/internal/notify"
	"github.com/donaldgifford/shopmon/internal/retry"
	"github.com/donaldgifford/shopmon/internal/store"
	applog "github.com/donaldgifford/shopmon/pkg/logger"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and refresh scheduler",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slogger := applog.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rl := etsy.NewRateLimiter(
		cfg.RateLimit.PerSecond,
		cfg.RateLimit.Burst,
		cfg.RateLimit.DailyLimit,
	)
	retrier := retry.New(retry.WithLogger(slogger))
	notifier := newNotifier(cfg.Notifications)
	options := func() domain.Options { return cfg.Options.Domain() }

	manager := coordinator.NewManager()
	var probes []handlers.ReadinessProbe

	for i := range cfg.Connections {
		conn := &cfg.Connections[i]

		client, probe, err := newShopClient(ctx, conn, st, rl, slogger)
		if err != nil {
			return fmt.Errorf("building client for connection %q: %w", conn.ID, err)
		}
		if probe != nil {
			probes = append(probes, *probe)
		}

		c, err := coordinator.New(coordinator.Config{
			ConnectionID: conn.ID,
			Client:       client,
			Retry:        retrier,
			Notifier:     notifier,
			EventPrefix:  cfg.Events.Prefix,
			Options:      options,
			OnAuthFailure: func(_ context.Context, id string, err error) {
				logger.Warn("connection requires re-authentication",
					"connection_id", id, "err", err)
			},
			Logger: slogger,
		})
		if err != nil {
			return fmt.Errorf("creating coordinator for connection %q: %w", conn.ID, err)
		}
		if err := manager.Add(c); err != nil {
			return fmt.Errorf("registering connection %q: %w", conn.ID, err)
		}
	}

	scheduler, err := coordinator.NewScheduler(manager, cfg.Schedule.RefreshInterval, slogger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()
	logger.Info("scheduler started",
		"interval", cfg.Schedule.RefreshInterval,
		"connections", len(manager.IDs()),
	)

	// Warm the caches so the API has snapshots before the first tick.
	go func() {
		for id, err := range manager.RefreshAll(ctx) {
			if err != nil {
				logger.Error("initial refresh failed", "connection_id", id, "err", err)
			}
		}
	}()

	e := newEcho(cfg, st, probes, manager, rl, options, slogger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", "addr", addr)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	<-scheduler.Stop().Done()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// credentialStore is the Store plus the lifecycle and health methods the
// server wires up.
type credentialStore interface {
	store.Store
	Ping(ctx context.Context) error
	Close()
}

func newStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (credentialStore, error) {
	if cfg.Database.Enabled() {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("using postgres credential store", "host", cfg.Database.Host)
		return pg, nil
	}

	fs, err := store.NewFileStore(cfg.Database.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state file: %w", err)
	}
	logger.Info("using file credential store", "path", cfg.Database.StatePath)
	return fs, nil
}

// newShopClient builds the Etsy client for one connection, plus a readiness
// probe for proxy-mode connections.
func newShopClient(
	ctx context.Context,
	conn *config.ConnectionConfig,
	st store.Store,
	rl *etsy.RateLimiter,
	slogger *slog.Logger,
) (etsy.ShopClient, *handlers.ReadinessProbe, error) {
	switch conn.Mode {
	case domain.ModeDirect:
		// Prefer the persisted credential; a previous run may have rotated
		// the refresh token since the config was written.
		cred, err := st.GetCredential(ctx, conn.ID)
		if errors.Is(err, store.ErrNotFound) {
			cred = conn.Token.Credential()
		} else if err != nil {
			return nil, nil, fmt.Errorf("loading stored credential: %w", err)
		}

		tokens := etsy.NewRefreshTokenProvider(
			conn.ID, conn.ClientID, conn.ClientSecret, cred, st,
			etsy.WithAuthLogger(slogger),
		)
		client := etsy.NewDirectClient(
			conn.ShopID, conn.ClientID, tokens,
			etsy.WithDirectRateLimiter(rl),
			etsy.WithDirectLogger(slogger),
		)
		return client, nil, nil

	case domain.ModeProxy:
		signer := hmacsig.New(conn.APIKey, conn.HMACSecret)
		client := etsy.NewProxyClient(
			conn.ProxyURL, conn.ShopID, signer,
			etsy.WithProxyRateLimiter(rl),
			etsy.WithProxyLogger(slogger),
		)
		probe := &handlers.ReadinessProbe{
			Name:  "proxy:" + conn.ID,
			Check: client.Health,
		}
		return client, probe, nil

	default:
		return nil, nil, fmt.Errorf("unknown connection mode %q", conn.Mode)
	}
}

func newNotifier(cfg config.NotificationsConfig) notify.Notifier {
	var sinks notify.Multi
	if cfg.Discord.Enabled {
		sinks = append(sinks, notify.NewDiscordNotifier(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhookNotifier(
			cfg.Webhook.URL,
			notify.WithWebhookHeaders(cfg.Webhook.Headers),
		))
	}
	if len(sinks) == 0 {
		return notify.Noop{}
	}
	return sinks
}

func newEcho(
	cfg *config.Config,
	st credentialStore,
	probes []handlers.ReadinessProbe,
	manager *coordinator.Manager,
	rl *etsy.RateLimiter,
	options func() domain.Options,
	slogger *slog.Logger,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.Use(middleware.Recovery(slogger))
	e.Use(middleware.RequestLog(slogger))
	e.Use(middleware.Metrics())

	health := handlers.NewHealthHandler(st, probes...)
	e.GET("/healthz", health.Healthz)
	e.GET("/readyz", health.Readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := humaecho.New(e, huma.DefaultConfig("shopmon API", Version))
	handlers.RegisterConnectionRoutes(api, handlers.NewConnectionsHandler(manager))
	handlers.RegisterSnapshotRoutes(api, handlers.NewSnapshotHandler(manager, options))
	handlers.RegisterQuotaRoutes(api, handlers.NewQuotaHandler(rl))

	return e
}

func newLogger(cfg config.LoggingConfig) *log.Logger {
	opts := log.Options{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(os.Stderr, opts)
}

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
