// Package main is the entrypoint for the Zun Telegram assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/zunhub/zun/internal/bot"
	"github.com/zunhub/zun/internal/cache"
	"github.com/zunhub/zun/internal/chat"
	"github.com/zunhub/zun/internal/config"
	"github.com/zunhub/zun/internal/docstore"
	"github.com/zunhub/zun/internal/genai"
	"github.com/zunhub/zun/internal/handler"
	"github.com/zunhub/zun/internal/ledger"
	"github.com/zunhub/zun/internal/linking"
	"github.com/zunhub/zun/internal/metrics"
	"github.com/zunhub/zun/internal/middleware"
	"github.com/zunhub/zun/internal/repository"
	"github.com/zunhub/zun/internal/scheduler"
	"github.com/zunhub/zun/internal/server"
	"github.com/zunhub/zun/internal/store"
	"github.com/zunhub/zun/internal/store/memory"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	recorder := metrics.NewInMemory()

	// Initialize store
	st, storeLabel, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	// Initialize cache (optional)
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn(
				"failed to connect to Redis, running without link lease and rate limit",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			cacheClient = nil
		} else {
			logger.Info("connected to Redis")
		}
	}

	// Initialize generative backend
	generator, err := genai.New(genai.Config{
		Provider:  cfg.GenAIProvider,
		APIKey:    cfg.GenAIAPIKey,
		BaseURL:   cfg.GenAIBaseURL,
		MaxTokens: cfg.GenAIMaxTokens,
		Timeout:   cfg.GenAITimeout,
	})
	if err != nil {
		logger.Error("failed to initialize generative backend", "provider", cfg.GenAIProvider, "error", err)
		os.Exit(1)
	}

	// Initialize services
	uniqueness, err := linking.ParseUniqueness(cfg.LinkUniqueness)
	if err != nil {
		logger.Error("invalid link uniqueness", "error", err)
		os.Exit(1)
	}

	accounts := ledger.New(st, ledger.Policy{
		UnitCost:         cfg.LedgerUnitCost,
		BonusUnit:        cfg.LedgerBonusUnit,
		ResetPeriod:      cfg.LedgerResetPeriod,
		FailOpen:         cfg.LedgerFailOpen,
		UnlimitedBalance: cfg.LedgerUnlimitedBalance,
	}, logger, recorder, ledger.WithStoreTimeout(cfg.StoreTimeout))

	var locker linking.Locker
	var limiter chat.RateLimiter
	var cacheCheck handler.HealthChecker
	if cacheClient != nil {
		locker = linking.NewCacheLocker(cacheClient, cfg.LinkLeaseTTL)
		if cfg.ChatRatePerMinute > 0 {
			limiter = chat.NewCacheLimiter(cacheClient, cfg.ChatRatePerMinute, cfg.ChatBurst)
		}
		cacheCheck = cacheClient
	}

	linker := linking.NewService(st, accounts, linking.NewTelegramProber(cfg.TelegramAPIURL, cfg.LinkProbeTimeout), locker,
		linking.Options{Uniqueness: uniqueness, ProbeTimeout: cfg.LinkProbeTimeout}, logger, recorder)
	repairer := linking.NewRepairer(linker, cfg.LinkRepairGrace, cfg.LinkRepairMaxAttempts)

	chatService := chat.NewService(accounts, generator, limiter, chat.Options{
		Model:         cfg.GenAIModel,
		FallbackModel: cfg.GenAIFallbackModel,
		Timeout:       cfg.GenAITimeout,
	}, logger, recorder)

	// Initialize scheduler
	sched := scheduler.New(logger, 0)
	if err := sched.Add("link-repair", cfg.LinkRepairSchedule, repairJob(repairer, logger)); err != nil {
		logger.Error("failed to schedule link repair", "error", err)
		os.Exit(1)
	}

	// Initialize Telegram bot
	tgBot, err := bot.New(bot.Config{
		Token:          cfg.TelegramToken,
		APIURL:         cfg.TelegramAPIURL,
		PollTimeout:    cfg.TelegramPollTimeout,
		RequestTimeout: cfg.BotRequestTimeout,
		Profile: bot.Profile{
			BotName:  cfg.BotName,
			Birthday: cfg.BotBirthday,
			Engine:   cfg.GenAIModel,
			Storage:  storeLabel,
		},
	}, bot.Deps{
		Ledger:        accounts,
		Linker:        linker,
		Chat:          chatService,
		Registrations: st,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}

	// Setup ops router
	r := setupRouter(cfg, st, cfg.StoreDriver, cacheCheck, accounts, recorder, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("store", st.Close)
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	}
	srv.Background("scheduler", sched.Run)
	srv.Background("telegram", tgBot.Run)

	logger.Info("starting zun",
		"version", version,
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", cfg.StoreDriver,
		"model", cfg.GenAIModel,
		"fail_open", cfg.LedgerFailOpen,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore connects the configured store. When the backend is unreachable
// and the ledger fails open, an offline store is returned instead so the bot
// keeps answering in degraded mode.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, string, error) {
	var (
		st    store.Store
		label string
		err   error
		dsn   string
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), "In-memory", nil

	case config.StoreMongo:
		label, dsn = "MongoDB", cfg.MongoURI
		creds, perr := docstore.ParseCredentials(cfg.MongoCredentials)
		if perr != nil {
			return nil, "", perr
		}
		var ds *docstore.Store
		if ds, err = docstore.New(ctx, cfg.MongoURI, cfg.MongoDatabase, creds); err == nil {
			if err = ds.Migrate(ctx); err != nil {
				_ = ds.Close(ctx)
			} else {
				st = ds
			}
		}

	case config.StorePostgres:
		label, dsn = "PostgreSQL", cfg.DatabaseURL
		var repo *repository.Repository
		if repo, err = repository.New(ctx, cfg.DatabaseURL); err == nil {
			if err = repo.Migrate(ctx); err != nil {
				_ = repo.Close(ctx)
			} else {
				st = repo
			}
		}

	default:
		return nil, "", fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if err == nil {
		logger.Info("connected to store", "driver", cfg.StoreDriver, "url", redactURL(dsn))
		return st, label, nil
	}

	sanitized := errors.New(sanitizeError(err, dsn))
	if !cfg.LedgerFailOpen {
		return nil, "", sanitized
	}
	logger.Warn("store unreachable, serving in degraded mode",
		"driver", cfg.StoreDriver,
		"url", redactURL(dsn),
		"error", sanitized.Error(),
	)
	return store.NewOffline(sanitized), label + " (offline)", nil
}

func repairJob(repairer *linking.Repairer, logger *slog.Logger) scheduler.JobFunc {
	return func(ctx context.Context) error {
		stats, err := repairer.RepairPending(ctx)
		if errors.Is(err, store.ErrUnavailable) {
			logger.Debug("link repair skipped, store offline")
			return nil
		}
		if stats.Completed+stats.Retried+stats.Rejected > 0 {
			logger.Info("link repair pass",
				"completed", stats.Completed,
				"retried", stats.Retried,
				"rejected", stats.Rejected,
			)
		}
		return err
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the ops HTTP surface.
func setupRouter(
	cfg *config.Config,
	st store.Store,
	storeName string,
	cacheCheck handler.HealthChecker,
	accounts *ledger.Ledger,
	snapshotter metrics.Snapshotter,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	h := handler.New("zun", version)
	healthHandler := handler.NewHealthHandler(storeName, st, cacheCheck)
	metricsHandler := handler.NewMetricsHandler(snapshotter)

	r.Get("/", h.Info)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	if cfg.AdminEnabled() {
		adminHandler := handler.NewAdminHandler(accounts, st, logger)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminToken(cfg.AdminToken, logger))
			r.Post("/credits", adminHandler.Credit)
			r.Get("/accounts/{userID}", adminHandler.GetAccount)
		})
	} else {
		logger.Info("admin routes disabled, ADMIN_TOKEN not set")
	}

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
