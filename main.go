// Command starwatch watches bilibili subjects for live-status changes and new
// dynamics and publishes the derived events.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs migrations and loads the watch set.
//   - Starts background workers: dynamic poller, backup live poller and the
//     auto-follow queue.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and the
//     admin API.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/starwatch/bilibili"
	"github.com/onnwee/starwatch/config"
	"github.com/onnwee/starwatch/db"
	"github.com/onnwee/starwatch/dynamic"
	"github.com/onnwee/starwatch/events"
	"github.com/onnwee/starwatch/follow"
	"github.com/onnwee/starwatch/live"
	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/server"
	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

const version = "1.0.0"

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func newRedis(ctx context.Context, addr, password string, dbNum int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           dbNum,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}

func openLiveStatusStore(ctx context.Context, cfg *config.Config, database *sql.DB) (livestatus.Store, func(), error) {
	backend, err := livestatus.ParseBackend(cfg.LiveStatusStore)
	if err != nil {
		return nil, nil, err
	}
	switch backend {
	case livestatus.BackendRedis:
		client, err := newRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return livestatus.NewRedisStore(client, db.Platform), func() { _ = client.Close() }, nil
	case livestatus.BackendMemory:
		slog.Warn("live status kept in memory: restarts lose state and may re-announce", slog.String("component", "livestatus"))
		return livestatus.NewMemoryStore(), func() {}, nil
	default:
		return livestatus.NewPostgresStore(database, db.Platform), func() {}, nil
	}
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	for _, w := range cfg.Warnings() {
		slog.Warn(w, slog.String("component", "config"))
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("starwatch", version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	store, closeStore, err := openLiveStatusStore(ctx, cfg, database)
	if err != nil {
		slog.Error("live status store init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()
	reconciler := livestatus.NewReconciler(store)

	client := &bilibili.Client{SESSDATA: cfg.SESSDATA, BiliJct: cfg.BiliJct}

	bus := events.NewBus()
	bus.SubscribeAll(-100, "log", events.LogHandler)
	if cfg.EventsRedisAddr != "" {
		rc, err := newRedis(ctx, cfg.EventsRedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("events redis bridge init failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() { _ = rc.Close() }()
		bus.SubscribeAll(0, "redis", events.NewRedisBridge(rc).Handle)
		slog.Info("events redis bridge enabled", slog.String("component", "events"), slog.String("addr", cfg.EventsRedisAddr))
	}

	registry := subject.NewRegistry()
	registry.Listen(live.BootstrapPriority, live.NewBootstrap(client, reconciler, registry.Ready).OnChange)
	registry.Listen(10000, func(context.Context, subject.Change) {
		telemetry.SetGauge(telemetry.WatchedSubjects, registry.Len())
	})

	var queue *follow.Queue
	if cfg.AutoFollowEnabled {
		queue = follow.NewQueue(client, cfg.AutoFollowInterval)
		registry.Listen(0, queue.OnChange)
	}

	repo := db.SubjectRepo{DB: database}
	subs, err := repo.List(ctx)
	if err != nil {
		slog.Error("failed to load subjects", slog.Any("err", err))
		os.Exit(1)
	}
	registry.Load(ctx, subs)

	primary := live.NewPrimary(client, registry, reconciler, bus, cfg.ReconnectWindow)

	g, gctx := errgroup.WithContext(ctx)

	poller := dynamic.New(client, registry, bus, dynamic.Options{
		Interval:      cfg.DynamicPollInterval,
		Freshness:     cfg.DynamicFreshness,
		DedupCapacity: cfg.DynamicDedupCap,
		RawLog:        cfg.DynamicRawLog,
	})
	g.Go(func() error { return poller.Run(gctx) })

	if cfg.BackupPollEnabled {
		backup := live.NewBackup(client, registry, reconciler, bus, cfg.BackupPollInterval, cfg.ReconnectWindow)
		g.Go(func() error { return backup.Run(gctx) })
	} else {
		slog.Info("backup live poller disabled", slog.String("component", "backup_poller"))
	}

	deps := server.Deps{
		Registry:   registry,
		Subjects:   repo,
		LiveStatus: store,
		Pinger:     database,
		Primary:    primary,
		Auth:       server.AuthConfig{Token: cfg.AdminToken, Username: cfg.AdminUsername, Password: cfg.AdminPassword},
	}
	if queue != nil {
		deps.FollowQueue = queue
		g.Go(func() error {
			if err := queue.Seed(gctx, registry.List(subject.DynamicEnabled)); err != nil {
				slog.Warn("auto follow could not read the followed set; every candidate queued",
					slog.String("component", "auto_follow"),
					slog.String("class", bilibili.ClassifyError(err).String()),
					slog.Any("err", err))
			}
			return queue.Run(gctx)
		})
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	g.Go(func() error { return server.Start(gctx, deps, cfg.HTTPAddr) })

	slog.Info("starwatch started",
		slog.Int("subjects", registry.Len()),
		slog.Bool("auto_follow", cfg.AutoFollowEnabled),
		slog.Bool("backup_poll", cfg.BackupPollEnabled))

	if err := g.Wait(); err != nil {
		slog.Error("worker exited with error", slog.Any("err", err))
		stop()
		return
	}
	slog.Info("shutting down")
}
