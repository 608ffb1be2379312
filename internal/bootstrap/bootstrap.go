package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/kirillkom/autofund-client/internal/config"
	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/core/ports"
	"github.com/kirillkom/autofund-client/internal/core/usecase"
	"github.com/kirillkom/autofund-client/internal/infrastructure/auth"
	"github.com/kirillkom/autofund-client/internal/infrastructure/backend"
	"github.com/kirillkom/autofund-client/internal/infrastructure/cache"
	"github.com/kirillkom/autofund-client/internal/infrastructure/offline"
	"github.com/kirillkom/autofund-client/internal/infrastructure/queue/nats"
	"github.com/kirillkom/autofund-client/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
	"github.com/kirillkom/autofund-client/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/autofund-client/internal/infrastructure/storage/minio"
	"github.com/kirillkom/autofund-client/internal/infrastructure/validation"
	"github.com/kirillkom/autofund-client/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Client    *usecase.TaskClient
	Backend   *backend.Client
	Metrics   *metrics.ClientMetrics
	Publisher *nats.Publisher
	History   *postgres.HistoryRepository
	// Verifier authenticates bridge callers; nil when the bridge is open.
	Verifier *auth.HMACTokenProvider

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func()
}

// New wires the task client from cfg. Optional infrastructure (redis,
// MinIO, NATS, Postgres) is only connected when configured.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.NewClientMetrics(service)}
	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(resilience.Config{
		Retry: resilience.Policy{
			MaxRetries:    cfg.RetryMax,
			BaseDelay:     cfg.RetryBaseDelay,
			MaxDelay:      cfg.RetryMaxDelay,
			BackoffFactor: cfg.RetryFactor,
			Jitter:        resilience.RandomJitter,
		},
		BreakerEnabled: cfg.BreakerEnabled,
		OnRetry:        app.Metrics.RecordRetry,
	})

	responseCache, err := app.responseCache(ctx)
	if err != nil {
		return nil, err
	}

	queue := offline.NewQueue(offline.QueueConfig{
		DefaultMaxRetries: cfg.OfflineMaxRetries,
		Requeue:           isConnectivityFailure,
		OnDepthChange:     app.Metrics.SetOfflineDepth,
	})

	var api *backend.Client
	monitor := offline.NewMonitor(offline.MonitorConfig{
		Initial:       true,
		ProbeInterval: cfg.ConnectivityProbeInterval,
		StableSamples: cfg.ConnectivityStableSamples,
		Probe: func(ctx context.Context) bool {
			return api.Ping(ctx)
		},
	})

	chain := backend.NewChain()
	chain.Add(backend.RequestIDInterceptor())
	chain.Add(backend.ClientVersionInterceptor(backend.ClientVersion))
	chain.Add(backend.LoggingInterceptor(slog.Default()))
	tokens, err := app.tokenProvider(cfg)
	if err != nil {
		return nil, err
	}
	chain.Add(backend.AuthInterceptor(tokens))

	resultSchema, err := validation.NewResultSchema()
	if err != nil {
		return nil, fmt.Errorf("load result schema: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))
	}

	api = backend.New(cfg.BaseURL, backend.Options{
		Executor:        executor,
		Interceptors:    chain,
		RequestTimeout:  cfg.RequestTimeout,
		UploadTimeout:   cfg.UploadTimeout,
		RateLimiter:     limiter,
		Cache:           cache.NewStore(responseCache, app.Metrics.CacheLookup),
		StatusTTL:       cfg.StatusCacheTTL,
		HealthTTL:       cfg.HealthCacheTTL,
		Connectivity:    monitor,
		Queue:           queue,
		ResultValidator: resultSchema,
		Observer:        app.Metrics,
	})
	app.Backend = api

	monitor.Subscribe(func(online bool) {
		if online {
			go queue.Drain(runCtx)
		}
	})
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		monitor.Run(runCtx)
	}()

	storage, err := app.objectStorage(ctx, executor)
	if err != nil {
		return nil, err
	}

	deps := usecase.Dependencies{
		Backend:      api,
		Validator:    validation.NewPDFValidator(cfg.MaxUploadMB, cfg.PDFStrict),
		Storage:      storage,
		Connectivity: api,
		Metrics:      app.Metrics,
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, nats.Options{
			SubjectPrefix:      cfg.NATSSubjectPrefix,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init status publisher: %w", err)
		}
		app.Publisher = publisher
		app.closers = append(app.closers, publisher.Close)
		deps.Publisher = publisher
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { closeDB(db) })
		history := postgres.NewHistoryRepository(db)
		if err := history.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure history schema: %w", err)
		}
		app.History = history
		deps.History = history
	}

	app.Client = usecase.NewTaskClient(deps, usecase.Config{
		PollInterval:    cfg.PollInterval,
		PollMaxFailures: cfg.PollMaxFailures,
		MaxUploadMB:     cfg.MaxUploadMB,
	})

	ok = true
	return app, nil
}

func (a *App) responseCache(ctx context.Context) (ports.ResponseCache, error) {
	if a.Config.RedisAddr == "" {
		return cache.NewMemoryCache(nil), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return cache.NewRedisCache(rdb, ""), nil
}

func (a *App) tokenProvider(cfg config.Config) (ports.TokenProvider, error) {
	if cfg.JWTSecret == "" {
		if cfg.BridgeRequireAuth {
			return nil, fmt.Errorf("BRIDGE_REQUIRE_AUTH needs AUTOFUND_JWT_SECRET")
		}
		return auth.NewStaticTokenProvider(cfg.AuthToken), nil
	}
	provider, err := auth.NewHMACTokenProvider(cfg.JWTSecret, cfg.JWTSubject, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("init token provider: %w", err)
	}
	if cfg.BridgeRequireAuth {
		a.Verifier = provider
	}
	return provider, nil
}

func (a *App) objectStorage(ctx context.Context, executor *resilience.Executor) (ports.ObjectStorage, error) {
	if a.Config.MinIOEndpoint == "" {
		storage, err := localfs.New(a.Config.DownloadDir)
		if err != nil {
			return nil, fmt.Errorf("init download dir: %w", err)
		}
		return storage, nil
	}
	storage, err := minio.New(ctx, minio.Config{
		Endpoint:        a.Config.MinIOEndpoint,
		AccessKeyID:     a.Config.MinIOAccessKey,
		SecretAccessKey: a.Config.MinIOSecretKey,
		UseSSL:          a.Config.MinIOUseSSL,
		Bucket:          a.Config.MinIOBucket,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	return storage, nil
}

func isConnectivityFailure(err error) bool {
	f := domain.AsFailure(err)
	return f != nil && (f.Code == domain.CodeNetwork || f.Code == domain.CodeConnection)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}

// Close stops pollers and background probes, then releases connections in
// reverse order of creation.
func (a *App) Close() {
	if a.Client != nil {
		a.Client.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
