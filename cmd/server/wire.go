package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prodir/internal/audit"
	"prodir/internal/generation"
	"prodir/internal/identity"
	"prodir/internal/ratelimit"
	"prodir/internal/platform/config"
	"prodir/internal/platform/metrics"
	"prodir/internal/platform/middleware"
	"prodir/internal/platform/postgres"
	redisplatform "prodir/internal/platform/redis"
	profilestore "prodir/internal/profile/store"
	pubstore "prodir/internal/publication/store"
	reviewstore "prodir/internal/review/store"
	"prodir/internal/workflow"
	"prodir/internal/workflow/handler"
	"prodir/pkg/platform/circuit"
	"prodir/pkg/platform/httputil"
)

type app struct {
	router      http.Handler
	auditWorker *audit.Worker
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	stores, pool, err := buildStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	redisClient, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		stores.Snapshots = pubstore.NewRedis(redisClient.Client)
		log.Info("published snapshots stored in redis")
	}

	resolver, err := buildResolver(ctx, cfg.Auth, log)
	if err != nil {
		return nil, err
	}

	publisher, err := a.buildAudit(ctx, cfg.Audit, m, log)
	if err != nil {
		return nil, err
	}

	var generator generation.Generator
	if cfg.Generation.APIKey != "" {
		gemini, err := generation.NewGeminiClient(generation.GeminiConfig{
			Endpoint: cfg.Generation.Endpoint,
			APIKey:   cfg.Generation.APIKey,
			Model:    cfg.Generation.Model,
			Timeout:  cfg.Generation.Timeout,
		})
		if err != nil {
			return nil, err
		}
		retrying := generation.NewRetrying(gemini, generation.BackoffPolicy{
			MaxAttempts: cfg.Generation.MaxAttempts,
			BaseDelay:   cfg.Generation.BaseDelay,
			Multiplier:  cfg.Generation.Multiplier,
			MaxDelay:    cfg.Generation.MaxDelay,
			Jitter:      cfg.Generation.Jitter,
		},
			generation.WithRetryLogger(log),
			generation.WithAttemptObserver(m.IncGenerationAttempt),
		)
		generator = generation.NewGuarded(retrying, circuit.New("gemini", circuit.WithCooldown(time.Minute)), log)
	} else {
		log.Warn("gemini_api_key not set; profile generation disabled")
	}

	svc, err := workflow.Build(stores, generator, log,
		workflow.WithMetrics(m),
		workflow.WithAudit(publisher),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(pool, redisClient))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(svc, resolver, log, handler.WithRateLimits(
		buildLimiter(cfg.RateLimit, redisClient, m, log),
		ratelimit.Policy{Limit: cfg.RateLimit.GenerateLimit, Window: cfg.RateLimit.Window},
		ratelimit.Policy{Limit: cfg.RateLimit.ReviewLimit, Window: cfg.RateLimit.Window},
	)).Register(r)

	a.router = r
	ok = true
	return a, nil
}

func buildStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (workflow.Stores, *pgxpool.Pool, error) {
	if cfg.Store != config.StorePostgres {
		log.Info("using in-memory stores")
		return workflow.InMemoryStores(), nil, nil
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(postgres.MigrateURL(cfg.DatabaseURL), log); err != nil {
			return workflow.Stores{}, nil, err
		}
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, log)
	if err != nil {
		return workflow.Stores{}, nil, err
	}
	return workflow.Stores{
		Profiles:  profilestore.NewPostgres(pool),
		Reviews:   reviewstore.NewPostgres(pool),
		Tx:        reviewstore.NewPostgresTx(postgres.NewTxRunner(pool)),
		Snapshots: pubstore.NewInMemory(),
	}, pool, nil
}

func buildResolver(ctx context.Context, cfg config.AuthConfig, log *slog.Logger) (identity.Resolver, error) {
	var (
		base *identity.JWTResolver
		err  error
	)
	if cfg.JWKSURL != "" {
		base, err = identity.NewJWKSResolver(ctx, identity.JWKSOptions{
			URL:             cfg.JWKSURL,
			Issuer:          cfg.Issuer,
			Leeway:          cfg.Leeway,
			RefreshInterval: cfg.JWKSRefresh,
			ClientTimeout:   10 * time.Second,
			Logger:          log,
		})
	} else {
		base, err = identity.NewHMACResolver([]byte(cfg.HMACSecret), cfg.Issuer, cfg.Leeway)
	}
	if err != nil {
		return nil, fmt.Errorf("build identity resolver: %w", err)
	}
	return identity.NewCachingResolver(base, cfg.CacheSize, cfg.CacheTTL), nil
}

func buildLimiter(cfg config.RateLimitConfig, redisClient *redisplatform.Client, m *metrics.Metrics, log *slog.Logger) *ratelimit.Middleware {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		store = ratelimit.NewRedisStore(redisClient.Client)
	}
	return ratelimit.New(store, log,
		ratelimit.WithDisabled(!cfg.Enabled),
		ratelimit.WithRejectObserver(m.IncRateLimited),
	)
}

// buildAudit always logs audit events and, with brokers configured, also
// ships them to Kafka through a buffered worker.
func (a *app) buildAudit(ctx context.Context, cfg config.AuditConfig, m *metrics.Metrics, log *slog.Logger) (*audit.Publisher, error) {
	sinks := []audit.Sink{audit.NewLogSink(log)}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		sink, err := audit.NewKafkaSink(audit.KafkaConfig{
			Brokers:    brokers,
			Topic:      cfg.KafkaTopic,
			BufferSize: cfg.BufferSize,
			OnDrop:     m.AuditDropped.Inc,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sink.Close)
		if err := sink.EnsureTopic(ctx, cfg.KafkaPartitions, cfg.KafkaReplication); err != nil {
			return nil, err
		}
		a.auditWorker = audit.NewWorker(sink.Buffer(), sink, log)
		sinks = append(sinks, sink)
		log.Info("audit events shipped to kafka", "topic", cfg.KafkaTopic)
	}
	return audit.NewPublisher(log, sinks...), nil
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

func healthHandler(pool *pgxpool.Pool, redisClient *redisplatform.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Backends: map[string]string{}}
		check := func(name string, err error) {
			if err != nil {
				resp.Status = "degraded"
				resp.Backends[name] = err.Error()
				return
			}
			resp.Backends[name] = "ok"
		}
		if pool != nil {
			check("postgres", postgres.Health(ctx, pool))
		}
		if redisClient != nil {
			check("redis", redisClient.Health(ctx))
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
