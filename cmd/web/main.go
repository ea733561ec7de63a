package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"EcoMarket/internal/ai"
	"EcoMarket/internal/auth"
	"EcoMarket/internal/catalog"
	"EcoMarket/internal/config"
	"EcoMarket/internal/listing"
	"EcoMarket/internal/web"
	"EcoMarket/pkg/kit"
)

func main() {
	service := "web"

	cfg, err := config.Load()
	if err != nil {
		boot := kit.NewLogger(service, "info")
		boot.Fatal("load config failed", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, pg, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("open store failed", zap.Error(err))
	}
	if pg != nil {
		defer pg.Close()
	}

	if err := os.MkdirAll(cfg.Upload.PhotoDir, 0o755); err != nil {
		log.Fatal("create photo dir failed", zap.String("dir", cfg.Upload.PhotoDir), zap.Error(err))
	}

	deps := web.Deps{
		Store: store,
		Listing: &listing.Service{
			Store:    store,
			PhotoDir: cfg.Upload.PhotoDir,
			MaxBytes: cfg.Upload.MaxBytes,
			Log:      log,
		},
		PhotoDir:     cfg.Upload.PhotoDir,
		StaticDir:    cfg.Server.StaticDir,
		WellKnownDir: cfg.Server.WellKnownDir,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Production:   cfg.IsProduction(),
		UploadLimit:  web.RateLimit{Limit: cfg.Upload.RateLimit, Window: cfg.Upload.RateLimitEvery},
		AILimit:      web.RateLimit{Limit: cfg.AI.RateLimit, Window: cfg.AI.RateLimitEvery},
		LoginLimit:   web.RateLimit{Limit: cfg.Auth.LoginRateLimit, Window: cfg.Auth.LoginWindow},
		DebugPaths: map[string]string{
			"products":  cfg.Store.ProductsPath,
			"materials": cfg.Store.MaterialsPath,
		},
	}

	var cache ai.Cache = ai.NopCache{}
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		cache = ai.NewRedisCache(rdb, cfg.Cache.TTL)
		deps.ReadyChecks = append(deps.ReadyChecks, web.ReadyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		log.Info("ai reply cache enabled", zap.String("redis", cfg.Cache.RedisAddr))
	}

	if cfg.AIEnabled() {
		gen := ai.NewGeminiClient(cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.APIKey)
		metrics := ai.NewMetrics(reg)
		deps.AI = ai.NewService(gen, store, ai.Options{
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
			Breaker: ai.BreakerSettings{Trips: cfg.AI.BreakerTrips, Timeout: cfg.AI.BreakerTimeout},
			Cache:   cache,
			Metrics: metrics,
			Log:     log,
		})
		log.Info("ai enabled", zap.String("model", cfg.AI.Model))
	} else {
		log.Warn("ai disabled: ai.api_key is not set")
	}

	if cfg.Auth.Enabled {
		srv, err := newAuthServer(ctx, cfg, pg, log)
		if err != nil {
			log.Fatal("init auth failed", zap.Error(err))
		}
		deps.Auth = srv
	}

	h, err := web.NewHandler(deps, web.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})
	if err != nil {
		log.Fatal("init web handler failed", zap.Error(err))
	}

	timeouts := kit.DefaultServerTimeouts()
	timeouts.Read = cfg.Server.ReadTimeout
	timeouts.Write = cfg.Server.WriteTimeout
	timeouts.Idle = cfg.Server.IdleTimeout
	timeouts.Shutdown = cfg.Server.ShutdownTimeout

	log.Info("starting",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Environment),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("auth", cfg.Auth.Enabled),
	)
	if err := kit.RunHTTPServer(net.JoinHostPort("", cfg.Server.Port), h, timeouts, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

// openStore returns the catalog store for the configured driver. pg is
// non-nil only for the postgres driver and must be closed by the caller.
func openStore(ctx context.Context, cfg *config.Config) (catalog.Store, *catalog.PostgresStore, error) {
	if cfg.Store.Driver != "postgres" {
		return catalog.NewCSVStore(cfg.Store.ProductsPath, cfg.Store.MaterialsPath), nil, nil
	}

	pg, err := catalog.NewPostgresStore(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg, nil
}

// newAuthServer keeps uploader accounts next to the catalog when it lives in
// Postgres, and in memory otherwise.
func newAuthServer(ctx context.Context, cfg *config.Config, pg *catalog.PostgresStore, log *zap.Logger) (*auth.Server, error) {
	accounts, err := auth.ParseAccounts(cfg.Auth.Users)
	if err != nil {
		return nil, err
	}

	var users auth.UserStore
	if pg != nil {
		ps := auth.NewPostgresStore(pg.Pool())
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if err := ps.Sync(ctx, accounts); err != nil {
			return nil, err
		}
		users = ps
	} else {
		ms, err := auth.NewMemStoreFromAccounts(accounts, bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		users = ms
	}
	log.Info("uploader auth enabled", zap.Int("accounts", len(accounts)))

	return &auth.Server{
		Log:          log,
		Users:        users,
		JWT:          auth.NewTokenMaker(cfg.Auth.JWTSecret),
		TTL:          cfg.Auth.TokenTTL,
		SecureCookie: cfg.IsProduction(),
		LoginPage:    "/login",
	}, nil
}
