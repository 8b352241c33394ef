package main

import (
	"context"
	"dealchat/backend/internal/api/handler"
	"dealchat/backend/internal/catalog"
	"dealchat/backend/internal/chathub"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/localization"
	"dealchat/backend/internal/logging"
	"dealchat/backend/internal/storage"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const historyKeyPrefix = "dealchat:history:"

// setupHistoryCache returns a redis backed cache when redis is configured
// and reachable, and an in-process one otherwise. The client is nil unless
// redis is used.
func setupHistoryCache(cfg *config.Config) (storage.HistoryCache, *redis.Client) {
	if cfg.RedisAddr == "" {
		log.Info().Str("module", "main").Msg("redis not configured, using in-memory history cache")
		return storage.NewMemoryHistoryCache(cfg.CacheTTL), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Str("module", "main").Str("addr", cfg.RedisAddr).Err(err).Msg("redis unreachable, using in-memory history cache")
		_ = rdb.Close()
		return storage.NewMemoryHistoryCache(cfg.CacheTTL), nil
	}
	log.Info().Str("module", "main").Str("addr", cfg.RedisAddr).Msg("redis history cache connected")
	return storage.NewRedisHistoryCache(rdb, historyKeyPrefix, cfg.CacheTTL), rdb
}

func main() {
	logging.Setup("info", false)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("module", "main").Str("mode", cfg.Mode).Str("db_driver", cfg.DBDriver).Msg("starting dealchat relay")

	// 1. Storage
	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN, cfg.Mode == "release")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	svc := storage.NewStorageService(db)
	cache, rdb := setupHistoryCache(cfg)
	chat := storage.NewChatStore(svc, cache)

	// 2. Hub and persistence workers
	loc, err := localization.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load translations")
	}
	persister := chathub.NewPersister(chat, chathub.PersisterConfig{
		Workers:   cfg.PersistWorkers,
		QueueSize: cfg.PersistQueue,
		Timeout:   cfg.PersistTimeout,
	})
	persister.Start()

	hub := chathub.NewManagerService(chat, persister, loc, chathub.HubConfig{
		RecheckDelay:   cfg.RecheckDelay,
		HistoryTimeout: config.HistoryLoadTimeout,
		ReplayWindow:   config.ReplayWindow,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 3. HTTP
	var listings catalog.Catalog
	if c := catalog.NewHTTPCatalog(cfg.CatalogURL, cfg.CatalogTimeout); c != nil {
		listings = c
	}
	tokens := handler.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if tokens != nil {
		tokens.IssueKey = cfg.TokenIssueKey
	}
	h := handler.NewHandler(hub, chat, tokens, loc, chathub.ClientOptions{
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.RateLimit,
		Burst:           cfg.RateBurst,
		Catalog:         listings,
		CatalogTimeout:  cfg.CatalogTimeout,
	})

	server := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        handler.NewRouter(cfg.Mode, h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Info().Str("module", "main").Str("addr", server.Addr).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				log.Info().Str("module", "main").Msg("graceful shutdown initiated")
				var errs []error
				if err := server.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				stopHub()
				select {
				case <-hub.Done():
				case <-ctx.Done():
					errs = append(errs, ctx.Err())
				}
				if err := persister.Stop(ctx); err != nil {
					errs = append(errs, err)
				}
				if rdb != nil {
					errs = append(errs, rdb.Close())
				}
				errs = append(errs, svc.Close())
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	log.Info().Str("module", "main").Int("exit_code", exitCode).Msg("relay exited")
	os.Exit(exitCode)
}
