package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-relay-go/internal/config"
	"github.com/openclaw/match-relay-go/internal/database"
	"github.com/openclaw/match-relay-go/internal/handler"
	"github.com/openclaw/match-relay-go/internal/jobs"
	"github.com/openclaw/match-relay-go/internal/metrics"
	"github.com/openclaw/match-relay-go/internal/middleware"
	"github.com/openclaw/match-relay-go/internal/redis"
	"github.com/openclaw/match-relay-go/internal/repository"
	"github.com/openclaw/match-relay-go/internal/service"
	"github.com/openclaw/match-relay-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		redisClient = client.Client
		log.Info().Msg("redis connected")
	}

	kv := store.New(redisClient)

	healthChecks := map[string]handler.Pinger{"store": kv}

	var (
		ledger service.PairingLedger
		pruner jobs.LedgerPruner
	)
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err == nil {
			err = db.EnsureSchema(ctx)
		}
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database")
		}
		defer db.Close()
		log.Info().Msg("database connected")

		pairingRepo := repository.NewPairingRepository(db.DB)
		ledger = pairingRepo
		pruner = pairingRepo
		healthChecks["database"] = db
	} else {
		log.Info().Msg("DATABASE_URL not configured: pairing ledger disabled")
	}

	var limiter service.RateLimiter
	cleaners := map[string]store.Cleaner{}
	if redisClient != nil {
		limiter = service.NewRedisRateLimiter(redisClient)
	} else {
		memLimiter := service.NewMemoryRateLimiter()
		limiter = memLimiter
		cleaners["rate limiter"] = memLimiter
	}
	if c, ok := kv.(store.Cleaner); ok {
		cleaners["store"] = c
	}

	identityService := service.NewIdentityService(cfg.IdentitySecret)
	queueService := service.NewQueueService(kv, service.QueueConfig{
		StaleAfter:    cfg.TicketStaleAfter(),
		PairingTTL:    cfg.PairingTTL(),
		MaxSkips:      cfg.MatchMaxSkips,
		ScanDepth:     cfg.MatchScanDepth,
		MutualFilters: cfg.MatchMutualFilters,
	}, ledger)
	graceService := service.NewGraceService(kv, cfg.GraceWindow())
	relayService := service.NewRelayService(kv, queueService, cfg.SignalTTL())
	iceServers := service.ICEServers(cfg.ICEServerURLs, cfg.TURNUsername, cfg.TURNCredential)

	identityMiddleware := middleware.NewIdentityMiddleware(identityService)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminPasswordHash, isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(int64(cfg.SignalMaxBytes) * 2)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	healthHandler := handler.NewHealthHandler(healthChecks)
	identityHandler := handler.NewIdentityHandler(identityService, isProduction)
	queueHandler := handler.NewQueueHandler(queueService, graceService)
	signalingHandler := handler.NewSignalingHandler(relayService, graceService, cfg.SignalMaxBytes, iceServers)
	adminHandler := handler.NewAdminHandler(queueService)

	window := cfg.RateLimitWindow()
	limit := func(route string, n int, exempt func(*http.Request) bool) func(http.Handler) http.Handler {
		return middleware.NewRateLimitMiddleware(limiter, middleware.RateLimitRule{
			Route:  route,
			Limit:  n,
			Window: window,
			Exempt: exempt,
		}).Handler
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(limit("identity", cfg.RateLimitIdentity, nil)).Post("/identity", identityHandler.Issue)
		r.With(limit("ice", cfg.RateLimitICE, nil)).Get("/ice-servers", signalingHandler.ICEServers)
		r.With(limit("stats", cfg.RateLimitStats, nil)).Get("/stats", queueHandler.Stats)

		r.Group(func(r chi.Router) {
			r.Use(identityMiddleware.Handler)

			r.With(limit("enqueue", cfg.RateLimitEnqueue, queueHandler.EnqueueExempt)).Post("/queue", queueHandler.Enqueue)
			r.With(limit("poll", cfg.RateLimitPoll, nil)).Get("/queue", queueHandler.Poll)
			r.With(limit("cancel", cfg.RateLimitCancel, nil)).Delete("/queue", queueHandler.Cancel)
			r.With(limit("teardown", cfg.RateLimitTeardown, nil)).Post("/teardown", queueHandler.Teardown)

			r.Route("/pairings", func(r chi.Router) {
				r.Use(limit("signal", cfg.RateLimitSignal, nil))
				r.Mount("/", signalingHandler.Routes())
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminMiddleware.Handler)
		r.Post("/reset", adminHandler.Reset)
	})

	maintenanceJob := jobs.NewMaintenanceJob(queueService, cleaners, pruner, jobs.MaintenanceConfig{
		Interval:        config.MaintenanceJobInterval,
		StaleAfter:      cfg.TicketStaleAfter(),
		LedgerRetention: config.LedgerRetention,
	})
	maintenanceJob.Start()
	defer maintenanceJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Bool("production", isProduction).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
