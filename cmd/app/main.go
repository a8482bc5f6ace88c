// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-results-bot/internal/application"
	"telegram-results-bot/internal/config"
	"telegram-results-bot/internal/domain/ports/adapter"
	resultsapi "telegram-results-bot/internal/infra/adapters/results"
	pg "telegram-results-bot/internal/infra/db/postgres"
	"telegram-results-bot/internal/infra/i18n"
	"telegram-results-bot/internal/infra/logging"
	"telegram-results-bot/internal/infra/metrics"
	red "telegram-results-bot/internal/infra/redis"
	tele "telegram-results-bot/internal/infra/telegram"
	"telegram-results-bot/internal/infra/web"
	"telegram-results-bot/internal/infra/worker"
	"telegram-results-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient, cfg.Search.RateLimitWindow, logger)
	resultCache := red.NewResultCache(redisClient, cfg.Redis.CacheTTL, logger)

	// ---- Repositories ----
	sessionRepo := pg.NewPostgresSessionRepo(pool)
	studentRepo := pg.NewPostgresStudentRepo(pool)

	// ---- i18n ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, "ar")
	if err != nil {
		logger.Fatal().Err(err).Msg("load translations failed")
	}

	// ---- Telegram transports ----
	creds := make([]tele.Credential, 0, len(cfg.Bot.Tokens))
	for _, token := range cfg.Bot.Tokens {
		creds = append(creds, tele.Credential(token))
	}
	router, err := tele.NewTokenRouter(tele.RouterConfig{
		Credentials: creds,
		Mode:        tele.Mode(cfg.Bot.Mode),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("token router init failed")
	}

	factory := tele.NewTransportFactory(logger)
	if cfg.Runtime.Dev {
		factory = tele.NewNoopFactory(logger)
	}
	manager, err := tele.NewManager(router, factory, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot manager init failed")
	}
	dispatcher := tele.NewDispatcher(manager, logger)

	// ---- Subscription gate ----
	var subChecker adapter.SubscriptionChecker = tele.AllowAllChecker{}
	if cfg.Bot.RequiredChannel.ChatID != 0 && !cfg.Runtime.Dev {
		primary, ok := manager.PrimaryClient().(*tele.RealTransport)
		if !ok {
			logger.Fatal().Msg("required channel configured but primary transport is not real")
		}
		subChecker = tele.NewChannelSubscriptionChecker(primary.Bot(), cfg.Bot.RequiredChannel.ChatID, logger)
	}

	// ---- External results API ----
	var resultAPI adapter.ResultAPI
	if cfg.ResultsAPI.BaseURL != "" {
		resultAPI, err = resultsapi.NewClient(resultsapi.Config{
			BaseURL:     cfg.ResultsAPI.BaseURL,
			Timeout:     cfg.ResultsAPI.Timeout,
			MaxAttempts: cfg.ResultsAPI.MaxAttempts,
		}, resultCache, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("results api client init failed")
		}
	}

	// ---- Use cases ----
	broadcastUC := usecase.NewBroadcastUseCase(sessionRepo, dispatcher, usecase.BroadcastConfig{
		BatchSize:  cfg.Broadcast.BatchSize,
		BatchDelay: cfg.Broadcast.BatchDelay,
	}, logger)
	conversationUC := usecase.NewConversationUseCase(
		sessionRepo, studentRepo, resultAPI, rateLimiter, subChecker, broadcastUC, translator,
		usecase.ConversationConfig{
			AdminIDs:        cfg.Bot.AdminIDs,
			ResultPageSize:  cfg.Search.PageSize,
			SearchPerMinute: cfg.Search.RatePerMinute,
			ChannelTitle:    cfg.Bot.RequiredChannel.Title,
			ChannelUsername: cfg.Bot.RequiredChannel.Username,
		},
		logger,
	)

	facade := application.NewBotFacade(conversationUC, broadcastUC, dispatcher, logger)

	// ---- Workers + HTTP ----
	updatePool := worker.NewPool(8, logger)
	updatePool.Start(ctx)

	server := web.NewServer(facade, manager, updatePool, cfg.Web.APIKey, logger,
		web.HealthCheck{Name: "postgres", Check: pool.Ping},
		web.HealthCheck{Name: "redis", Check: redisClient.Ping},
	)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
		Handler: server.Routes(),
	}
	go func() {
		logger.Info().Int("port", cfg.Web.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown did not finish cleanly")
	}
	cancel()
	updatePool.Stop()
	logger.Info().Msg("bye")
}
