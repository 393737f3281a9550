// Package main is the entry point for the DeepSafe API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/auth"
	"deepsafe/internal/bot"
	"deepsafe/internal/config"
	"deepsafe/internal/geo"
	"deepsafe/internal/httpapi"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/repository"
	"deepsafe/internal/scheduler"
	"deepsafe/internal/service"
	"deepsafe/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	configPath := os.Getenv("DEEPSAFE_CONFIG_DIR")
	if configPath == "" {
		configPath = "config"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)
	log.Info().Str("timezone", cfg.Timezone).Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	loc := cfg.Location()
	catalog := geo.Default()
	userLock := lock.New()

	// Repositories
	profileRepo := repository.NewProfileRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	avatarRepo := repository.NewAvatarRepository(dbPool)
	badgeRepo := repository.NewBadgeRepository(dbPool)
	inventoryRepo := repository.NewInventoryRepository(dbPool)
	txRepo := repository.NewTransactionRepository(dbPool)
	friendRepo := repository.NewFriendRepository(dbPool)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	providers, err := auth.NewProviders(cfg.Auth.OAuth, strings.TrimRight(cfg.Server.PublicURL, "/"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure OAuth providers")
	}
	defer func() {
		for _, p := range providers {
			p.Close()
		}
	}()

	// Services
	accountService := service.NewAccountService(dbPool, profileRepo, sessionRepo, avatarRepo, inventoryRepo, txRepo,
		tokens, providers, cfg.Auth.RefreshTTL, cfg.Progression)
	progressionService := service.NewProgressionService(dbPool, profileRepo, badgeRepo, inventoryRepo, txRepo, catalog, cfg.Progression, loc)
	shopService := service.NewShopService(dbPool, profileRepo, repository.NewShopRepository(dbPool), inventoryRepo, avatarRepo, txRepo, userLock)
	giftService := service.NewGiftService(dbPool, profileRepo, friendRepo, repository.NewGiftRepository(dbPool), inventoryRepo, txRepo, userLock)
	rankingService := service.NewRankingService(profileRepo, friendRepo)
	adminService := service.NewAdminService(dbPool, profileRepo, inventoryRepo, txRepo, userLock, cfg.Progression)
	backupService := service.NewBackupService(dbPool, repository.NewBackupRepository(dbPool))

	svc := httpapi.Services{
		Account:     accountService,
		Progression: progressionService,
		Missions:    service.NewMissionService(dbPool, repository.NewMissionRepository(dbPool), profileRepo, badgeRepo, txRepo, catalog),
		Shop:        shopService,
		Gifts:       giftService,
		Friends:     service.NewFriendService(profileRepo, friendRepo),
		Ranking:     rankingService,
		Admin:       adminService,
		Catalog:     service.NewCatalogService(badgeRepo, avatarRepo, catalog),
		Feedback:    service.NewFeedbackService(repository.NewFeedbackRepository(dbPool)),
		Analytics:   service.NewAnalyticsService(repository.NewAnalyticsRepository(dbPool), loc),
		Backup:      backupService,
		Geo:         catalog,
		DB:          dbPool,
	}

	jobs := scheduler.Jobs{Regen: progressionService, Sessions: sessionRepo, Backup: backupService}
	switch objectStore, err := storage.New(ctx, cfg.Storage); {
	case errors.Is(err, storage.ErrDisabled):
		log.Info().Msg("Object storage not configured, uploads disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to configure object storage")
	default:
		svc.Uploads = objectStore
		jobs.Store = objectStore
	}

	sched, err := scheduler.New(ctx, jobs, cfg.Backup, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	sched.Start()

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			SecureCookies:  strings.HasPrefix(cfg.Server.PublicURL, "https://"),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:             cfg,
			AccountService:     accountService,
			ProgressionService: progressionService,
			RankingService:     rankingService,
			ShopService:        shopService,
			GiftService:        giftService,
			AdminService:       adminService,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go telegramBot.Start()
	} else {
		log.Info().Msg("Bot token not set, Telegram bot disabled")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if telegramBot != nil {
		telegramBot.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
