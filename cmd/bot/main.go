package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGLookupBot/internal/admin"
	"github.com/digkill/TGLookupBot/internal/catalog"
	"github.com/digkill/TGLookupBot/internal/config"
	"github.com/digkill/TGLookupBot/internal/database"
	"github.com/digkill/TGLookupBot/internal/lookup"
	"github.com/digkill/TGLookupBot/internal/metrics"
	"github.com/digkill/TGLookupBot/internal/repository"
	"github.com/digkill/TGLookupBot/internal/service"
	"github.com/digkill/TGLookupBot/internal/storage"
	"github.com/digkill/TGLookupBot/internal/telegram"
	"github.com/digkill/TGLookupBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	stats, err := metrics.New(cfg.StatsdAddr, cfg.StatsdNamespace)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	defer stats.Close()

	store := database.NewStore(cfg.DataFile, cfg.DataBackupFile, database.Defaults{
		WelcomeBonus:      cfg.WelcomeBonus,
		ReferralBonus:     cfg.ReferralBonus,
		MaxRequestsPerDay: cfg.MaxRequestsPerDay,
		CooldownSeconds:   cfg.CooldownSeconds,
		Roles:             database.DefaultRoles(),
	}, logr)
	if _, err := store.Load(ctx); err != nil {
		log.Fatalf("load data file: %v", err)
	}

	var archive service.Archiver
	if cfg.MySQLDSN != "" {
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		archive = repository.NewArchiveRepository(db)
		logr.Info("history archive enabled")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	lookupClient := lookup.NewClient(cfg, logr)

	userService := service.NewUserService(store, nil, logr)
	creditService := service.NewCreditService(store, cat, cfg.QueryHistoryLimit, nil, logr)
	exclusionService := service.NewExclusionService(store, cfg.ExclusionSlotPrice, cfg.ExclusionEditFee, nil, logr)
	historyService := service.NewHistoryService(store, archive, cfg.ErrorLogLimit, nil, logr)
	settingsService := service.NewSettingsService(store, logr)
	shopService := service.NewShopService(store, cat, nil, logr)
	paymentService := service.NewPaymentService(cfg.TelegramPaymentProviderToken, cfg.PaymentCurrency, shopService, cat, logr)
	queryService := service.NewQueryService(cat, userService, creditService, exclusionService, historyService, settingsService, lookupClient, stats, nil, logr)

	bot := telegram.NewBot(cfg, botAPI, logr, telegram.Services{
		Catalog:    cat,
		Users:      userService,
		Exclusions: exclusionService,
		History:    historyService,
		Shop:       shopService,
		Query:      queryService,
		Payments:   paymentService,
	})

	broadcastService := service.NewBroadcastService(userService, bot, cfg.BroadcastBatchSize, cfg.BroadcastPause, cfg.BroadcastPerSecond, logr)

	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		snapshots := service.NewSnapshotService(store, uploader, logr)
		go func() {
			if err := snapshots.Run(ctx, cfg.SnapshotInterval); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("snapshot worker stopped", "err", err)
			}
		}()
	}

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, admin.Services{
		Users:      userService,
		Credits:    creditService,
		Exclusions: exclusionService,
		History:    historyService,
		Shop:       shopService,
		Settings:   settingsService,
		Broadcast:  broadcastService,
	})
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
