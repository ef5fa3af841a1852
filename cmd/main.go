package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/backend/internal/api/handler"
	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/complaint"
	"pairchat/backend/internal/config"
	"pairchat/backend/internal/ratelimit"
	"pairchat/backend/internal/storage"
	"pairchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupDependencies connects the optional PostgreSQL and Redis backends.
func setupDependencies(ctx context.Context, cfg config.Config, log *slog.Logger) (*gorm.DB, *redis.Client) {
	var db *gorm.DB
	if cfg.DatabaseDSN != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Error("failed to connect PostgreSQL", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("DATABASE_DSN not set, bans and audit log are disabled")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Error("failed to connect Redis", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("REDIS_ADDR not set, ban cache and rate limits are disabled")
	}
	return db, rdb
}

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(log)
	log.Info("starting pairchat backend", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg, log)
	s := storage.NewStorageService(db, rdb)
	if err := s.AutoMigrate(); err != nil {
		log.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}

	hub := chathub.NewManagerService(s, cfg, log)
	matcher := chathub.NewMatcherService(hub, s, cfg, log)
	router := chathub.NewRouter(hub, matcher,
		complaint.NewService(s, log),
		ratelimit.NewLimiter(rdb, log),
		log)

	go hub.Run(ctx)
	go matcher.Run(ctx)

	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChatID != 0 {
		api, err := telegram.NewBotAPI(cfg.TelegramBotToken, log)
		if err != nil {
			log.Error("telegram bot disabled", "err", err)
		} else {
			bot := telegram.NewModerationBot(api, hub, s, matcher, cfg.TelegramAdminChatID, log)
			hub.SetMediaForwarder(bot)
			u := tgbotapi.NewUpdate(0)
			u.Timeout = 60
			go bot.Run(ctx, api.GetUpdatesChan(u))
		}
	}

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.NewHandler(router, s, cfg, log).Register(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "err", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
