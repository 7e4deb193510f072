package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medvault-records/internal/codec"
	"medvault-records/internal/config"
	"medvault-records/internal/crypto"
	"medvault-records/internal/database"
	httpapi "medvault-records/internal/http"
	"medvault-records/internal/logger"
	"medvault-records/internal/repository"
	"medvault-records/internal/service"
	"medvault-records/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 尚未就绪，只能裸打
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "medvault-records")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 字段加密密钥：64 位 hex 直接解码，否则 SHA-256 派生
	key, err := crypto.DeriveKey(cfg.SecretKey)
	if err != nil {
		log.Fatal("Failed to derive encryption key", zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	// Repository 层
	usersRepo := repository.NewPostgresUsersRepository(db)
	tokensRepo := repository.NewPostgresTokensRepository(db)
	cliniciansRepo := repository.NewPostgresCliniciansRepository(db)
	patientCodec := codec.NewPatientCodec(key, log)
	patientsRepo := repository.NewKVPatientsRepository(kv, patientCodec)
	auditRepo := repository.NewRedisAuditRepository(kv, log)

	// Service 层
	var notifier service.InviteNotifier = service.NoopNotifier{}
	if cfg.Invite.WebhookURL != "" {
		notifier = service.NewWebhookNotifier(cfg.Invite.WebhookURL, log)
	}
	guard := service.NewGuard(cliniciansRepo, log)
	authService := service.NewAuthService(usersRepo, tokensRepo, auditRepo, log)
	accountService := service.NewAccountService(
		usersRepo, cliniciansRepo, tokensRepo, patientsRepo, auditRepo,
		notifier, time.Duration(cfg.Token.ValidHours)*time.Hour, cfg.Invite.BaseURL, log,
	)
	patientService := service.NewPatientService(patientsRepo, cliniciansRepo, auditRepo, guard, log)

	// 启动期初始化：种子角色 + 默认管理员
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := accountService.Bootstrap(bootCtx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		bootCancel()
		log.Fatal("Bootstrap failed", zap.Error(err))
	}
	bootCancel()

	// HTTP 层
	sessions := httpapi.NewSessionStore(kv, time.Duration(cfg.Session.IdleMinutes)*time.Minute, log)
	router := httpapi.NewRouter(log)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(authService, sessions, log))
	router.RegisterAdminRoutes(httpapi.NewAdminAccountsHandler(accountService, sessions, guard, log))
	router.RegisterPatientRoutes(httpapi.NewPatientHandler(patientService, sessions, log))
	router.RegisterAuditRoutes(httpapi.NewAuditHandler(auditRepo, sessions, guard, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Shutdown signal received")
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}
