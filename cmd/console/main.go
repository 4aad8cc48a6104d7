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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xela07ax/taskflow-approval-console/internal/audit"
	"github.com/xela07ax/taskflow-approval-console/internal/backend"
	"github.com/xela07ax/taskflow-approval-console/internal/cache"
	"github.com/xela07ax/taskflow-approval-console/internal/console/flow"
	"github.com/xela07ax/taskflow-approval-console/internal/console/handler"
	"github.com/xela07ax/taskflow-approval-console/internal/console/server"
	"github.com/xela07ax/taskflow-approval-console/internal/console/service"
	"github.com/xela07ax/taskflow-approval-console/internal/infra"
	"github.com/xela07ax/taskflow-approval-console/internal/infra/auth"
	"github.com/xela07ax/taskflow-approval-console/internal/metrics"
	"github.com/xela07ax/taskflow-approval-console/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Собственный Postgres консоли: журнал изменений + операторы
	auditRepo := postgres.NewAuditRepo(cfg.Database.URL)
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := auditRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("invalid database url", zap.Error(err))
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := pgxpool.NewWithConfig(appCtx, poolCfg)
	if err != nil {
		logger.Fatal("failed to create pgx pool", zap.Error(err))
	}
	defer pool.Close()

	// Метрики
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 3. Журнал изменений: события летят в базу пачками
	trail := audit.NewTrail(auditRepo, logger, audit.Options{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		BufferGauge:   m.AuditBufferFill,
	})
	trail.Start()
	defer trail.Stop()

	// 4. Клиент бэкенда платформы (rate limit + breaker + retry на чтениях)
	apiClient := backend.NewClient(cfg.Backend, logger, m)

	// Кэш групп согласующих с межрепличной инвалидацией через Redis
	groupCache := cache.NewGroupCache(apiClient, rdb, logger)
	go groupCache.StartInvalidationListener(appCtx)

	// Реестр живых сессий редактирования + janitor протухших
	registry := flow.NewRegistry(cfg.Flows, logger)
	registry.Start()
	defer registry.Stop()

	// 5. Аутентификация операторов (RS256)
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to load private key", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to load public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 6. Инициализация слоев (Dependency Injection)
	operatorRepo := postgres.NewOperatorRepo(pool)
	authService := service.NewAuthService(operatorRepo, privKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(auditRepo, registry)

	deps := flow.Deps{
		API:      apiClient,
		Audit:    trail,
		Notifier: groupCache,
		Observer: metrics.FlowObserver{M: m},
	}

	consoleSrv := server.NewConsoleServer(
		cfg,
		logger,
		m,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewFlowHandler(registry, deps, logger),
		handler.NewGroupHandler(registry, deps, logger),
		handler.NewRefdataHandler(apiClient, groupCache),
		handler.NewAuditHandler(auditService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("approval console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("approval console stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("approval console exited properly")
}

func buildLogger(cfg infra.LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
