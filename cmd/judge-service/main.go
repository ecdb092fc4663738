package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/db"
	commonmw "koodecode/internal/common/http/middleware"
	"koodecode/internal/common/mq"
	"koodecode/internal/common/storage"
	"koodecode/internal/judge/controller"
	"koodecode/internal/judge/distribution"
	"koodecode/internal/judge/judge0"
	"koodecode/internal/judge/metrics"
	"koodecode/internal/judge/poller"
	"koodecode/internal/judge/repository"
	"koodecode/internal/judge/service"
	"koodecode/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio failed: %w", err)
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	judgeClient, err := judge0.NewHTTPClient(appCfg.Judge0, nil)
	if err != nil {
		return fmt.Errorf("init judge0 client failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	judgeMetrics := metrics.New(registry)

	judgePoller, err := poller.New(poller.Config{
		Client:      judgeClient,
		BaseDelay:   appCfg.Poller.BaseDelay,
		Step:        appCfg.Poller.Step,
		MaxDelay:    appCfg.Poller.MaxDelay,
		MaxAttempts: appCfg.Poller.MaxAttempts,
		Observer:    judgeMetrics.ObserveCase,
	})
	if err != nil {
		return fmt.Errorf("init poller failed: %w", err)
	}

	engine, err := distribution.NewEngine(distribution.Config{
		Source:       distribution.NewMySQLSource(mysqlDB, appCfg.Distribution.SampleLimit),
		Store:        distribution.NewRedisStore(redisCache, appCfg.Distribution.CacheTTL),
		RefreshAfter: appCfg.Distribution.RefreshAfter,
		LoadTimeout:  appCfg.Distribution.LoadTimeout,
		OnLookup:     judgeMetrics.ObserveLookup,
	})
	if err != nil {
		return fmt.Errorf("init distribution engine failed: %w", err)
	}

	events := repository.NewMQEventPublisher(mqClient, appCfg.Topics)
	verdictRepo := repository.NewVerdictRepository(mysqlDB)
	statusRepo := repository.NewStatusRepository(redisCache, verdictRepo, events, appCfg.Status.TTL, appCfg.Status.EmptyTTL)
	testCaseRepo := repository.NewTestCaseRepository(mysqlDB, redisCache, appCfg.TestCases.CacheTTL)

	judgeSvc, err := service.NewService(service.Config{
		StatusRepo:     statusRepo,
		TestCases:      testCaseRepo,
		Verdicts:       verdictRepo,
		Executor:       judgePoller,
		Ranker:         engine,
		Events:         events,
		Locker:         redisCache,
		Storage:        objStorage,
		Producer:       mqClient,
		PoolRetry:      appCfg.Kafka.PoolRetry,
		Metrics:        judgeMetrics,
		SourceBucket:   appCfg.Source.Bucket,
		MaxSourceKB:    appCfg.Source.MaxKB,
		Languages:      appCfg.Worker.Languages,
		LockTTL:        appCfg.Status.LockTTL,
		JudgeTimeout:   appCfg.Worker.Timeout,
		StorageTimeout: appCfg.Source.Timeout,
		StatusTimeout:  appCfg.Status.Timeout,
		WorkerPoolSize: appCfg.Worker.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	limiter := mq.NewTokenLimiter(appCfg.Worker.PoolSize + appCfg.Worker.Prefetch)
	for _, topic := range []string{appCfg.Kafka.TaskTopic, appCfg.Kafka.PoolRetry.Topic} {
		err := mqClient.SubscribeWithOptions(ctx, topic, judgeSvc.HandleMessage, &mq.SubscribeOptions{
			ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
			Concurrency:     appCfg.Kafka.Concurrency,
			MaxRetries:      appCfg.Kafka.MaxRetries,
			RetryDelay:      appCfg.Kafka.RetryDelay,
			DeadLetterTopic: appCfg.Kafka.DeadLetter,
			MessageTTL:      appCfg.Kafka.MessageTTL,
			Limiter:         limiter,
		})
		if err != nil {
			return fmt.Errorf("subscribe %s failed: %w", topic, err)
		}
	}
	if err := mqClient.Start(); err != nil {
		return fmt.Errorf("start kafka consumer failed: %w", err)
	}
	defer func() {
		_ = mqClient.Stop()
	}()

	judgeController := controller.NewJudgeController(statusRepo, engine, verdictRepo,
		controller.HealthCheck{Name: "mysql", Ping: mysqlDB.Ping},
		controller.HealthCheck{Name: "redis", Ping: redisCache.Ping},
		controller.HealthCheck{Name: "kafka", Ping: mqClient.Ping},
	)
	httpServer := buildHTTPServer(appCfg.Server, judgeController, judgeMetrics)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController, judgeMetrics *metrics.Metrics) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	judgeController.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(judgeMetrics.Handler()))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
