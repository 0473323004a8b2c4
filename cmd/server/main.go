package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/handler"
	"ethpoint/internal/infrastructure/cache"
	"ethpoint/internal/infrastructure/database"
	"ethpoint/internal/infrastructure/lock"
	"ethpoint/internal/infrastructure/mq"
	"ethpoint/internal/job"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/internal/service"
	"ethpoint/pkg/idgen"
	"ethpoint/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	workerID := flag.Int64("worker-id", 1, "snowflake worker id of this instance")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.Log.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logger.Log.Warn().Msg("JWT_SECRET is not set, using the built-in development secret")
	}

	if err := idgen.Init(*workerID); err != nil {
		logger.Log.Fatal().Err(err).Msg("init id generator")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("open database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal().Err(err).Msg("migrate database")
	}

	var guard lock.Guard = lock.NopGuard{}
	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("connect redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = lock.NewRedisGuard(redisClient)
	} else {
		logger.Log.Warn().Msg("redis not configured, account writes rely on database row locks only")
	}

	catalog, err := service.NewCatalog(model.DefaultPlans(), model.DefaultPaymentMethods(), cfg.Payments.Addresses)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("build plan catalog")
	}
	hasher, err := service.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("init password hasher")
	}
	tokens := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.EnsureDefaultAdmin(ctx, repository.NewAccountRepository(db), hasher, catalog, cfg.Admin); err != nil {
		logger.Log.Fatal().Err(err).Msg("ensure default admin")
	}

	var (
		producer     *mq.KafkaProducer
		outboxSender *job.OutboxSender
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("connect kafka")
		}

		outboxSender = job.NewOutboxSender(db, producer, &cfg.Business)
		go outboxSender.Start(ctx)
	} else {
		logger.Log.Warn().Msg("kafka not configured, domain events stay in the outbox table")
	}

	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(db, guard, catalog, hasher, tokens, cfg)
	router := handler.SetupRouter(h, &cfg.Server)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info().Int("port", cfg.Server.Port).Str("dialect", cfg.Database.Dialect).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info().Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("server shutdown")
	}

	if outboxSender != nil {
		outboxSender.Stop()
		if err := producer.Close(); err != nil {
			logger.Log.Error().Err(err).Msg("close kafka producer")
		}
	}

	logger.Log.Info().Msg("server stopped")
}
