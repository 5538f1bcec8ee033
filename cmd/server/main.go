package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/monitoring"
	"taskboard/internal/services"
	"taskboard/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	log := logrus.New()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		log.WithError(err).Fatal("failed to migrate database schema")
	}

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create upload directory")
	}

	monitoring.RegisterHealthCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	taskService := services.NewTaskService()
	authService := services.NewAuthService(cfg.Auth)
	registerService := services.NewRegisterService(cfg.Auth, authService)

	var (
		tasks    services.TaskService = taskService
		jobQueue *worker.JobQueue
		jobs     *worker.Worker
	)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		boardCache := cache.NewMultiLevelCache(cache.NewRedisCacheFromClient(rdb))
		tasks = services.NewCachedTaskService(taskService, boardCache)
		jobQueue = worker.NewJobQueue(rdb)

		jobs = worker.NewWorker(worker.WorkerConfig{
			RedisClient: rdb,
			Logger:      log,
			Queues:      cfg.Worker.Queues,
		})
		jobs.RegisterHandler(worker.JobTypeDueReminder, worker.DueReminderHandler(db, log))
		jobs.RegisterHandler(worker.JobTypeCleanup, worker.CleanupHandler(db, cfg.Upload.Dir, log))
		jobs.Start(cfg.Worker.Concurrency)

		if err := jobQueue.Enqueue(worker.DefaultQueue, worker.JobTypeCleanup, nil); err != nil {
			log.WithError(err).Warn("failed to schedule avatar cleanup")
		}

		monitoring.RegisterHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	router := handlers.NewRouter(handlers.RouterDeps{
		Cfg:             cfg,
		DB:              db,
		Log:             log,
		AuthService:     authService,
		RegisterService: registerService,
		TaskService:     tasks,
		JobQueue:        jobQueue,
		RateLimiter:     rateLimiter,
	})

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("taskboard API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}

	if jobs != nil {
		jobs.Stop()
	}
	rateLimiter.Stop()
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.Database.Driver == "sqlite" {
		db, err = gorm.Open(sqlite.Open(cfg.Database.Name), gormCfg)
	} else {
		db, err = gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), gormCfg)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}
