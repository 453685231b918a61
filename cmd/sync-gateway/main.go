package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushub/lms-sync-api/api/swagger"
	"github.com/campushub/lms-sync-api/internal/handler"
	"github.com/campushub/lms-sync-api/internal/middleware"
	"github.com/campushub/lms-sync-api/internal/repository"
	"github.com/campushub/lms-sync-api/internal/service"
	"github.com/campushub/lms-sync-api/pkg/cache"
	"github.com/campushub/lms-sync-api/pkg/config"
	"github.com/campushub/lms-sync-api/pkg/database"
	"github.com/campushub/lms-sync-api/pkg/jobs"
	"github.com/campushub/lms-sync-api/pkg/logger"
	corsmiddleware "github.com/campushub/lms-sync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushub/lms-sync-api/pkg/middleware/requestid"
)

// @title CampusHub LMS Sync API
// @version 1.0.0
// @description Synchronization gateway for external learning management systems
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	connRepo := repository.NewConnectionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	resultCache := service.NewResultCache(redisClient, cfg.Sync.ResultCacheTTL, logr)
	metricsSvc := service.NewMetricsService()
	registrySvc := service.NewRegistryService(connRepo, nil, resultCache, nil, logr,
		cfg.Sync.DefaultTimeout, cfg.Sync.DefaultRetries)
	syncSvc := service.NewSyncService(connRepo, rosterRepo, registrySvc, resultCache, metricsSvc, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewQueue("connection-sync", syncSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Sync.WorkerConcurrency,
		BufferSize: cfg.Sync.QueueBuffer,
		MaxRetries: 1,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	syncSvc.AttachQueue(queue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	connHandler := handler.NewConnectionHandler(registrySvc)
	syncHandler := handler.NewSyncHandler(syncSvc)

	api := r.Group(cfg.APIPrefix)
	{
		conns := api.Group("/connections")
		conns.POST("", connHandler.Register)
		conns.GET("", connHandler.List)
		conns.GET("/:id", connHandler.Get)
		conns.DELETE("/:id", connHandler.Remove)

		conns.POST("/:id/sync", syncHandler.Sync)
		conns.GET("/:id/sync/last", syncHandler.LastResult)
		conns.POST("/:id/grades/export", syncHandler.ExportGrades)
		conns.PUT("/:id/grades/:gradeId", syncHandler.UpdateGrade)
		conns.POST("/:id/courses/:courseId/assignments", syncHandler.CreateAssignment)

		conns.GET("/:id/users", syncHandler.Users)
		conns.GET("/:id/courses", syncHandler.Courses)
		conns.GET("/:id/grades", syncHandler.Grades)
		conns.GET("/:id/roster/summary", syncHandler.Summary)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}
}
