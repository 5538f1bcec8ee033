package handlers

import (
	"taskboard/internal/config"
	"taskboard/internal/middleware"
	"taskboard/internal/monitoring"
	"taskboard/internal/services"
	"taskboard/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps carries everything the HTTP surface needs. JobQueue and
// RateLimiter may be nil (Redis disabled, limits off); the routes degrade
// gracefully.
type RouterDeps struct {
	Cfg             *config.Config
	DB              *gorm.DB
	Log             *logrus.Logger
	AuthService     services.AuthService
	RegisterService services.RegisterService
	TaskService     services.TaskService
	JobQueue        *worker.JobQueue
	RateLimiter     *middleware.RateLimiter
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(monitoring.MetricsMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{deps.Cfg.Server.ClientOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	generalLimit := func(c *gin.Context) { c.Next() }
	authLimit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		generalLimit = deps.RateLimiter.General()
		authLimit = deps.RateLimiter.Auth()
	}

	registerHandler := NewRegisterHandler(deps.DB, deps.RegisterService, deps.Cfg.Upload, deps.Log)
	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Log)
	taskHandler := NewTaskHandler(deps.DB, deps.TaskService, deps.JobQueue, deps.Log)

	router.Static("/uploads", deps.Cfg.Upload.Dir)
	router.GET("/healthz", monitoring.HealthHandler)
	router.GET("/metrics", monitoring.MetricsHandler)

	auth := router.Group("/api/auth", authLimit)
	{
		auth.POST("/register", registerHandler.Registration)
		auth.POST("/login", authHandler.Login)
	}

	tasks := router.Group("/api/tasks", generalLimit, middleware.AuthMiddleware(deps.Cfg.Auth.JWTSecret))
	{
		tasks.GET("", taskHandler.GetTasks)
		tasks.GET("/board", taskHandler.GetBoard)
		tasks.POST("", taskHandler.CreateTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.PUT("/:id/move", taskHandler.MoveTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}

	return router
}
