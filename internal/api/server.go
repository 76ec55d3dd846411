package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(NewServer, NewTaskAPI, NewWebhookAPI)

type Server struct {
	router *gin.Engine
}

func NewServer(
	taskAPI *TaskAPI,
	webhookAPI *WebhookAPI,
	logger *zap.Logger,
) *Server {
	s := &Server{}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(ErrorHandlingMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	s.router.Use(cors.New(corsConfig))

	v1 := s.router.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskAPI.List)
			tasks.POST("", taskAPI.Create)
			tasks.GET("/:id", taskAPI.Get)
			tasks.PUT("/:id", taskAPI.Update)
			tasks.DELETE("/:id", taskAPI.Delete)
			tasks.POST("/:id/trigger", taskAPI.Trigger)
			tasks.POST("/:id/pause", taskAPI.Pause)
			tasks.POST("/:id/resume", taskAPI.Resume)
			tasks.GET("/:id/runs", taskAPI.ListRuns)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.GET("", webhookAPI.List)
			webhooks.POST("", webhookAPI.Create)
			webhooks.POST("/test", webhookAPI.TestAdhoc)
			webhooks.GET("/:id", webhookAPI.Get)
			webhooks.PUT("/:id", webhookAPI.Update)
			webhooks.DELETE("/:id", webhookAPI.Delete)
			webhooks.POST("/:id/test", webhookAPI.Test)
			webhooks.GET("/:id/deliveries", webhookAPI.ListDeliveries)
		}

		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok", "time": time.Now()})
		})
	}

	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
