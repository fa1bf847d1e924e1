package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"chai-assistant/internal/bootstrap"
	"chai-assistant/internal/transport/http/handler"
	"chai-assistant/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(app.Logger.With("component", "http")))

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app)...)
	router.GET("/healthz", healthHandler.Check)

	chatHandler := handler.NewChatHandler(app.Chat)
	ingestHandler := handler.NewIngestHandler(app.Ingest)

	v1 := router.Group("/api/v1")
	// Without a secret the API is open and callers pick their own thread.
	if secret := app.Config.Auth.JWTSecret; secret != "" {
		v1.Use(middleware.AuthJWT(secret))
	}

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.POST("/stream", chatHandler.Stream)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.DELETE("/history", chatHandler.ClearHistory)

	v1.POST("/ingest", ingestHandler.Trigger)

	return router
}

func healthChecks(app *bootstrap.App) []handler.HealthCheck {
	checks := []handler.HealthCheck{
		{Name: "runtime", Check: app.Runtime.Ping},
		{Name: "memory", Check: app.Memory.Ping},
		{Name: "redis"},
		{Name: "rabbitmq"},
	}
	if app.Redis != nil {
		checks[2].Check = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks[3].Check = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
