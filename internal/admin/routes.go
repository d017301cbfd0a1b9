package admin

import (
	"log/slog"

	"marunose/internal/auth"
	"marunose/internal/config"
	"marunose/internal/db"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, dbService db.Service, events EventSource, cfg *config.Config, log *slog.Logger) {
	handler := NewHandler(dbService, events, log)

	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.Password))
	{
		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.POST("", handler.CreateKeyHandler)
			keysGroup.GET("/:id", handler.GetKeyHandler)
			keysGroup.PUT("/:id", handler.UpdateKeyHandler)
			keysGroup.DELETE("/:id", handler.DeleteKeyHandler)
			keysGroup.POST("/:id/toggle", handler.ToggleKeyHandler)
		}

		adminGroup.GET("/usage", handler.UsageHandler)
		adminGroup.GET("/security-events", handler.SecurityEventsHandler)
	}
}
