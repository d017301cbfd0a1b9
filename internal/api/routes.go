package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the public endpoints. metricsHandler may be nil.
func SetupRoutes(router *gin.Engine, h *Handler, metricsHandler http.Handler) {
	router.GET("/health", h.Health)
	router.POST("/validate-key", h.ValidateKey)
	router.POST("/github-summarize", h.GithubSummarize)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}
}
