package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/controllers"
)

// SetupAPIRoutes configures the /api/v1 endpoints
func SetupAPIRoutes(router *gin.Engine, cfg *config.Config, tenants controllers.TenantLister, threads controllers.ThreadCounter) {
	systemController := controllers.NewSystemController(cfg, tenants, threads)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", systemController.Status)
	}
}

// Setup404Handler configures the 404 handler
func Setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
		})
	})
}
