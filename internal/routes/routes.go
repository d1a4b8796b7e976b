package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/assistant-relay/internal/api/channels/whatsapp"
	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/middleware"
	"github.com/Conversly/assistant-relay/internal/tenant"
	"github.com/Conversly/assistant-relay/internal/threads"
)

// Dependencies are the long-lived objects the HTTP surface needs
type Dependencies struct {
	Config   *config.Config
	Store    *threads.Store
	Resolver *tenant.Resolver
	WhatsApp *whatsapp.Controller
}

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Apply global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Setup route groups
	SetupHealthRoutes(router, deps.Store)
	SetupAPIRoutes(router, deps.Config, deps.Resolver, deps.Store)
	whatsapp.RegisterRoutes(router, deps.WhatsApp)
	Setup404Handler(router)
}
