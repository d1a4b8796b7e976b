package whatsapp

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/utils"
)

// RegisterRoutes registers the WhatsApp webhook endpoints
func RegisterRoutes(router *gin.Engine, ctrl *Controller) {
	// Meta sends GET for verification, POST for deliveries
	router.GET("/webhook", ctrl.VerifyWebhook)
	router.POST("/webhook", ctrl.Webhook)

	utils.Zlog.Info("WhatsApp routes registered",
		zap.String("verify_endpoint", "/webhook [GET]"),
		zap.String("webhook_endpoint", "/webhook [POST]"))
}
