package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/core"
	"github.com/Conversly/assistant-relay/internal/utils"
)

// Controller handles WhatsApp webhook requests
type Controller struct {
	adapter     *Adapter
	service     *Service
	verifyToken string
	appSecret   string
	async       bool

	inflight sync.WaitGroup
}

type ControllerOptions struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
	// Async acknowledges deliveries before the reply is produced.
	Async bool
}

func NewController(adapter *Adapter, service *Service, opts ControllerOptions) *Controller {
	return &Controller{
		adapter:     adapter,
		service:     service,
		verifyToken: opts.VerifyToken,
		appSecret:   opts.AppSecret,
		async:       opts.Async,
	}
}

// VerifyWebhook handles Meta's subscription handshake
// GET /webhook
func (c *Controller) VerifyWebhook(ctx *gin.Context) {
	mode := ctx.Query("hub.mode")
	token := ctx.Query("hub.verify_token")
	challenge := ctx.Query("hub.challenge")

	if mode == "" || token == "" {
		utils.Zlog.Info("Webhook verification missing parameters")
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing parameters"})
		return
	}

	if mode != "subscribe" || token != c.verifyToken {
		utils.Zlog.Warn("Webhook verification failed", zap.String("mode", mode))
		ctx.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "Verification failed"})
		return
	}

	utils.Zlog.Info("Webhook verified")
	ctx.String(http.StatusOK, challenge)
}

// Webhook handles webhook deliveries
// POST /webhook
func (c *Controller) Webhook(ctx *gin.Context) {
	requestID := ctx.GetString("request_id")

	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		utils.Zlog.Error("Failed to read webhook body", zap.String("request_id", requestID), zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON provided"})
		return
	}

	if c.appSecret != "" {
		if err := VerifySignature(ctx.GetHeader(SignatureHeader), body, c.appSecret); err != nil {
			utils.Zlog.Warn("Rejected webhook with bad signature",
				zap.String("request_id", requestID),
				zap.Error(err))
			ctx.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid signature"})
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.Zlog.Error("Failed to decode webhook payload",
			zap.String("request_id", requestID),
			zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON provided"})
		return
	}

	kind, event := c.adapter.Classify(&payload)
	switch kind {
	case EventStatus:
		utils.Zlog.Debug("Received a WhatsApp status update", zap.String("request_id", requestID))
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	case EventEcho:
		utils.Zlog.Info("Ignoring message from our own number",
			zap.String("request_id", requestID),
			zap.String("business_number", event.BusinessNumber))
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	case EventMalformed:
		utils.Zlog.Warn("Webhook message is missing metadata or sender", zap.String("request_id", requestID))
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON provided"})
		return
	case EventIgnored:
		utils.Zlog.Debug("No valid message to process", zap.String("request_id", requestID))
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	event.RequestID = requestID

	if c.async {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			if _, err := c.service.Process(context.Background(), event); err != nil {
				utils.Zlog.Error("Failed to process WhatsApp message",
					zap.String("request_id", requestID),
					zap.String("sender_id", event.SenderID),
					zap.Error(err))
			}
		}()
		return
	}

	reply, err := c.process(ctx.Request.Context(), event)
	if err != nil {
		utils.Zlog.Error("Failed to process WhatsApp message",
			zap.String("request_id", requestID),
			zap.String("sender_id", event.SenderID),
			zap.Error(err))
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "sent": reply.Sent})
}

// Wait blocks until every asynchronously dispatched delivery has been
// answered.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) process(ctx context.Context, event core.InboundEvent) (core.OutboundReply, error) {
	// The reply must still go out if Meta hangs up on a slow run.
	return c.service.Process(context.WithoutCancel(ctx), event)
}
