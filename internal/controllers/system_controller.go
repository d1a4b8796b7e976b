package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/assistant-relay/internal/config"
)

const Version = "1.0.0"

// TenantLister reports the configured business numbers
type TenantLister interface {
	BusinessNumbers() []string
}

// ThreadCounter reports how many users have a conversation thread
type ThreadCounter interface {
	Count(ctx context.Context) (int, error)
}

type SystemController struct {
	cfg     *config.Config
	tenants TenantLister
	threads ThreadCounter
}

func NewSystemController(cfg *config.Config, tenants TenantLister, threads ThreadCounter) *SystemController {
	return &SystemController{cfg: cfg, tenants: tenants, threads: threads}
}

// Status godoc
// @Summary Get system status
// @Description Get current system status information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/status [get]
func (s *SystemController) Status(c *gin.Context) {
	resp := gin.H{
		"service":          s.cfg.ServiceName,
		"version":          Version,
		"environment":      s.cfg.Environment,
		"hostname":         s.cfg.Hostname,
		"tenants":          len(s.tenants.BusinessNumbers()),
		"business_numbers": s.tenants.BusinessNumbers(),
		"timestamp":        time.Now().UTC(),
	}

	if n, err := s.threads.Count(c.Request.Context()); err == nil {
		resp["threads"] = n
	}

	c.JSON(http.StatusOK, resp)
}
