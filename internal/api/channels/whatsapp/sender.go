package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/utils"
)

const (
	DefaultGraphAPIBaseURL = "https://graph.facebook.com"
	DefaultGraphAPIVersion = "v18.0"
	DefaultSendTimeout     = 10 * time.Second
)

// Sender posts text replies through the Graph API
type Sender struct {
	baseURL string
	version string
	client  *http.Client
}

func NewSender(baseURL, version string, timeout time.Duration) *Sender {
	if baseURL == "" {
		baseURL = DefaultGraphAPIBaseURL
	}
	if version == "" {
		version = DefaultGraphAPIVersion
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send delivers text to the recipient using the tenant's credentials. It
// reports success only for HTTP 200 and never retries.
func (s *Sender) Send(ctx context.Context, to, text string, tenant config.TenantConfig) bool {
	log := utils.Zlog.With(
		zap.String("to", to),
		zap.String("business_number", tenant.BusinessNumber),
		zap.String("phone_number_id", tenant.PhoneNumberID))

	msgID, err := s.send(ctx, to, text, tenant)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Error("Timeout occurred while sending WhatsApp message", zap.Error(err))
		} else {
			log.Error("Failed to send WhatsApp message", zap.Error(err))
		}
		return false
	}

	log.Info("Message sent", zap.String("message_id", msgID))
	return true
}

func (s *Sender) send(ctx context.Context, to, text string, tenant config.TenantConfig) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.version, tenant.PhoneNumberID)

	reqBody := &SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text: &TextContent{
			PreviewURL: false,
			Body:       text,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tenant.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var msgResp SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil || len(msgResp.Messages) == 0 {
		// 200 is what counts; the id is only for the log line
		return "", nil
	}
	return msgResp.Messages[0].ID, nil
}
