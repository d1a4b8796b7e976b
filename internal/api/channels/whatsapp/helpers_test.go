package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/conversation"
	llmtest "github.com/Conversly/assistant-relay/internal/llm/test"
	"github.com/Conversly/assistant-relay/internal/loaders"
	"github.com/Conversly/assistant-relay/internal/tenant"
	"github.com/Conversly/assistant-relay/internal/threads"
)

var (
	tenantA = config.TenantConfig{
		BusinessNumber: "15550001111",
		Name:           "Acme",
		AccessToken:    "token-a",
		PhoneNumberID:  "PNID_A",
		AssistantID:    "asst_A",
	}
	tenantB = config.TenantConfig{
		BusinessNumber: "15550002222",
		Name:           "Bravo",
		AccessToken:    "token-b",
		PhoneNumberID:  "PNID_B",
		AssistantID:    "asst_B",
	}
)

type capturedSend struct {
	Path          string
	Authorization string
	Body          SendMessageRequest
}

// fakeGraph records send requests and answers with a fixed status
type fakeGraph struct {
	server *httptest.Server

	mu     sync.Mutex
	status int
	sends  []capturedSend
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	g := &fakeGraph{status: http.StatusOK}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body SendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&body)

		g.mu.Lock()
		g.sends = append(g.sends, capturedSend{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		status := g.status
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","contacts":[{"input":"x","wa_id":"x"}],"messages":[{"id":"wamid.out"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGraph) URL() string { return g.server.URL }

func (g *fakeGraph) SetStatus(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}

func (g *fakeGraph) Sends() []capturedSend {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]capturedSend(nil), g.sends...)
}

type harness struct {
	router *gin.Engine
	ctrl   *Controller
	api    *llmtest.AssistantAPIMock
	graph  *fakeGraph
	store  *threads.Store
}

func newHarness(t *testing.T, opts ControllerOptions) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Tenants:       []config.TenantConfig{tenantA, tenantB},
		DefaultTenant: &tenantA,
	}
	resolver := tenant.NewResolver(cfg)

	db, err := loaders.NewSQLiteClient(filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	api := &llmtest.AssistantAPIMock{}
	store := threads.NewStore(db, api)
	conv := conversation.NewClient(api, nil, conversation.Options{
		PollInterval: time.Millisecond,
		RunTimeout:   time.Second,
	})

	graph := newFakeGraph(t)
	sender := NewSender(graph.URL(), "v18.0", time.Second)

	service, err := NewService(context.Background(), resolver, store, conv, sender)
	require.NoError(t, err)

	if opts.VerifyToken == "" {
		opts.VerifyToken = "verify-me"
	}

	ctrl := NewController(NewAdapter(), service, opts)
	router := gin.New()
	RegisterRoutes(router, ctrl)

	return &harness{router: router, ctrl: ctrl, api: api, graph: graph, store: store}
}

func textPayload(displayNumber, phoneNumberID, from, body string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "WABA_ID",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": %q, "phone_number_id": %q},
					"contacts": [{"profile": {"name": "Alice"}, "wa_id": %q}],
					"messages": [{
						"from": %q,
						"id": "wamid.in",
						"timestamp": "1700000000",
						"type": "text",
						"text": {"body": %q}
					}]
				}
			}]
		}]
	}`, displayNumber, phoneNumberID, from, from, body)
}

func mediaPayload(messageType string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "WABA_ID",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550002222", "phone_number_id": "PNID_B"},
					"contacts": [{"profile": {"name": "Alice"}, "wa_id": "447700900123"}],
					"messages": [{
						"from": "447700900123",
						"id": "wamid.media",
						"timestamp": "1700000000",
						"type": %q,
						%q: {"id": "MEDIA_ID", "mime_type": "application/octet-stream"}
					}]
				}
			}]
		}]
	}`, messageType, messageType)
}

func statusPayload() string {
	return `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "WABA_ID",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550002222", "phone_number_id": "PNID_B"},
					"statuses": [{"id": "wamid.out", "status": "delivered", "timestamp": "1700000001", "recipient_id": "447700900123"}]
				}
			}]
		}]
	}`
}
