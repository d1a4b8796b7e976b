package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Conversly/assistant-relay/internal/conversation"
	"github.com/Conversly/assistant-relay/internal/llm"
	llmtest "github.com/Conversly/assistant-relay/internal/llm/test"
)

func (h *harness) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) post(body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func expectCompletedRun(api *llmtest.AssistantAPIMock, threadID, assistantID, userText, reply string) {
	api.On("AddUserMessage", mock.Anything, threadID, userText).Return(nil)
	api.On("CreateRun", mock.Anything, threadID, llm.RunOptions{AssistantID: assistantID}).
		Return(llm.Run{ID: "run_1", ThreadID: threadID, Status: llm.RunStatusQueued}, nil)
	api.On("GetRun", mock.Anything, threadID, "run_1").
		Return(llm.Run{ID: "run_1", ThreadID: threadID, Status: llm.RunStatusCompleted}, nil)
	api.On("LatestMessage", mock.Anything, threadID).Return(reply, true, nil)
}

func TestVerifyWebhook(t *testing.T) {
	h := newHarness(t, ControllerOptions{VerifyToken: "verify-me"})

	w := h.get("/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1158201444", w.Body.String())

	w = h.get("/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Verification failed"}, decodeBody(t, w))

	w = h.get("/webhook?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.get("/webhook?hub.challenge=1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Missing parameters"}, decodeBody(t, w))

	w = h.get("/webhook?hub.mode=subscribe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_MalformedJSON(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	w := h.post(`{"object": "whatsapp_business_account", "entry": [`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Invalid JSON provided"}, decodeBody(t, w))
}

func TestWebhook_MissingKeysIsBadRequest(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	w := h.post(`{"entry":[{"changes":[{"value":{"messages":[{"from":"447700900123","type":"text","text":{"body":"hi"}}]}}]}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Invalid JSON provided"}, decodeBody(t, w))
	assert.Empty(t, h.graph.Sends())
	assert.Empty(t, h.api.Calls)
}

func TestWebhook_StatusUpdateSendsNothing(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	w := h.post(statusPayload(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))
	assert.Empty(t, h.graph.Sends())
	h.api.AssertNotCalled(t, "CreateThread", mock.Anything)
}

func TestWebhook_EchoIsDropped(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	w := h.post(textPayload("+15550002222", "PNID_B", "15550002222", "our own outbound"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.graph.Sends())
	assert.Empty(t, h.api.Calls)
}

func TestWebhook_UnrecognizedIsAcknowledged(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	w := h.post(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"account_update","value":{}}]}]}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))
	assert.Empty(t, h.graph.Sends())
}

func TestWebhook_TextMessageEndToEnd(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	h.api.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	expectCompletedRun(h.api, "thread_1", "asst_B", "What are your hours?", "Hello 【citation】 **world**")

	w := h.post(textPayload("+1 555 000 2222", "PNID_B", "447700900123", "What are your hours?"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok", "sent": true}, decodeBody(t, w))

	sends := h.graph.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "/v18.0/PNID_B/messages", sends[0].Path)
	assert.Equal(t, "Bearer token-b", sends[0].Authorization)
	assert.Equal(t, "447700900123", sends[0].Body.To)
	assert.Equal(t, "Hello  *world*", sends[0].Body.Text.Body)

	rec, err := h.store.Get(context.Background(), "447700900123")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", rec.ThreadID)
}

func TestWebhook_ThreadContinuity(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	h.api.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	h.api.On("GetThread", mock.Anything, "thread_1").Return(nil)
	expectCompletedRun(h.api, "thread_1", "asst_B", "first", "one")
	expectCompletedRun(h.api, "thread_1", "asst_B", "second", "two")

	h.post(textPayload("15550002222", "PNID_B", "447700900123", "first"), nil)
	h.post(textPayload("15550002222", "PNID_B", "447700900123", "second"), nil)

	h.api.AssertNumberOfCalls(t, "CreateThread", 1)
	h.api.AssertCalled(t, "AddUserMessage", mock.Anything, "thread_1", "second")
	assert.Len(t, h.graph.Sends(), 2)
}

func TestWebhook_UnknownNumberUsesDefaultTenant(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	h.api.On("CreateThread", mock.Anything).Return("thread_9", nil).Once()
	expectCompletedRun(h.api, "thread_9", "asst_A", "hi", "hello")

	w := h.post(textPayload("19990000000", "PNID_UNKNOWN", "447700900999", "hi"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	sends := h.graph.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "/v18.0/PNID_A/messages", sends[0].Path)
	assert.Equal(t, "Bearer token-a", sends[0].Authorization)
}

func TestWebhook_AssistantFailureStillReplies(t *testing.T) {
	h := newHarness(t, ControllerOptions{})

	h.api.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	h.api.On("AddUserMessage", mock.Anything, "thread_1", "hi").Return(nil)
	h.api.On("CreateRun", mock.Anything, "thread_1", mock.Anything).
		Return(llm.Run{ID: "run_1", ThreadID: "thread_1", Status: llm.RunStatusQueued}, nil)
	h.api.On("GetRun", mock.Anything, "thread_1", "run_1").
		Return(llm.Run{ID: "run_1", ThreadID: "thread_1", Status: llm.RunStatusFailed}, nil)

	w := h.post(textPayload("15550002222", "PNID_B", "447700900123", "hi"), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	sends := h.graph.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, conversation.ErrorReply, sends[0].Body.Text.Body)
}

func TestWebhook_SendFailureIsNot5xx(t *testing.T) {
	h := newHarness(t, ControllerOptions{})
	h.graph.SetStatus(http.StatusUnauthorized)

	h.api.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	expectCompletedRun(h.api, "thread_1", "asst_B", "hi", "hello")

	w := h.post(textPayload("15550002222", "PNID_B", "447700900123", "hi"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok", "sent": false}, decodeBody(t, w))
}

func TestWebhook_NonTextMessagesGetCannedReplies(t *testing.T) {
	tests := map[string]string{
		"image":    ImageReply,
		"audio":    AudioReply,
		"document": DocumentReply,
		"sticker":  UnsupportedReply,
	}

	for messageType, want := range tests {
		t.Run(messageType, func(t *testing.T) {
			h := newHarness(t, ControllerOptions{})

			w := h.post(mediaPayload(messageType), nil)
			assert.Equal(t, http.StatusOK, w.Code)

			sends := h.graph.Sends()
			require.Len(t, sends, 1)
			assert.Equal(t, want, sends[0].Body.Text.Body)
			assert.Empty(t, h.api.Calls, "assistant is not consulted")
		})
	}
}

func TestWebhook_Signature(t *testing.T) {
	h := newHarness(t, ControllerOptions{AppSecret: "app-secret"})
	body := statusPayload()

	w := h.post(body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.post(body, map[string]string{SignatureHeader: "sha256=" + Sign([]byte(body), "wrong")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.post(body, map[string]string{SignatureHeader: "sha256=" + Sign([]byte(body), "app-secret")})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_AsyncDispatch(t *testing.T) {
	h := newHarness(t, ControllerOptions{Async: true})

	h.api.On("CreateThread", mock.Anything).Return("thread_1", nil).Once()
	expectCompletedRun(h.api, "thread_1", "asst_B", "hi", "**hello**")

	w := h.post(textPayload("15550002222", "PNID_B", "447700900123", "hi"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, w))

	assert.Eventually(t, func() bool { return len(h.graph.Sends()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "*hello*", h.graph.Sends()[0].Body.Text.Body)
}

func TestController_WaitDrainsAsyncDeliveries(t *testing.T) {
	h := newHarness(t, ControllerOptions{Async: true})

	release := make(chan struct{})
	h.api.On("CreateThread", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return("thread_1", nil).Once()
	expectCompletedRun(h.api, "thread_1", "asst_B", "hi", "hello")

	w := h.post(textPayload("15550002222", "PNID_B", "447700900123", "hi"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.graph.Sends())

	done := make(chan struct{})
	go func() {
		h.ctrl.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Len(t, h.graph.Sends(), 1)
}
