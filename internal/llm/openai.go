package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/utils"
)

// OpenAIAssistants implements AssistantAPI on the OpenAI Assistants v2 API.
type OpenAIAssistants struct {
	client *openai.Client
}

var _ AssistantAPI = (*OpenAIAssistants)(nil)

// NewOpenAIAssistants creates the client. An empty baseURL keeps the SDK default.
func NewOpenAIAssistants(apiKey, baseURL string, opts ...option.RequestOption) *OpenAIAssistants {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIAssistants{client: openai.NewClient(reqOpts...)}
}

func (a *OpenAIAssistants) CreateThread(ctx context.Context) (string, error) {
	thread, err := a.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", mapError(err))
	}

	utils.Zlog.Debug("Created assistant thread", zap.String("thread_id", thread.ID))
	return thread.ID, nil
}

func (a *OpenAIAssistants) GetThread(ctx context.Context, threadID string) error {
	if _, err := a.client.Beta.Threads.Get(ctx, threadID); err != nil {
		return fmt.Errorf("failed to retrieve thread %s: %w", threadID, mapError(err))
	}
	return nil
}

func (a *OpenAIAssistants) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := a.client.Beta.Threads.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, mapError(err))
	}
	return nil
}

func (a *OpenAIAssistants) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := a.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.F(openai.BetaThreadMessageNewParamsRoleUser),
		Content: openai.F([]openai.MessageContentPartParamUnion{
			openai.TextContentBlockParam{
				Type: openai.F(openai.TextContentBlockParamTypeText),
				Text: openai.String(text),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to add message to thread %s: %w", threadID, mapError(err))
	}
	return nil
}

func (a *OpenAIAssistants) CreateRun(ctx context.Context, threadID string, opts RunOptions) (Run, error) {
	params := openai.BetaThreadRunNewParams{
		AssistantID: openai.String(opts.AssistantID),
	}
	if opts.AdditionalInstructions != "" {
		params.AdditionalInstructions = openai.String(opts.AdditionalInstructions)
	}

	run, err := a.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return Run{}, fmt.Errorf("failed to start run on thread %s: %w", threadID, mapError(err))
	}
	return convertRun(run), nil
}

func (a *OpenAIAssistants) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := a.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to retrieve run %s: %w", runID, mapError(err))
	}
	return convertRun(run), nil
}

func (a *OpenAIAssistants) LatestMessage(ctx context.Context, threadID string) (string, bool, error) {
	page, err := a.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.F(openai.BetaThreadMessageListParamsOrderDesc),
		Limit: openai.Int(1),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to list messages on thread %s: %w", threadID, mapError(err))
	}

	if len(page.Data) == 0 {
		return "", false, nil
	}

	msg := page.Data[0]
	if string(msg.Role) != "assistant" {
		return "", false, nil
	}
	for _, content := range msg.Content {
		if string(content.Type) == "text" && content.Text.Value != "" {
			return content.Text.Value, true, nil
		}
	}
	return "", false, nil
}

func convertRun(run *openai.Run) Run {
	return Run{
		ID:        run.ID,
		ThreadID:  run.ThreadID,
		Status:    RunStatus(run.Status),
		LastError: run.LastError.Message,
	}
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
