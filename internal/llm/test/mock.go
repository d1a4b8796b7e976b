package llmtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Conversly/assistant-relay/internal/llm"
)

type AssistantAPIMock struct {
	mock.Mock
}

func (m *AssistantAPIMock) CreateThread(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *AssistantAPIMock) GetThread(ctx context.Context, threadID string) error {
	args := m.Called(ctx, threadID)
	return args.Error(0)
}

func (m *AssistantAPIMock) DeleteThread(ctx context.Context, threadID string) error {
	args := m.Called(ctx, threadID)
	return args.Error(0)
}

func (m *AssistantAPIMock) AddUserMessage(ctx context.Context, threadID, text string) error {
	args := m.Called(ctx, threadID, text)
	return args.Error(0)
}

func (m *AssistantAPIMock) CreateRun(ctx context.Context, threadID string, opts llm.RunOptions) (llm.Run, error) {
	args := m.Called(ctx, threadID, opts)
	return args.Get(0).(llm.Run), args.Error(1)
}

func (m *AssistantAPIMock) GetRun(ctx context.Context, threadID, runID string) (llm.Run, error) {
	args := m.Called(ctx, threadID, runID)
	return args.Get(0).(llm.Run), args.Error(1)
}

func (m *AssistantAPIMock) LatestMessage(ctx context.Context, threadID string) (string, bool, error) {
	args := m.Called(ctx, threadID)
	return args.String(0), args.Bool(1), args.Error(2)
}

var (
	_ llm.AssistantAPI = (*AssistantAPIMock)(nil)
)
