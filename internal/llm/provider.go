package llm

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the remote thread or run no longer exists.
var ErrNotFound = errors.New("remote resource not found")

// RunStatus mirrors the Assistants API run lifecycle
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether polling should stop at this status. requires_action
// counts as terminal because this relay never submits tool outputs.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return false
	}
	return true
}

// Run is the subset of a remote run this relay looks at
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	LastError string
}

// RunOptions configures a run of an assistant against a thread
type RunOptions struct {
	AssistantID            string
	AdditionalInstructions string
}

// AssistantAPI abstracts the remote conversation API. Thread ids are opaque
// handles to state owned by the provider.
type AssistantAPI interface {
	CreateThread(ctx context.Context) (threadID string, err error)
	// GetThread returns ErrNotFound when the thread was deleted remotely.
	GetThread(ctx context.Context, threadID string) error
	DeleteThread(ctx context.Context, threadID string) error
	AddUserMessage(ctx context.Context, threadID, text string) error
	CreateRun(ctx context.Context, threadID string, opts RunOptions) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	// LatestMessage returns the newest assistant message text on the thread.
	// found is false when the thread has no assistant text to offer.
	LatestMessage(ctx context.Context, threadID string) (text string, found bool, err error)
}
