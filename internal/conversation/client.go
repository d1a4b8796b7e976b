package conversation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/llm"
	"github.com/Conversly/assistant-relay/internal/utils"
)

// Replies sent to the user when the assistant cannot answer.
const (
	ErrorReply    = "I apologize, but I encountered an error while processing your request."
	TimeoutReply  = "I apologize, but generating a response is taking too long. Please try again in a moment."
	NoAnswerReply = "I apologize, but I couldn't generate a response at this time."
)

const (
	DefaultPollInterval = time.Second
	DefaultRunTimeout   = 60 * time.Second
)

// Outcome classifies how waiting for a run ended
type Outcome int

const (
	RunCompleted Outcome = iota
	RunFailed
	RunTimedOut
)

func (o Outcome) String() string {
	switch o {
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// RunResult is what WaitForRun observed. Status is the last remote status seen.
type RunResult struct {
	Outcome   Outcome
	Status    llm.RunStatus
	LastError string
}

// InstructionSource supplies per-run additional instructions.
type InstructionSource interface {
	Instructions() string
}

type Options struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// Client drives one assistant turn: append, run, wait, read.
type Client struct {
	api          llm.AssistantAPI
	instructions InstructionSource
	pollInterval time.Duration
	runTimeout   time.Duration
}

// NewClient builds a client. instructions may be nil.
func NewClient(api llm.AssistantAPI, instructions InstructionSource, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	return &Client{
		api:          api,
		instructions: instructions,
		pollInterval: opts.PollInterval,
		runTimeout:   opts.RunTimeout,
	}
}

// GenerateReply appends text to the thread, runs the assistant and returns
// its newest message. Failures are logged and turned into one of the fixed
// replies, so the result is never empty.
func (c *Client) GenerateReply(ctx context.Context, threadID, assistantID, text string) string {
	log := utils.Zlog.With(
		zap.String("thread_id", threadID),
		zap.String("assistant_id", assistantID))

	if err := c.api.AddUserMessage(ctx, threadID, text); err != nil {
		log.Error("Failed to add user message", zap.Error(err))
		return ErrorReply
	}

	opts := llm.RunOptions{AssistantID: assistantID}
	if c.instructions != nil {
		opts.AdditionalInstructions = c.instructions.Instructions()
	}

	run, err := c.api.CreateRun(ctx, threadID, opts)
	if err != nil {
		log.Error("Failed to start run", zap.Error(err))
		return ErrorReply
	}

	res, err := c.WaitForRun(ctx, threadID, run.ID)
	if err != nil {
		log.Error("Failed while waiting for run", zap.String("run_id", run.ID), zap.Error(err))
		return ErrorReply
	}

	switch res.Outcome {
	case RunTimedOut:
		log.Warn("Run did not finish in time",
			zap.String("run_id", run.ID),
			zap.String("status", string(res.Status)),
			zap.Duration("timeout", c.runTimeout))
		return TimeoutReply
	case RunFailed:
		log.Error("Run ended without completing",
			zap.String("run_id", run.ID),
			zap.String("status", string(res.Status)),
			zap.String("last_error", res.LastError))
		return ErrorReply
	}

	reply, found, err := c.api.LatestMessage(ctx, threadID)
	if err != nil {
		log.Error("Failed to read assistant reply", zap.Error(err))
		return ErrorReply
	}
	if !found {
		log.Warn("Run completed without an assistant message", zap.String("run_id", run.ID))
		return NoAnswerReply
	}

	log.Info("Generated reply", zap.String("run_id", run.ID), zap.Int("length", len(reply)))
	return reply
}

// WaitForRun polls the run every poll interval until it reaches a terminal
// status or the run timeout elapses. The timeout also bounds a GetRun call
// that hangs. The remote run is left alone on timeout. An error is returned
// only for remote failures or ctx cancellation.
func (c *Client) WaitForRun(ctx context.Context, threadID, runID string) (RunResult, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var status llm.RunStatus
	for {
		run, err := c.api.GetRun(pollCtx, threadID, runID)
		if err != nil {
			if ctx.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
				return RunResult{Outcome: RunTimedOut, Status: status}, nil
			}
			return RunResult{}, err
		}
		status = run.Status

		if run.Status.Terminal() {
			res := RunResult{Outcome: RunFailed, Status: run.Status, LastError: run.LastError}
			if run.Status == llm.RunStatusCompleted {
				res.Outcome = RunCompleted
			}
			return res, nil
		}

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return RunResult{}, err
			}
			return RunResult{Outcome: RunTimedOut, Status: run.Status}, nil
		case <-ticker.C:
		}
	}
}
