package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/llm"
	"github.com/Conversly/assistant-relay/internal/loaders"
	"github.com/Conversly/assistant-relay/internal/utils"
)

var ErrNotFound = errors.New("no thread for user")

// Record is a stored user -> thread mapping
type Record struct {
	UserID    string
	ThreadID  string
	CreatedAt time.Time
}

// Store keeps one remote thread per end user so conversations carry context
// across messages. Two concurrent first messages from the same user may both
// create a remote thread; the later write wins.
type Store struct {
	db  *loaders.SQLiteClient
	api llm.AssistantAPI
}

func NewStore(db *loaders.SQLiteClient, api llm.AssistantAPI) *Store {
	return &Store{db: db, api: api}
}

// GetOrCreate returns the user's thread id, creating and persisting a new
// remote thread when there is no mapping or the mapped thread is gone.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (string, error) {
	row, err := s.db.GetThread(ctx, userID)
	switch {
	case err == nil:
		err = s.api.GetThread(ctx, row.ThreadID)
		if err == nil {
			utils.Zlog.Debug("Reusing thread",
				zap.String("user_id", userID),
				zap.String("thread_id", row.ThreadID))
			return row.ThreadID, nil
		}
		if !errors.Is(err, llm.ErrNotFound) {
			return "", fmt.Errorf("checking thread %s: %w", row.ThreadID, err)
		}
		utils.Zlog.Warn("Stored thread no longer exists, creating a new one",
			zap.String("user_id", userID),
			zap.String("stale_thread_id", row.ThreadID))
		if _, err := s.db.DeleteThread(ctx, userID); err != nil {
			return "", err
		}
	case !errors.Is(err, loaders.ErrThreadNotFound):
		return "", err
	}

	threadID, err := s.api.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("creating thread for user %s: %w", userID, err)
	}
	if err := s.db.PutThread(ctx, userID, threadID); err != nil {
		return "", err
	}

	utils.Zlog.Info("Created new thread",
		zap.String("user_id", userID),
		zap.String("thread_id", threadID))
	return threadID, nil
}

// Get returns the stored mapping without contacting the remote API.
func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	row, err := s.db.GetThread(ctx, userID)
	if errors.Is(err, loaders.ErrThreadNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record(row), nil
}

// Remove forgets the user's thread so the next message starts a fresh
// conversation. The remote thread is deleted when deleteRemote is set; a
// remote failure is logged and does not keep the mapping alive.
func (s *Store) Remove(ctx context.Context, userID string, deleteRemote bool) (bool, error) {
	if deleteRemote {
		if rec, err := s.Get(ctx, userID); err == nil {
			if err := s.api.DeleteThread(ctx, rec.ThreadID); err != nil && !errors.Is(err, llm.ErrNotFound) {
				utils.Zlog.Warn("Failed to delete remote thread",
					zap.String("user_id", userID),
					zap.String("thread_id", rec.ThreadID),
					zap.Error(err))
			}
		}
	}

	existed, err := s.db.DeleteThread(ctx, userID)
	if err != nil {
		return false, err
	}
	if existed {
		utils.Zlog.Info("Thread mapping removed", zap.String("user_id", userID))
	}
	return existed, nil
}

// Count returns the number of users with a stored thread.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.CountThreads(ctx)
}

// Ping checks the backing file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
