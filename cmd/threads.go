package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Conversly/assistant-relay/internal/llm"
	"github.com/Conversly/assistant-relay/internal/loaders"
	"github.com/Conversly/assistant-relay/internal/threads"
)

func newThreadsCmd(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect or reset stored conversation threads",
	}

	cmd.AddCommand(
		newThreadsShowCmd(root),
		newThreadsResetCmd(root),
	)
	return cmd
}

func openStore(root *rootParams) (*threads.Store, func(), error) {
	cfg, cleanup, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}

	db, err := loaders.NewSQLiteClient(cfg.ThreadDBPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	api := llm.NewOpenAIAssistants(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	return threads.NewStore(db, api), func() {
		_ = db.Close()
		cleanup()
	}, nil
}

func newThreadsShowCmd(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the thread stored for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(root)
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, threads.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "no thread stored for %s\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.UserID, rec.ThreadID, rec.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newThreadsResetCmd(root *rootParams) *cobra.Command {
	params := &struct {
		Remote bool
	}{}

	cmd := &cobra.Command{
		Use:   "reset <user-id> [<user-id>...]",
		Short: "Forget users' threads so their next message starts a new conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(root)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, userID := range args {
				existed, err := store.Remove(cmd.Context(), userID, params.Remote)
				if err != nil {
					return fmt.Errorf("failed to reset %s: %w", userID, err)
				}
				if existed {
					fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", userID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "no thread stored for %s\n", userID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&params.Remote, "remote", false, "also delete the thread from the Assistants API")
	return cmd
}
