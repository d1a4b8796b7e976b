package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/utils"
)

type rootParams struct {
	EnvFile string
}

func newRootCmd() *cobra.Command {
	params := &rootParams{}

	cmd := &cobra.Command{
		Use:           "assistant-relay",
		Short:         "Relay WhatsApp Business messages to OpenAI assistants",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), params)
		},
	}

	cmd.PersistentFlags().StringVar(&params.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newServeCmd(params),
		newThreadsCmd(params),
		newKnowledgeCmd(params),
	)
	return cmd
}

// loadConfig reads the env file (if any), the environment and the tenant
// table, then starts the logger. The returned func flushes the logger.
func loadConfig(params *rootParams) (*config.Config, func(), error) {
	if err := loadEnvFile(params.EnvFile); err != nil {
		fmt.Println("Warning: Error loading .env file", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	cleanup := utils.InitLogger(cfg)
	return cfg, cleanup, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
