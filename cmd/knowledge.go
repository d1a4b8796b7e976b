package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Conversly/assistant-relay/internal/knowledge"
)

var errNoKnowledgeFile = errors.New("KNOWLEDGE_FILE is not set")

func newKnowledgeCmd(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect or update the company information sent to the assistant",
	}

	cmd.AddCommand(
		newKnowledgeShowCmd(root),
		newKnowledgeSetCmd(root),
	)
	return cmd
}

func openKnowledge(root *rootParams) (*knowledge.Base, func(), error) {
	cfg, cleanup, err := loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	if cfg.KnowledgeFile == "" {
		cleanup()
		return nil, nil, errNoKnowledgeFile
	}

	kb, err := knowledge.Load(cfg.KnowledgeFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return kb, cleanup, nil
}

func printKnowledge(cmd *cobra.Command, kb *knowledge.Base) error {
	body, err := json.MarshalIndent(kb.CompanyInfo(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}

func newKnowledgeShowCmd(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current company information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, cleanup, err := openKnowledge(root)
			if err != nil {
				return err
			}
			defer cleanup()

			return printKnowledge(cmd, kb)
		},
	}
}

// parseFields turns key=value pairs into company info fields. Values that
// parse as JSON keep their JSON type, anything else is a string.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", arg)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		fields[key] = value
	}
	return fields, nil
}

func newKnowledgeSetCmd(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>=<value> [<key>=<value>...]",
		Short: "Merge fields into the company information and save the file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args)
			if err != nil {
				return err
			}

			kb, cleanup, err := openKnowledge(root)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := kb.Update(fields); err != nil {
				return fmt.Errorf("failed to update knowledge base: %w", err)
			}
			return printKnowledge(cmd, kb)
		},
	}
}
