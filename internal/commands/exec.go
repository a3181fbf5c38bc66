package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/agent/tools"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/llm"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// errToolFailed makes a failed tool result exit non-zero after its JSON
// has been printed.
var errToolFailed = errors.New("tool call failed")

func newExecCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "exec <tool> [json-arguments] | exec --format openai|gemini <payload|->",
		Short: "Run tool calls against the local workspace",
		Long: "Loads the workspace from disk, runs tool calls and prints the result as JSON.\n" +
			"With --format the single argument is a provider tool-call payload (\"-\" reads stdin)\n" +
			"and the output is the provider's reply. Edits and creations only affect the in-memory file set.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engineCfg, err := opts.engineConfig()
			if err != nil {
				return err
			}
			engine, err := tools.New(engineCfg)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if format != "" {
				return answer(cmd, engine, format, args, enc)
			}

			call := types.ToolCall{
				ID:        types.GenerateToolCallID(),
				Name:      args[0],
				Arguments: map[string]any{},
			}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &call.Arguments); err != nil {
					return fmt.Errorf("parse arguments: %w", err)
				}
			}

			result := engine.Execute(cmd.Context(), call)
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if !result.Success {
				return errToolFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Treat the argument as a provider tool-call payload (native, openai, gemini)")
	return cmd
}

func answer(cmd *cobra.Command, engine *tools.Engine, format string, args []string, enc *json.Encoder) error {
	f, err := llm.ParseFormat(format)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("--format takes exactly one payload argument")
	}

	payload := []byte(args[0])
	if args[0] == "-" {
		if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
	}

	failed := false
	exec := func(ctx context.Context, call types.ToolCall) types.ToolResult {
		res := engine.Execute(ctx, call)
		failed = failed || !res.Success
		return res
	}
	reply, err := llm.Answer(cmd.Context(), f, payload, exec)
	if err != nil {
		return err
	}
	if err := enc.Encode(reply); err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if failed {
		return errToolFailed
	}
	return nil
}
