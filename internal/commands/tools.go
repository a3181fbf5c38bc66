package commands

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/agent/tools"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/llm"
)

var (
	toolNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	toolMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func newToolsCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		Long:  "Lists the tool catalog, or prints it as provider function declarations with --format openai|gemini|native.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := tools.New(tools.Config{Policy: &opts.cfg.Security, Logger: opts.logger})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format != "" {
				f, err := llm.ParseFormat(format)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(llm.Catalog(f, engine.Tools()))
			}

			for _, t := range engine.Tools() {
				meta := t.Metadata["category"]
				if meta != "" {
					meta = toolMetaStyle.Render("[" + meta + "]")
				}
				fmt.Fprintf(out, "%s %s\n  %s\n", toolNameStyle.Render(t.Name), meta, t.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Print JSON in a provider format (native, openai, gemini)")
	return cmd
}
