package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/agent/tools"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/workspace"
)

// options are resolved before any subcommand runs.
type options struct {
	configPath string
	logLevel   string
	root       string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the root command with shared flags.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "nmbridge",
		Short:         "Agent control plane for a running NeuralMap instance",
		Long:          "Bridges a running NeuralMap visualizer to an agent tool engine over a reconnecting websocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "Override the workspace root directory")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newToolsCmd(opts))
	cmd.AddCommand(newExecCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(o.logLevel)
	}
	if o.root != "" {
		cfg.Workspace.Root = o.root
	}

	o.cfg = cfg
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(o.logger)
	return nil
}

// engineConfig loads the workspace and assembles the tool engine
// configuration shared by serve and exec.
func (o *options) engineConfig() (tools.Config, error) {
	engineCfg := tools.Config{
		ProjectSummary: o.cfg.Workspace.Summary,
		Policy:         &o.cfg.Security,
		Sink:           tools.LogSink{Log: o.logger},
		Logger:         o.logger,
	}
	if o.cfg.Security.ExecuteShell {
		engineCfg.Runner = tools.ShellRunner{Timeout: o.cfg.Security.CommandTimeout}
	}

	if o.cfg.Workspace.Root == "" {
		return engineCfg, nil
	}
	loader, err := workspace.NewLoader(o.cfg.Workspace, o.logger)
	if err != nil {
		return tools.Config{}, err
	}
	files, root, err := loader.Load(o.cfg.Workspace.Root)
	if err != nil {
		return tools.Config{}, err
	}
	engineCfg.Files = files
	engineCfg.ProjectRootPath = root
	return engineCfg, nil
}
