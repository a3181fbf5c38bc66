package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Version can be set at build time with -ldflags "-X ...". When empty the
// module version from the build info is used.
var Version = ""

type buildInfo struct {
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
}

func readBuildInfo() buildInfo {
	info := buildInfo{Version: Version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if info.Version == "" {
			info.Version = "dev"
		}
		return info
	}

	info.GoVersion = bi.GoVersion
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
			if len(info.Revision) > 12 {
				info.Revision = info.Revision[:12]
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print nmbridge build information",
		// version needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			info := readBuildInfo()

			line := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B35")).Render("nmbridge") + " " +
				lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Render(info.Version)

			dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
			if info.Revision != "" {
				rev := info.Revision
				if info.Modified {
					rev += "+dirty"
				}
				line += " " + dim.Render(rev)
			}
			if info.GoVersion != "" {
				line += " " + dim.Render("("+info.GoVersion+")")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		},
	}
}
