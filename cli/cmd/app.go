package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/types"
)

// NewApp assembles the concierge CLI.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "concierge",
		Usage:   "Streaming shopping-assistant client",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Commands: []*cli.Command{
			ChatCommand(),
			ReplayCommand(),
			InspectCommand(),
			VersionCommand(commit),
		},
	}
}
