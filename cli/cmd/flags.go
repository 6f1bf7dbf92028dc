// Package cmd provides CLI commands for the concierge binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/cli/config"
)

// Exit codes.
const (
	exitSuccess = 0
	exitUsage   = 1 // bad flags, config or arguments
	exitBackend = 2 // agent or stream failure
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode (inspect only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect only)",
	}
)

// OutputFlags returns the shared output flags. --tui is accepted
// everywhere so unsupported commands can reject it explicitly.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}

// ConfigFlags returns the flags that override concierge.yaml.
func ConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file",
			Value:   config.DefaultPath,
			EnvVars: []string{"CONCIERGE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (default warn)",
		},
		// Archive
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Transcript archive backend: fs, s3 or memory",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset id",
		},
		&cli.StringFlag{
			Name:  "archive-s3-region",
			Usage: "AWS region for the s3 archive (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-s3-endpoint",
			Usage: "Custom S3 endpoint (R2, MinIO)",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
		// Adapter
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Turn notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint (webhook URL or redis:// URL)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel or stream key",
		},
		&cli.StringFlag{
			Name:  "adapter-mode",
			Usage: "Redis delivery mode: publish or stream",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
		},
	}
}

// BackendFlags returns the agent connection flags.
func BackendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Agent API root, e.g. https://shop.example.com/api",
			EnvVars: []string{"CONCIERGE_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for the agent API",
			EnvVars: []string{"CONCIERGE_TOKEN"},
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Preferred stream framing: sse, msgpack, jsonl",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for non-streaming requests",
		},
		&cli.DurationFlag{
			Name:  "idle-timeout",
			Usage: "Maximum gap between stream frames",
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
