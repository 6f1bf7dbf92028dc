package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/archive"
	"github.com/pithecene-io/concierge/cli/render"
	"github.com/pithecene-io/concierge/cli/tui"
)

// InspectCommand returns the inspect command.
// Without an argument it lists archived conversations; with one it shows
// that conversation's latest transcript.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect archived conversations",
		ArgsUsage: "[conversation-id]",
		Flags:     concat(OutputFlags(), ConfigFlags()),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if !cfg.Archive.Enabled() {
		return cli.Exit("no archive configured (--archive-path or archive.path)", exitUsage)
	}

	a, err := archive.Open(c.Context, archive.Options{
		Backend:      cfg.Archive.Backend,
		Path:         cfg.Archive.Path,
		Dataset:      cfg.Archive.Dataset,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.S3PathStyle,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.NArg() == 0 {
		list, err := a.List(c.Context)
		if err != nil {
			return cli.Exit(fmt.Sprintf("list archive: %v", err), exitBackend)
		}
		if c.Bool("tui") {
			return r.RenderTUI(tui.ViewConversations, list)
		}
		return r.Render(list)
	}

	conv, err := a.Load(c.Context, c.Args().First())
	switch {
	case errors.Is(err, archive.ErrConversationNotFound), errors.Is(err, archive.ErrInvalidConversationID):
		return cli.Exit(err.Error(), exitUsage)
	case err != nil:
		return cli.Exit(fmt.Sprintf("load conversation: %v", err), exitBackend)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewConversation, conv)
	}
	if r.Format() == render.FormatTable {
		return r.Transcript(conv)
	}
	return r.Render(conv)
}
