package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/cli/render"
	"github.com/pithecene-io/concierge/iox"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/store"
	"github.com/pithecene-io/concierge/stream"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// defaultReplayPrompt is the user message a replayed reply answers.
const defaultReplayPrompt = "(replay)"

// ReplayResult is the output of the replay command.
type ReplayResult struct {
	ConversationID string           `json:"conversation_id" yaml:"conversation_id"`
	Outcome        string           `json:"outcome" yaml:"outcome"`
	Reason         string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Tools          []string         `json:"tools" yaml:"tools"`
	ArtifactKinds  []string         `json:"artifact_kinds" yaml:"artifact_kinds"`
	Frames         int              `json:"frames" yaml:"frames"`
	Messages       []types.Message  `json:"messages" yaml:"messages"`
	Metrics        metrics.Snapshot `json:"metrics" yaml:"metrics"`
}

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Fold a recorded frame file through the conversation store",
		ArgsUsage: "<frames-file>",
		Flags: concat(OutputFlags(), ConfigFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "input-format",
				Usage: "Recording framing: jsonl, msgpack, sse (default from extension)",
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "User message the recording answers",
				Value:   defaultReplayPrompt,
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "Maximum gap between stream frames",
			},
		}),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for replay command", exitUsage)
	}
	if c.NArg() < 1 {
		return cli.Exit("frames-file required", exitUsage)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	var format transport.Format
	if name := c.String("input-format"); name != "" {
		if format, err = transport.ParseFormat(name); err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
	}
	client, err := agent.NewReplayClient(path, format)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx := c.Context
	sess, err := newSession(ctx, cfg, string(agent.FormatFromPath(path)), c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardErr(sess.Close)

	var result store.TurnResult
	st, err := store.New(sess.storeConfig(ctx, client, noticePrinter(c.App.ErrWriter), func(tr store.TurnResult) {
		result = tr
	}))
	if err != nil {
		return err
	}

	if err := st.InitChat(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("replay: %v", err), exitBackend)
	}
	sendErr := st.SendMessageStreaming(ctx, c.String("message"), store.DefaultSendOptions())

	conv := st.Snapshot().Conversation
	if r.Format() == render.FormatTable {
		if err := r.Transcript(conv); err != nil {
			return err
		}
		fmt.Fprintf(r.Writer(), "\noutcome=%s frames=%d tools=%v\n", result.Outcome, result.Frames, result.Tools)
	} else if err := r.Render(replayResult(conv, result, sess.collector.Snapshot())); err != nil {
		return err
	}

	if sendErr != nil || (result.Outcome != stream.OutcomeDone && result.Outcome != stream.OutcomeCanceled) {
		reason := result.Reason
		if sendErr != nil {
			reason = sendErr.Error()
		}
		return cli.Exit(fmt.Sprintf("replay ended with %s: %s", result.Outcome, reason), exitBackend)
	}
	return nil
}

func replayResult(conv *types.Conversation, tr store.TurnResult, snap metrics.Snapshot) ReplayResult {
	kinds := make([]string, 0, len(tr.ArtifactKinds))
	for _, k := range tr.ArtifactKinds {
		kinds = append(kinds, string(k))
	}
	tools := tr.Tools
	if tools == nil {
		tools = []string{}
	}
	return ReplayResult{
		ConversationID: conv.ID,
		Outcome:        string(tr.Outcome),
		Reason:         tr.Reason,
		Tools:          tools,
		ArtifactKinds:  kinds,
		Frames:         tr.Frames,
		Messages:       conv.Displayable(),
		Metrics:        snap,
	}
}
