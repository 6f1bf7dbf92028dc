package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/cli/render"
	"github.com/pithecene-io/concierge/iox"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/store"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

const chatHelp = `Commands:
  /new    start a new conversation
  /reset  drop local state and reload the active conversation
  /stats  show session counters
  /quit   exit
Anything else is sent to the assistant. Ctrl+C cancels a streaming reply.`

// ChatCommand returns the interactive chat command.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with the shopping assistant",
		Flags: concat(BackendFlags(), ConfigFlags(), []cli.Flag{
			NoColorFlag,
			&cli.StringFlag{
				Name:  "record",
				Usage: "Record streamed frames to a file for replay",
			},
			&cli.StringFlag{
				Name:  "record-format",
				Usage: "Recording framing: jsonl, msgpack, sse (default from extension)",
			},
		}),
		Action: chatAction,
	}
}

func chatAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if cfg.Backend.BaseURL == "" {
		return cli.Exit("backend base URL required (--base-url or backend.base_url)", exitUsage)
	}
	format, err := transport.ParseFormat(cfg.Backend.Transport)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cfg, string(format), c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer iox.DiscardErr(sess.Close)

	httpClient, err := agent.NewHTTPClient(agent.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout.Duration,
		Format:  format,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	var client agent.Client = httpClient
	var recorder *recordingClient
	if path := c.String("record"); path != "" {
		recFormat := transport.Format(c.String("record-format"))
		if recFormat == "" {
			recFormat = agent.FormatFromPath(path)
		}
		if recFormat, err = transport.ParseFormat(string(recFormat)); err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		f, err := os.Create(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot create recording: %v", err), exitUsage)
		}
		defer iox.DiscardClose(f)
		recorder = newRecordingClient(httpClient, transport.NewFormatWriter(recFormat, f))
		client = recorder
	}

	r := render.New(render.FormatTable, c.Bool("no-color"), c.App.Writer)
	st, err := store.New(sess.storeConfig(ctx, client, noticePrinter(c.App.ErrWriter), nil))
	if err != nil {
		return err
	}
	defer st.Subscribe(statusPrinter(r))()

	if err := st.InitChat(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("could not load conversation: %v", err), exitBackend)
	}

	repl := &chatREPL{
		store:     st,
		collector: sess.collector,
		render:    r,
		in:        c.App.Reader,
		out:       c.App.Writer,
		seen:      map[string]bool{},
	}
	if err := repl.printNew(true); err != nil {
		return err
	}
	err = repl.run(ctx)

	if recorder != nil {
		if rerr := recorder.Err(); rerr != nil {
			fmt.Fprintf(c.App.ErrWriter, "recording incomplete: %v\n", rerr)
		}
	}
	return err
}

// chatREPL reads one line at a time and prints messages it has not shown
// yet after every operation.
type chatREPL struct {
	store     *store.Store
	collector *metrics.Collector
	render    *render.Renderer
	in        io.Reader
	out       io.Writer
	seen      map[string]bool
}

func (p *chatREPL) run(ctx context.Context) error {
	if p.in == nil {
		p.in = os.Stdin
	}
	scanner := bufio.NewScanner(p.in)
	p.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(p.out, chatHelp)
		case "/stats":
			if err := p.render.Render(p.collector.Snapshot()); err != nil {
				return err
			}
		case "/new":
			if err := p.store.StartNewConversation(ctx); err == nil {
				p.seen = map[string]bool{}
				fmt.Fprintln(p.out, "Started a new conversation.")
			}
		case "/reset":
			p.store.Reset()
			p.seen = map[string]bool{}
			if err := p.store.InitChat(ctx); err == nil {
				if err := p.printNew(true); err != nil {
					return err
				}
			}
		default:
			p.send(ctx, line)
		}
		p.prompt()
	}
	return scanner.Err()
}

// send streams one turn. Ctrl+C cancels only this turn.
func (p *chatREPL) send(ctx context.Context, text string) {
	turnCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()
	p.turn(turnCtx, text)
}

// turn sends text and prints the reply. Failures reach the user as
// notices; cancellation of ctx is silent in the store and reported here.
func (p *chatREPL) turn(ctx context.Context, text string) {
	_ = p.store.SendMessageStreaming(ctx, text, store.DefaultSendOptions())
	if ctx.Err() != nil {
		fmt.Fprintln(p.out, "(canceled)")
	}
	// The prompt was echoed by the terminal.
	_ = p.printNew(false)
}

// printNew renders displayable messages not shown yet. User messages are
// skipped unless includeUser is set.
func (p *chatREPL) printNew(includeUser bool) error {
	conv := p.store.Snapshot().Conversation
	for _, m := range conv.Displayable() {
		if p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		if m.Role == types.RoleUser && !includeUser {
			continue
		}
		if err := p.render.Message(m); err != nil {
			return err
		}
	}
	return nil
}

func (p *chatREPL) prompt() {
	fmt.Fprint(p.out, "> ")
}

// statusPrinter shows progress text as it changes during a stream.
func statusPrinter(r *render.Renderer) func(store.Snapshot) {
	last := ""
	return func(s store.Snapshot) {
		status := ""
		if s.StreamingStatus != nil {
			status = *s.StreamingStatus
		}
		if status != "" && status != last {
			_ = r.Status(status)
		}
		last = status
	}
}

// noticePrinter writes user-facing failures to w.
func noticePrinter(w io.Writer) store.Notifier {
	return func(n store.Notice) {
		fmt.Fprintf(w, "! %s\n", n.Message)
	}
}
