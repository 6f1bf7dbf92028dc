package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pithecene-io/concierge/iox"
	"github.com/pithecene-io/concierge/reconcile"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// DefaultTimeout bounds non-streaming requests.
const DefaultTimeout = 30 * time.Second

// errorBodyLimit caps the response excerpt carried by StatusError.
const errorBodyLimit = 512

// Config configures the HTTP agent client.
type Config struct {
	// BaseURL is the agent API root (required), e.g. https://shop.example/api.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds non-streaming requests (default 30s). Streaming
	// requests are bounded by the stream engine's idle timeout instead.
	Timeout time.Duration
	// Format is the preferred stream framing, sent as Accept.
	Format transport.Format
	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// HTTPClient implements Client over the agent's HTTP endpoints:
//
//	POST /chat/conversations/active              bootstrap
//	POST /chat/conversations                     create
//	POST /chat/conversations/{id}/messages       send
//	POST /chat/conversations/{id}/messages/stream  streaming send
type HTTPClient struct {
	base    *url.URL
	token   string
	timeout time.Duration
	format  transport.Format
	client  *http.Client
}

// NewHTTPClient creates an HTTP agent client.
// Returns an error if the base URL is missing or invalid.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("agent client requires a base URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Format == "" {
		cfg.Format = transport.FormatSSE
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		base:    base,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		format:  cfg.Format,
		client:  client,
	}, nil
}

// conversationResponse is the bootstrap/create body. Messages stay raw so
// one malformed record cannot fail the whole decode.
type conversationResponse struct {
	ID       string            `json:"id"`
	Messages []json.RawMessage `json:"messages"`
}

// Bootstrap fetches or creates the active conversation.
func (c *HTTPClient) Bootstrap(ctx context.Context) (*types.ConversationRecord, error) {
	return c.conversation(ctx, "/chat/conversations/active")
}

// CreateConversation starts a new conversation.
func (c *HTTPClient) CreateConversation(ctx context.Context) (*types.ConversationRecord, error) {
	return c.conversation(ctx, "/chat/conversations")
}

func (c *HTTPClient) conversation(ctx context.Context, path string) (*types.ConversationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp conversationResponse
	if err := c.doJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.New("agent: conversation response missing id")
	}
	return &types.ConversationRecord{
		ID:       resp.ID,
		Messages: reconcile.DecodeRecords(resp.Messages),
	}, nil
}

// Send posts a message and returns the assistant's reply record.
func (c *HTTPClient) Send(ctx context.Context, conversationID, text string) (*types.MessageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.doJSON(ctx, messagesPath(conversationID), sendRequest{Content: text}, &raw); err != nil {
		return nil, err
	}
	rec := reconcile.DecodeRecord(raw)
	return &rec, nil
}

// SendStream posts a message to the streaming endpoint. The response
// framing is chosen by its Content-Type, falling back to the configured
// format when the server omits it.
func (c *HTTPClient) SendStream(ctx context.Context, conversationID, text string) (*Stream, error) {
	body, err := json.Marshal(sendRequest{Content: text})
	if err != nil {
		return nil, fmt.Errorf("agent: marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, messagesPath(conversationID)+"/stream", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", c.format.ContentType())
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: stream request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		iox.DrainClose(resp.Body)
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = c.format.ContentType()
	}
	reader, err := transport.NewReader(contentType, resp.Body)
	if err != nil {
		iox.DrainClose(resp.Body)
		return nil, fmt.Errorf("agent: %w", err)
	}
	return NewStream(reader, resp.Body, formatOf(reader)), nil
}

func formatOf(r transport.FrameReader) transport.Format {
	switch r.(type) {
	case *transport.MsgpackReader:
		return transport.FormatMsgpack
	case *transport.JSONLReader:
		return transport.FormatJSONL
	default:
		return transport.FormatSSE
	}
}

// messagesPath returns the escaped messages path of a conversation.
func messagesPath(conversationID string) string {
	return "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
}

func (c *HTTPClient) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	decoded, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("agent: invalid path %q: %w", path, err)
	}
	u.Path = decoded

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("agent: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs a POST and decodes a 2xx JSON response into out.
func (c *HTTPClient) doJSON(ctx context.Context, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("agent: marshal request: %w", err)
		}
	}
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent: request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent: decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Body: iox.Snippet(resp.Body, errorBodyLimit)}
}

// Verify HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
