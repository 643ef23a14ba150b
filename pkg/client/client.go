// Package client wraps the session HTTP wire contract for in-process
// consumers: the live controller, the terminal demo, and tests.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/camarero-ai/camarero/pkg/core"
	"github.com/camarero-ai/camarero/pkg/core/live"
	"github.com/camarero-ai/camarero/pkg/session"
)

const defaultTimeout = 5 * time.Second

// Client talks to the gateway. It keeps the poll cursor and a
// disconnected flag: any failed call marks the client disconnected, and
// the next successful ping restores it.
type Client struct {
	baseURL    string
	clientID   string
	language   string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	cursor       int64
	disconnected bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithLanguage sets the default session language.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// New creates a client for the given gateway base URL and client ID.
func New(baseURL, clientID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		language:   "es",
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Disconnected reports whether the last call failed without a later
// successful ping.
func (c *Client) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Cursor returns the highest message timestamp seen so far.
func (c *Client) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

type actionData struct {
	Audio    string `json:"audio,omitempty"`
	LastText string `json:"lastText,omitempty"`
}

type actionRequest struct {
	ClientID string      `json:"clientId"`
	Action   string      `json:"action"`
	Language string      `json:"language,omitempty"`
	Data     *actionData `json:"data,omitempty"`
}

// Ping checks connectivity and clears the disconnected flag on success.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.postAction(ctx, actionRequest{ClientID: c.clientID, Action: "ping"}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return c.fail(fmt.Errorf("ping not acknowledged"))
	}
	return nil
}

// Transcribe uploads a capture and returns the synchronous half of the
// turn. lastText is the previous accepted transcript, used server-side
// for echo dedupe.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language, lastText string) (live.TranscribeReply, error) {
	if language == "" {
		language = c.language
	}

	req := actionRequest{
		ClientID: c.clientID,
		Action:   "transcribe",
		Language: language,
		Data: &actionData{
			Audio:    base64.StdEncoding.EncodeToString(audio),
			LastText: lastText,
		},
	}

	var resp struct {
		Success         bool   `json:"success"`
		TranscribedText string `json:"transcribedText"`
		ResponseID      string `json:"responseId"`
		Ignored         bool   `json:"ignored"`
		Reason          string `json:"reason"`
	}
	if err := c.postAction(ctx, req, &resp); err != nil {
		return live.TranscribeReply{}, err
	}

	return live.TranscribeReply{
		Text:       resp.TranscribedText,
		ResponseID: resp.ResponseID,
		Ignored:    resp.Ignored,
		Reason:     resp.Reason,
	}, nil
}

// Interrupt abandons the in-flight turn.
func (c *Client) Interrupt(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	return c.postAction(ctx, actionRequest{ClientID: c.clientID, Action: "interrupt"}, &resp)
}

// ResetState clears server-side processing flags, keeping history.
func (c *Client) ResetState(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	return c.postAction(ctx, actionRequest{ClientID: c.clientID, Action: "reset_state"}, &resp)
}

// Poll fetches messages past the cursor and advances it. Re-polling
// after an empty result is idempotent.
func (c *Client) Poll(ctx context.Context) ([]session.Message, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	q := url.Values{}
	q.Set("clientId", c.clientID)
	q.Set("lastTimestamp", strconv.FormatInt(cursor, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/poll?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var msgs []session.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return nil, c.fail(fmt.Errorf("decode poll response: %w", err))
	}

	c.mu.Lock()
	for _, m := range msgs {
		if m.Timestamp > c.cursor {
			c.cursor = m.Timestamp
		}
	}
	c.mu.Unlock()

	return msgs, nil
}

func (c *Client) postAction(ctx context.Context, action actionRequest, out any) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/action", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(fmt.Errorf("decode %s response: %w", action.Action, err))
	}

	c.mu.Lock()
	if action.Action == "ping" {
		c.disconnected = false
	}
	c.mu.Unlock()
	return nil
}

// do executes the request and returns the body for 2xx responses. Error
// envelopes from the gateway are surfaced as *core.Error.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, c.fail(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var envelope struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return nil, c.fail(envelope.Error)
	}
	return nil, c.fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
}

// fail marks the client disconnected and passes the error through.
func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	c.logger.Debug("request failed", "error", err)
	return err
}
