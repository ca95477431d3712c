package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

const (
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// Client talks to the assistant backend. Every operation issues exactly one request
// and never retries; failures come back as *Error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout bounds every request. A zero or negative value disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("chatapi: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "chatapi: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("chatapi: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("chatapi: base url has no host")
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// SendMessage posts a user message and returns the assistant's reply.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (ChatReply, error) {
	const op = "send message"
	body, err := json.Marshal(req)
	if err != nil {
		return ChatReply{}, &Error{Kind: NetworkError, Op: op, Err: err}
	}
	headers := http.Header{}
	headers.Set("Idempotency-Key", uuid.NewString())

	var reply ChatReply
	if err := c.do(ctx, op, http.MethodPost, c.baseURL+"/api/chat", headers, body, &reply); err != nil {
		return ChatReply{}, err
	}
	return reply, nil
}

// ListSessions returns the sessions of userID in server order.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]conversation.SessionSummary, error) {
	const op = "list sessions"
	var records []SessionRecord
	endpoint := c.baseURL + "/api/conversations/" + url.PathEscape(userID)
	if err := c.do(ctx, op, http.MethodGet, endpoint, nil, nil, &records); err != nil {
		return nil, err
	}
	ret := make([]conversation.SessionSummary, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.Summary())
	}
	return ret, nil
}

// GetSessionMessages returns the transcript of sessionID translated into store messages.
func (c *Client) GetSessionMessages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	const op = "get session messages"
	var records []MessageRecord
	endpoint := c.baseURL + "/api/conversations/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, op, http.MethodGet, endpoint, nil, nil, &records); err != nil {
		return nil, err
	}
	ret := make([]conversation.Message, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.Message())
	}
	return ret, nil
}

// CloseSession marks sessionID closed on the backend. A closed session no longer
// serves its transcript: GetSessionMessages answers 404 for it afterwards.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	const op = "close session"
	endpoint := c.baseURL + "/api/conversations/" + url.PathEscape(sessionID)
	return c.do(ctx, op, http.MethodDelete, endpoint, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, headers http.Header, body []byte, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Kind: NetworkError, Op: op, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := log.With().Str("component", "chatapi").Str("op", op).Str("request_id", requestID).Logger()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("request failed")
		return &Error{Kind: NetworkError, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Kind: ServerError, Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: NetworkError, Op: op, Err: ctx.Err()}
		}
		return &Error{Kind: ServerError, Op: op, StatusCode: resp.StatusCode, Detail: "invalid response body", Err: err}
	}
	return nil
}

// errorDetail pulls a human readable message out of an error body.
func errorDetail(raw []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
