// Package api is the HTTP client for the lesson backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

const defaultBaseURL = "http://localhost:8080"

// ErrMalformedResponse is returned when a 2xx body cannot be read as the
// expected envelope.
var ErrMalformedResponse = errors.New("malformed backend response")

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Body)
}

// TokenSource supplies the bearer token for the signed-in user.
type TokenSource interface {
	Token() string
}

// Client talks to the lesson backend.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the backend base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client. The default applies no timeout of
// its own.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a backend client authenticating with tokens.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// SaveResponse posts r to POST /responses/{kind} together with lessonID and
// returns the record the backend stored.
func (c *Client) SaveResponse(ctx context.Context, kind responses.Kind, lessonID string, r responses.Record) (responses.Record, error) {
	body, err := requestBody(lessonID, r)
	if err != nil {
		return responses.Record{}, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/responses/"+url.PathEscape(string(kind)), body)
	if err != nil {
		return responses.Record{}, err
	}

	data, err := unwrap(raw)
	if err != nil {
		return responses.Record{}, err
	}
	saved, err := responses.DecodeRecord(kind, data)
	if err != nil {
		return responses.Record{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return saved, nil
}

// ListResponses fetches every persisted record of kind for lessonID.
func (c *Client) ListResponses(ctx context.Context, kind responses.Kind, lessonID string) ([]responses.Record, error) {
	path := "/responses/" + url.PathEscape(string(kind)) + "?lesson_id=" + url.QueryEscape(lessonID)
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	data, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]responses.Record, 0, len(items))
	for _, item := range items {
		r, err := responses.DecodeRecord(kind, item)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// EndSession calls DELETE /sessions for the current token.
func (c *Client) EndSession(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/sessions", nil)
	return err
}

// HealthCheck calls GET /healthz.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func requestBody(lessonID string, r responses.Record) ([]byte, error) {
	encoded, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	lesson, _ := json.Marshal(lessonID)
	fields["lesson_id"] = lesson
	return json.Marshal(fields)
}

func unwrap(raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
