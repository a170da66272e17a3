package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a failed gateway call.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
)

// Error is returned by Client for every failure.
type Error struct {
	Kind Kind
	// Status is the HTTP status for KindStatus, zero otherwise.
	Status int
	// Message is the gateway's structured error text, or a generic fallback.
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("gateway %s: status=%d: %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindTransport when err is not an *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransport
}

// FallbackMessage is used when a non-success response carries no error text.
const FallbackMessage = "API request failed"

// Client calls the Model Gateway endpoint. It never sees the model credential.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string
}

// NewClient returns a Client for endpoint. A zero timeout means no client-side limit.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Endpoint:   endpoint,
	}
}

// Chat sends the persona instruction and history; the last history entry is the new agent line.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	return c.do(ctx, Request{Type: TypeChat, SystemInstruction: req.SystemInstruction, Transcript: req.Transcript})
}

// Suggest sends a one-off prompt.
func (c *Client) Suggest(ctx context.Context, prompt string) (string, error) {
	return c.do(ctx, Request{Type: TypeSuggestion, Prompt: prompt})
}

func (c *Client) do(ctx context.Context, body Request) (string, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &Error{Kind: KindTransport, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er ErrorResponse
		msg := FallbackMessage
		if json.Unmarshal(raw, &er) == nil {
			if d := strings.TrimSpace(er.Details); d != "" {
				msg = d
			} else if e := strings.TrimSpace(er.Error); e != "" {
				msg = e
			}
		}
		return "", &Error{Kind: KindStatus, Status: resp.StatusCode, Message: msg}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &Error{Kind: KindMalformed, Message: "invalid response body", Err: err}
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", &Error{Kind: KindMalformed, Message: "empty response text"}
	}
	return out.Text, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
