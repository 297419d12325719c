// Package chat talks to the conversational backend that writes assistant
// replies, and supplies canned replies when it cannot be reached.
package chat

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

	"github.com/wolfman30/salesfusion/internal/conversation"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 15 * time.Second

const chatPath = "/api/chat"

// Config controls the backend client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// HistoryMessage is one prior turn sent as context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the session state the backend sees alongside the message.
type Context struct {
	Prospect          conversation.ProspectInfo `json:"prospect"`
	Score             int                       `json:"qualificationScore"`
	ReadyToConnect    bool                      `json:"readyToConnect"`
	QualifiedCriteria []string                  `json:"qualifiedCriteria,omitempty"`
	NextQuestions     []string                  `json:"nextQuestions,omitempty"`
	History           []HistoryMessage          `json:"history,omitempty"`
}

// Request is a single chat turn.
type Request struct {
	Message   string
	SessionID string
	Context   Context
}

// Response is the backend's reply.
type Response struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
}

// Client calls POST {BaseURL}/api/chat.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chat: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Send posts one message. All failures are *Error values.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(struct {
		Message   string  `json:"message"`
		SessionID string  `json:"sessionId"`
		Context   Context `json:"context"`
		Model     string  `json:"model,omitempty"`
		APIKey    string  `json:"apiKey,omitempty"`
	}{
		Message:   req.Message,
		SessionID: req.SessionID,
		Context:   req.Context,
		Model:     c.model,
		APIKey:    c.apiKey,
	})
	if err != nil {
		return nil, &Error{Kind: KindParse, Message: "encode request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Message: fmt.Sprintf("no reply within %s", c.timeout), Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindAPI, StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Kind: KindParse, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, &Error{Kind: KindAPI, StatusCode: resp.StatusCode, Message: msg}
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, &Error{Kind: KindParse, StatusCode: resp.StatusCode, Message: "empty response text"}
	}
	if out.SessionID == "" {
		out.SessionID = req.SessionID
	}
	return &out, nil
}

func apiMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return ""
}
