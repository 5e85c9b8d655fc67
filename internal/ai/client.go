// Package ai talks to an OpenAI-compatible chat completion service to
// analyze entries and answer questions about them.
package ai

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hpungsan/moodlog/internal/config"
	"github.com/hpungsan/moodlog/internal/errors"
	"github.com/hpungsan/moodlog/internal/mood"
)

// DefaultHTTPTimeout bounds one completion request when no timeout is configured.
const DefaultHTTPTimeout = 60 * time.Second

// Request is a single system+user completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer returns the assistant text for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client is a Completer backed by the chat/completions endpoint.
// Requests are never retried.
type Client struct {
	model   string
	token   string
	openai  openai.Client
	baseURL string
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	Endpoint   string
	Model      string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromApp extracts the completion settings from application config.
func ConfigFromApp(cfg *config.Config) ClientConfig {
	return ClientConfig{
		Endpoint: cfg.AIEndpoint,
		Model:    cfg.AIModel,
		Token:    cfg.AIToken,
		Timeout:  cfg.AITimeout(),
	}
}

// NewClient creates a completion client. A missing token is not an error
// here; Complete reports it.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if baseURL == "" {
		baseURL = config.DefaultAIEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = config.DefaultAIModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	token := strings.TrimSpace(cfg.Token)

	return &Client{
		model:   model,
		token:   token,
		baseURL: baseURL,
		openai: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(token),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
	}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool { return c.token != "" }

// Model returns the model identifier sent with each request.
func (c *Client) Model() string { return c.model }

// Complete sends one chat completion. It fails with CONFIGURATION before
// any network call when no token is set, and with SERVICE_UNAVAILABLE on
// transport errors or non-2xx responses. A response with no choices
// yields "".
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", errors.NewConfiguration("AI service not configured")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}

	log.Printf("[ai] completion request model=%s prompt~%d tokens max=%d",
		c.model, mood.EstimateTokens(req.System)+mood.EstimateTokens(req.User), req.MaxTokens)

	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errors.NewServiceUnavailable(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
