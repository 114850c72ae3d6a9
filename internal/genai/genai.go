// Package genai provides the optional OpenAI-backed route extraction used
// when a booking request does not match the fixed phrasings.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds a single extraction call so the webhook stays responsive.
const DefaultTimeout = 4 * time.Second

// ErrMissingAPIKey is returned when no OpenAI API key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey    string
	Model     string
	Timeout   time.Duration
	Locations []string // catalog names the model should map onto
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithKnownLocations lists the location names the model may answer with.
func WithKnownLocations(names []string) Option {
	return func(o *Opts) { o.Locations = names }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat         chatService
	model        string
	timeout      time.Duration
	systemPrompt string
}

var _ intent.RouteExtractor = (*Client)(nil)

// NewClient initializes a GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newClient(&cli.Chat.Completions, cfg), nil
}

func newClient(chat chatService, cfg Opts) *Client {
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		chat:         chat,
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		systemPrompt: routeSystemPrompt(cfg.Locations),
	}
}

func routeSystemPrompt(locations []string) string {
	var b strings.Builder
	b.WriteString("You extract taxi trip endpoints from a rider's WhatsApp message in Lagos, Nigeria. ")
	b.WriteString(`Reply with only a JSON object {"pickup": "...", "dropoff": "..."}. `)
	b.WriteString("Use an empty string for any endpoint the message does not state. Never invent places.")
	if len(locations) > 0 {
		b.WriteString(" Prefer these exact names when they match: ")
		b.WriteString(strings.Join(locations, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// GeneratePrompt returns the model's reply to a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type routeReply struct {
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
}

// ExtractRoute asks the model for pickup and dropoff names in text.
// The names are unvalidated; callers resolve them against the catalog.
func (c *Client) ExtractRoute(ctx context.Context, text string) (pickup, dropoff string, err error) {
	content, err := c.GeneratePrompt(ctx, c.systemPrompt, text)
	if err != nil {
		return "", "", err
	}
	var reply routeReply
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &reply); err != nil {
		return "", "", fmt.Errorf("failed to decode route reply: %w", err)
	}
	slog.Debug("GenAI.ExtractRoute: extracted", "pickup", reply.Pickup, "dropoff", reply.Dropoff)
	return strings.TrimSpace(reply.Pickup), strings.TrimSpace(reply.Dropoff), nil
}

// stripCodeFence removes a ```json fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
