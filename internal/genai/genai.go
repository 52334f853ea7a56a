// Package genai generates name suggestions directly through the OpenAI chat
// completions API, for deployments without a remote name service.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// Default generation settings
const (
	DefaultModel       = string(openai.ChatModelGPT4oMini)
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 800
	// MaxNames caps how many suggestions are kept from one completion.
	MaxNames = 5
)

var (
	ErrAPIKeyRequired    = errors.New("OpenAI API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrInvalidJSON       = errors.New("completion is not valid name JSON")
)

const systemPrompt = `You suggest English names for Korean speakers.
You receive a JSON object with the person's age, gender and answers to short personal questions.
Reply with JSON only, in exactly this shape:
{"names": ["Name1", "Name2", "Name3"], "reasons": {"Name1": {"<answer field>": "<one sentence in Korean>"}}}
Suggest between 1 and 5 names, best first. Every reason must be written in Korean and refer to the answer field it is based on.`

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	DebugMode   bool
	StateDir    string
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

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebugMode writes every request and response under stateDir/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	debugMode   bool
	stateDir    string
}

// NewClient initializes a new GenAI client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client configured", "model", cfg.Model, "debug", cfg.DebugMode)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePromptWithContext returns the completion for a system and user prompt.
func (c *Client) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("Client.GeneratePromptWithContext: completion failed", "model", c.model, "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		c.writeDebugLog("GeneratePromptWithContext", system, user, "")
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	c.writeDebugLog("GeneratePromptWithContext", system, user, content)
	return content, nil
}

// Generate asks the model for names matching req.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}

	content, err := c.GeneratePromptWithContext(ctx, systemPrompt, string(body))
	if err != nil {
		return nil, err
	}
	return parseNames(content)
}

// parseNames decodes a completion into a response, tolerating code fences.
func parseNames(content string) (*models.GenerationResponse, error) {
	content = stripCodeFence(content)

	var out models.GenerationResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		slog.Warn("genai.parseNames: completion is not JSON", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(out.Names) > MaxNames {
		out.Names = out.Names[:MaxNames]
	}
	// Each name is suggested once per completion.
	out.NamesCount = make([]int, len(out.Names))
	for i := range out.NamesCount {
		out.NamesCount[i] = 1
	}
	total := len(out.Names)
	out.TotalCount = &total
	return &out, nil
}

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

func (c *Client) writeDebugLog(method, system, user, response string) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("Client.writeDebugLog: failed to create debug directory", "dir", dir, "error", err)
		return
	}

	now := time.Now()
	entry := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    map[string]string{"system": system, "user": user},
		"response":  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebugLog: failed to marshal entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Warn("Client.writeDebugLog: failed to write entry", "error", err)
	}
}
