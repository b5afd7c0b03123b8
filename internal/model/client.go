// Package model turns a formatted request into the model's raw plan text.
//
// [Client] wraps an [llm.Provider] with the system prompt, a caller-owned
// [Session] history, sampling parameters and telemetry. [SystemPrompt] and
// [FormatRequest] build the two halves of what the model sees.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/stagehand/internal/observe"
	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

const (
	// DefaultTemperature is the sampling temperature when none is set.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is the output token limit when none is set.
	DefaultMaxTokens = 1000
)

// ErrTransport wraps every failure to obtain a response from the provider.
var ErrTransport = errors.New("model: transport")

// Client generates plan text for a request. It is safe for concurrent use,
// although the orchestrator calls it from one goroutine.
type Client struct {
	provider     llm.Provider
	providerName string
	system       string
	session      *Session
	metrics      *observe.Metrics

	mu          sync.RWMutex
	temperature float64
	maxTokens   int
}

// Option configures a [Client].
type Option func(*Client)

// WithSession sets the conversation history. Default: a new session of
// [DefaultMaxHistory] messages.
func WithSession(s *Session) Option {
	return func(c *Client) {
		if s != nil {
			c.session = s
		}
	}
}

// WithSampling sets temperature and the output token limit.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(c *Client) {
		c.temperature, c.maxTokens = temperature, maxTokens
	}
}

// WithMetrics records model latency and provider counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(c *Client) {
		c.providerName = name
	}
}

// NewClient creates a client over p with the given system prompt.
func NewClient(p llm.Provider, systemPrompt string, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, fmt.Errorf("model: provider must not be nil")
	}
	c := &Client{
		provider:     p,
		providerName: "llm",
		system:       systemPrompt,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	if c.session == nil {
		c.session = NewSession(DefaultMaxHistory)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Generate sends request as a user turn after the session history and
// returns the model's text. The output token limit is capped at what the
// backend reports it can produce. The exchange is appended to the session only
// when a non-empty response arrives. Errors wrap [ErrTransport].
func (c *Client) Generate(ctx context.Context, request string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "model.generate")
	defer span.End()

	temperature, maxTokens := c.Sampling()
	if limit := c.provider.Capabilities().MaxOutputTokens; limit > 0 && maxTokens > limit {
		maxTokens = limit
	}
	user := llm.Message{Role: llm.RoleUser, Content: request}
	msgs := append(c.session.Messages(), user)

	span.SetAttributes(
		attribute.String("provider", c.providerName),
		attribute.Int("history", len(msgs)-1),
	)

	start := time.Now()
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: c.system,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordModelCall(ctx, c.providerName, "error", elapsed)
		c.metrics.RecordProviderError(ctx, c.providerName, "llm")
		observe.FailSpan(span, err)
		return "", fmt.Errorf("%w: %s: %w", ErrTransport, c.providerName, err)
	}
	c.metrics.RecordModelCall(ctx, c.providerName, "ok", elapsed)

	log := observe.Logger(ctx)
	if resp == nil || resp.Content == "" {
		log.Warn("model: empty response", "provider", c.providerName, "elapsed", elapsed)
		return "", nil
	}

	c.session.Append(user, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	log.Debug("model: response received",
		"provider", c.providerName,
		"elapsed", elapsed,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Content, nil
}

// Session returns the client's conversation history.
func (c *Client) Session() *Session {
	return c.session
}

// SystemPrompt returns the instructions sent with every request.
func (c *Client) SystemPrompt() string {
	return c.system
}

// Sampling returns the current temperature and output token limit.
func (c *Client) Sampling() (float64, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.temperature, c.maxTokens
}

// SetSampling changes temperature and the output token limit for
// subsequent requests.
func (c *Client) SetSampling(temperature float64, maxTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temperature, c.maxTokens = temperature, maxTokens
}
