package llm

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter. It
// is satisfied by *sdk.MessageService, so tests can substitute a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicOptions configures the Anthropic adapter.
type AnthropicOptions struct {
	// Model is the Claude model identifier. Required.
	Model string

	// MaxTokens is the default completion cap when a request does not set
	// one. Zero applies DefaultMaxCompletionTokens.
	MaxTokens int

	// Temperature is the default sampling temperature when a request does
	// not set one. Zero leaves the provider default.
	Temperature float64

	// Timeout bounds one call when the caller's context has no earlier
	// deadline. Zero applies DefaultTimeout.
	Timeout time.Duration
}

// Anthropic implements Provider on top of the Claude Messages API.
type Anthropic struct {
	msg       MessagesClient
	model     string
	maxTokens int
	temp      float64
	timeout   time.Duration
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic builds the adapter from an existing Messages client.
func NewAnthropic(msg MessagesClient, opts AnthropicOptions) (*Anthropic, error) {
	if msg == nil {
		return nil, faults.New(faults.CodeValidation, "anthropic messages client is required")
	}
	if opts.Model == "" {
		return nil, faults.New(faults.CodeValidation, "anthropic model identifier is required")
	}
	return &Anthropic{
		msg:       msg,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		timeout:   opts.Timeout,
	}, nil
}

// NewAnthropicFromAPIKey constructs the adapter over the default SDK HTTP
// client.
func NewAnthropicFromAPIKey(apiKey string, opts AnthropicOptions) (*Anthropic, error) {
	if apiKey == "" {
		return nil, faults.New(faults.CodeValidation, "anthropic api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&client.Messages, opts)
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete issues one Messages.New call and flattens the response into text
// plus usage.
func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := a.encode(req)
	if err != nil {
		return Response{}, err
	}
	ctx, cancel, budget := ensureDeadline(ctx, a.timeout)
	defer cancel()
	started := time.Now()

	msg, err := a.msg.New(ctx, params)
	metrics.ProviderCallDuration.WithLabelValues(a.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ProviderCallErrors.WithLabelValues(a.Name()).Inc()
		return Response{}, a.classify("completion", err, started, budget)
	}
	return translateAnthropic(msg)
}

// Stream opens a Messages streaming call and adapts its event sequence into
// text and usage chunks. The returned streamer owns the SSE connection.
func (a *Anthropic) Stream(ctx context.Context, req Request) (Streamer, error) {
	params, err := a.encode(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel, budget := ensureDeadline(ctx, a.timeout)
	started := time.Now()

	stream := a.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		cancel()
		return nil, a.classify("stream", err, started, budget)
	}
	return newAnthropicStreamer(ctx, cancel, stream, func(err error) error {
		return a.classify("stream", err, started, budget)
	}), nil
}

// SpawnSubagent runs a one-shot completion under a role prompt.
func (a *Anthropic) SpawnSubagent(ctx context.Context, role, task string, opts SubagentOptions) (Response, error) {
	req, err := newSubagentRequest(role, task, opts)
	if err != nil {
		return Response{}, err
	}
	return a.Complete(ctx, req)
}

func (a *Anthropic) encode(req Request) (sdk.MessageNewParams, error) {
	if err := req.Validate(); err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxCompletionTokens
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case RoleUser:
			messages = append(messages, sdk.NewUserMessage(block))
		case RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(block))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = a.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if userID := req.Metadata["user_id"]; userID != "" {
		params.Metadata = sdk.MetadataParam{UserID: sdk.String(userID)}
	}
	return params, nil
}

// classify maps an SDK failure to a fault. Timeout and cancellation are
// handled first so an expired context is not misreported as upstream.
func (a *Anthropic) classify(op string, err error, started time.Time, budget time.Duration) error {
	if mapped := timeoutOrCancel("anthropic "+op, err, started, budget); mapped != nil {
		return mapped
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return statusFault("anthropic", op, apiErr.StatusCode, err)
	}
	return transportFault("anthropic", op, err)
}

func translateAnthropic(msg *sdk.Message) (Response, error) {
	if msg == nil {
		return Response{}, faults.New(faults.CodeUpstream, "anthropic completion: empty response message")
	}
	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return Response{
		Content: content,
		Usage: models.TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
	}, nil
}
