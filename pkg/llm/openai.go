package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// ChatClient is the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	// Model is the chat model identifier. Required.
	Model string

	// MaxTokens is the default completion cap when a request does not set
	// one. Zero applies DefaultMaxCompletionTokens.
	MaxTokens int

	// Temperature is the default sampling temperature when a request does
	// not set one.
	Temperature float64

	// Timeout bounds one call when the caller's context has no earlier
	// deadline. Zero applies DefaultTimeout.
	Timeout time.Duration
}

// OpenAI implements Provider via the Chat Completions API. Streaming is not
// wired for this backend; Stream reports ErrStreamingUnsupported and callers
// use Complete.
type OpenAI struct {
	chat      ChatClient
	model     string
	maxTokens int
	temp      float64
	timeout   time.Duration
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI builds the adapter from an existing chat client.
func NewOpenAI(chat ChatClient, opts OpenAIOptions) (*OpenAI, error) {
	if chat == nil {
		return nil, faults.New(faults.CodeValidation, "openai chat client is required")
	}
	if opts.Model == "" {
		return nil, faults.New(faults.CodeValidation, "openai model identifier is required")
	}
	return &OpenAI{
		chat:      chat,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		temp:      opts.Temperature,
		timeout:   opts.Timeout,
	}, nil
}

// NewOpenAIFromAPIKey constructs the adapter over the default go-openai HTTP
// client.
func NewOpenAIFromAPIKey(apiKey string, opts OpenAIOptions) (*OpenAI, error) {
	if apiKey == "" {
		return nil, faults.New(faults.CodeValidation, "openai api key is required")
	}
	return NewOpenAI(openai.NewClient(apiKey), opts)
}

func (o *OpenAI) Name() string { return "openai" }

// Complete issues one chat completion and flattens the first choice into
// text plus usage.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	request, err := o.encode(req)
	if err != nil {
		return Response{}, err
	}
	ctx, cancel, budget := ensureDeadline(ctx, o.timeout)
	defer cancel()
	started := time.Now()

	resp, err := o.chat.CreateChatCompletion(ctx, request)
	metrics.ProviderCallDuration.WithLabelValues(o.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ProviderCallErrors.WithLabelValues(o.Name()).Inc()
		return Response{}, o.classify("completion", err, started, budget)
	}
	return translateOpenAI(resp), nil
}

// Stream is not supported on this backend.
func (o *OpenAI) Stream(context.Context, Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

// SpawnSubagent runs a one-shot completion under a role prompt.
func (o *OpenAI) SpawnSubagent(ctx context.Context, role, task string, opts SubagentOptions) (Response, error) {
	req, err := newSubagentRequest(role, task, opts)
	if err != nil {
		return Response{}, err
	}
	return o.Complete(ctx, req)
}

func (o *OpenAI) encode(req Request) (openai.ChatCompletionRequest, error) {
	if err := req.Validate(); err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxCompletionTokens
	}
	request := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = o.temp
	}
	if temp > 0 {
		request.Temperature = float32(temp)
	}
	if userID := req.Metadata["user_id"]; userID != "" {
		request.User = userID
	}
	return request, nil
}

// classify maps a go-openai failure to a fault. Both APIError and
// RequestError carry the HTTP status.
func (o *OpenAI) classify(op string, err error, started time.Time, budget time.Duration) error {
	if mapped := timeoutOrCancel("openai "+op, err, started, budget); mapped != nil {
		return mapped
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusFault("openai", op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusFault("openai", op, reqErr.HTTPStatusCode, err)
	}
	return transportFault("openai", op, err)
}

func translateOpenAI(resp openai.ChatCompletionResponse) Response {
	var content, stop string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	usage := models.TokenUsage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	// OpenAI counts cached reads inside prompt_tokens; InputTokens is kept
	// net of them so TokenUsage.Total stays the billed figure.
	if details := resp.Usage.PromptTokensDetails; details != nil {
		usage.CacheReadInputTokens = int64(details.CachedTokens)
		usage.InputTokens -= usage.CacheReadInputTokens
	}
	return Response{
		Content:    content,
		Usage:      usage,
		Model:      resp.Model,
		StopReason: stop,
	}
}
