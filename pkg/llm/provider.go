// Package llm defines the provider contract for model completions and
// implements adapters for the Anthropic Messages API and the OpenAI Chat
// Completions API. Provider errors are classified into fault codes and their
// messages pass through secret redaction before leaving this package.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

const (
	// MaxSystemBytes caps the system prompt size per request.
	MaxSystemBytes = 100 * 1024

	// MaxContentBytes caps a single message body.
	MaxContentBytes = 1024 * 1024

	// DefaultTimeout bounds one provider call when the caller's context
	// carries no earlier deadline. Agent turns routinely run for minutes.
	DefaultTimeout = 15 * time.Minute

	// DefaultMaxCompletionTokens is the completion cap applied when a
	// request does not set MaxTokens. Anthropic requires an explicit cap.
	DefaultMaxCompletionTokens = 8192
)

// ErrStreamingUnsupported is returned by Stream on providers that only
// implement Complete. Callers fall back to the non-streaming path.
var ErrStreamingUnsupported = errors.New("streaming is not supported by this provider")

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one a provider accepts in the
// conversation body. System text travels in Request.System, not as a message.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	// System is the instruction prompt, sent out of band from the
	// conversation on providers that distinguish the two.
	System string `json:"system,omitempty"`

	// Messages is the conversation in order. At least one is required.
	Messages []Message `json:"messages"`

	// MaxTokens caps the completion. Zero applies
	// DefaultMaxCompletionTokens.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is forwarded when positive; zero leaves the provider
	// default in place.
	Temperature float64 `json:"temperature,omitempty"`

	// Metadata carries opaque request annotations. Adapters forward the
	// keys their backend understands (currently "user_id") and drop the
	// rest.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request against the provider contract limits.
func (r Request) Validate() error {
	if len(r.System) > MaxSystemBytes {
		return faults.Newf(faults.CodeValidation, "system prompt is %d bytes, limit %d", len(r.System), MaxSystemBytes)
	}
	if len(r.Messages) == 0 {
		return faults.New(faults.CodeValidation, "at least one message is required")
	}
	for i, m := range r.Messages {
		if !m.Role.IsValid() {
			return faults.Newf(faults.CodeValidation, "message %d: unsupported role %q", i, m.Role)
		}
		if m.Content == "" {
			return faults.Newf(faults.CodeValidation, "message %d: content is empty", i)
		}
		if len(m.Content) > MaxContentBytes {
			return faults.Newf(faults.CodeValidation, "message %d: content is %d bytes, limit %d", i, len(m.Content), MaxContentBytes)
		}
	}
	if r.MaxTokens < 0 {
		return faults.Newf(faults.CodeValidation, "max_tokens %d is negative", r.MaxTokens)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return faults.Newf(faults.CodeValidation, "temperature %v is outside [0, 2]", r.Temperature)
	}
	return nil
}

// Response is a completed provider call.
type Response struct {
	// Content is the concatenated assistant text.
	Content string `json:"content"`

	// Usage reports billed tokens, including prompt-cache activity where
	// the provider exposes it.
	Usage models.TokenUsage `json:"usage"`

	// Model is the concrete model identifier that served the request.
	Model string `json:"model,omitempty"`

	// StopReason is the provider's termination reason, verbatim.
	StopReason string `json:"stop_reason,omitempty"`
}

// Chunk is one increment of a streamed response. Exactly one field is set.
type Chunk struct {
	// Text is an assistant text delta.
	Text string

	// Usage carries the cumulative token counts when the provider reports
	// them mid-stream.
	Usage *models.TokenUsage
}

// Streamer yields a finite chunk sequence for one request. Recv returns
// io.EOF after the final chunk. Streams are not restartable; Close releases
// the underlying connection and unblocks a pending Recv.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// SubagentOptions adjust a spawned sub-agent call.
type SubagentOptions struct {
	MaxTokens   int
	Temperature float64
	Metadata    map[string]string
}

// Provider is the completion backend used by agents. Implementations apply
// DefaultTimeout when the caller sets no deadline, classify failures into
// fault codes, and redact secrets from every error message they return.
type Provider interface {
	// Name identifies the backend ("anthropic", "openai").
	Name() string

	// Complete performs one blocking completion.
	Complete(ctx context.Context, req Request) (Response, error)

	// Stream performs one streaming completion, or returns
	// ErrStreamingUnsupported.
	Stream(ctx context.Context, req Request) (Streamer, error)

	// SpawnSubagent runs a scoped one-shot task under a role prompt.
	SpawnSubagent(ctx context.Context, role, task string, opts SubagentOptions) (Response, error)
}

// newSubagentRequest builds the one-shot request backing SpawnSubagent: the
// role prompt becomes the system prompt and the task the sole user message.
func newSubagentRequest(role, task string, opts SubagentOptions) (Request, error) {
	if role == "" {
		return Request{}, faults.New(faults.CodeValidation, "subagent role is required")
	}
	if task == "" {
		return Request{}, faults.New(faults.CodeValidation, "subagent task is required")
	}
	req := Request{
		System:      role,
		Messages:    []Message{{Role: RoleUser, Content: task}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Metadata:    opts.Metadata,
	}
	return req, req.Validate()
}

// ensureDeadline applies budget to ctx unless an earlier deadline is already
// set. It returns the derived context, its cancel func, and the effective
// budget used for timeout faults.
func ensureDeadline(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc, time.Duration) {
	if budget <= 0 {
		budget = DefaultTimeout
	}
	if existing, ok := ctx.Deadline(); ok {
		if remaining := time.Until(existing); remaining < budget {
			return ctx, func() {}, remaining
		}
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	return ctx, cancel, budget
}

// timeoutOrCancel maps context expiry to a timeout fault and propagates plain
// cancellation unchanged. It returns nil when err is neither.
func timeoutOrCancel(op string, err error, started time.Time, budget time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return faults.NewTimeout(op, time.Since(started), budget)
	case errors.Is(err, context.Canceled):
		return err
	}
	return nil
}

// statusFault classifies an HTTP status from a provider API error. The
// original error text is redacted and the cause is deliberately not wrapped:
// SDK errors can reproduce whole requests, credentials included.
func statusFault(provider, op string, status int, err error) *faults.Fault {
	msg := fmt.Sprintf("%s %s: %s", provider, op, redact.Error(err))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return faults.New(faults.CodeSecurity, msg)
	case status == http.StatusTooManyRequests:
		return faults.New(faults.CodeUpstream, msg).WithDetail("rate_limited", true)
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		return faults.New(faults.CodeValidation, msg)
	default:
		return faults.New(faults.CodeUpstream, msg).WithDetail("status", status)
	}
}

// transportFault classifies a provider failure that carries no HTTP status,
// redacting the error text.
func transportFault(provider, op string, err error) *faults.Fault {
	return faults.Newf(faults.CodeUpstream, "%s %s: %s", provider, op, redact.Error(err))
}
