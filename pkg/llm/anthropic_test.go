package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

type stubMessages struct {
	lastParams sdk.MessageNewParams
	calls      int
	resp       *sdk.Message
	err        error
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.calls++
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessages) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.calls++
	s.lastParams = body
	return s.stream
}

func newTestAnthropic(t *testing.T, stub *stubMessages) *Anthropic {
	t.Helper()
	a, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5", MaxTokens: 256})
	require.NoError(t, err)
	return a
}

func TestNewAnthropicValidatesOptions(t *testing.T) {
	_, err := NewAnthropic(nil, AnthropicOptions{Model: "claude-sonnet-4-5"})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = NewAnthropic(&stubMessages{}, AnthropicOptions{})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = NewAnthropicFromAPIKey("", AnthropicOptions{Model: "claude-sonnet-4-5"})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}

func TestAnthropicCompleteTranslatesResponse(t *testing.T) {
	stub := &stubMessages{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "Hello "},
				{Type: "tool_use"},
				{Type: "text", Text: "world"},
			},
			Model:      "claude-sonnet-4-5",
			StopReason: sdk.StopReasonEndTurn,
			Usage: sdk.Usage{
				InputTokens:              120,
				OutputTokens:             40,
				CacheCreationInputTokens: 8,
				CacheReadInputTokens:     30,
			},
		},
	}
	a := newTestAnthropic(t, stub)

	resp, err := a.Complete(context.Background(), Request{
		System:   "You orchestrate agents.",
		Messages: []Message{{Role: RoleUser, Content: "build the login page"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(40), resp.Usage.OutputTokens)
	assert.Equal(t, int64(8), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(30), resp.Usage.CacheReadInputTokens)
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestAnthropicEncodesRequest(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{}}
	a := newTestAnthropic(t, stub)

	_, err := a.Complete(context.Background(), Request{
		System: "You orchestrate agents.",
		Messages: []Message{
			{Role: RoleUser, Content: "build the login page"},
			{Role: RoleAssistant, Content: "starting on it"},
			{Role: RoleUser, Content: "use the design system"},
		},
		Metadata: map[string]string{"user_id": "tenant-a", "trace": "dropped"},
	})
	require.NoError(t, err)

	params := stub.lastParams
	assert.Equal(t, sdk.Model("claude-sonnet-4-5"), params.Model)
	assert.Equal(t, int64(256), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "You orchestrate agents.", params.System[0].Text)
	require.Len(t, params.Messages, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, "tenant-a", params.Metadata.UserID.Value)

	encoded, err := json.Marshal(params.Messages)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "use the design system")
}

func TestAnthropicMaxTokensPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		adapter int
		request int
		want    int64
	}{
		{name: "request overrides adapter", adapter: 256, request: 64, want: 64},
		{name: "adapter default applies", adapter: 256, request: 0, want: 256},
		{name: "package default applies", adapter: 0, request: 0, want: DefaultMaxCompletionTokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubMessages{resp: &sdk.Message{}}
			a, err := NewAnthropic(stub, AnthropicOptions{Model: "claude-sonnet-4-5", MaxTokens: tt.adapter})
			require.NoError(t, err)

			_, err = a.Complete(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "hi"}},
				MaxTokens: tt.request,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stub.lastParams.MaxTokens)
		})
	}
}

func TestAnthropicRejectsInvalidRequestWithoutCalling(t *testing.T) {
	stub := &stubMessages{}
	a := newTestAnthropic(t, stub)

	_, err := a.Complete(context.Background(), Request{})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	_, err = a.Stream(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))

	assert.Zero(t, stub.calls)
}

func TestAnthropicClassifiesErrors(t *testing.T) {
	t.Run("deadline becomes timeout fault", func(t *testing.T) {
		stub := &stubMessages{err: fmt.Errorf("post /v1/messages: %w", context.DeadlineExceeded)}
		a := newTestAnthropic(t, stub)

		_, err := a.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.Error(t, err)
		assert.Equal(t, faults.CodeTimeout, faults.CodeOf(err))
		assert.Contains(t, err.Error(), "anthropic completion")
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		stub := &stubMessages{err: context.Canceled}
		a := newTestAnthropic(t, stub)

		_, err := a.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("transport errors are redacted upstream faults", func(t *testing.T) {
		stub := &stubMessages{err: errors.New(`dial tcp: refused, api_key="sk-ant-abc12345678901"`)}
		a := newTestAnthropic(t, stub)

		_, err := a.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.Error(t, err)
		assert.Equal(t, faults.CodeUpstream, faults.CodeOf(err))
		assert.NotContains(t, err.Error(), "sk-ant-abc12345678901")
		assert.Contains(t, err.Error(), "[REDACTED]")
	})
}

func TestAnthropicSpawnSubagent(t *testing.T) {
	stub := &stubMessages{
		resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "looks good"}}},
	}
	a := newTestAnthropic(t, stub)

	resp, err := a.SpawnSubagent(context.Background(), "You review database schemas.", "Review the activity_events table.", SubagentOptions{MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "looks good", resp.Content)

	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "You review database schemas.", stub.lastParams.System[0].Text)
	require.Len(t, stub.lastParams.Messages, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, stub.lastParams.Messages[0].Role)
	assert.Equal(t, int64(64), stub.lastParams.MaxTokens)

	_, err = a.SpawnSubagent(context.Background(), "", "task", SubagentOptions{})
	assert.Equal(t, faults.CodeValidation, faults.CodeOf(err))
}

// eventDecoder feeds a fixed event sequence to ssestream.Stream, optionally
// failing once the sequence is exhausted.
type eventDecoder struct {
	events   []ssestream.Event
	i        int
	failWith error
	failed   bool
}

func (d *eventDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *eventDecoder) Next() bool {
	if d.i >= len(d.events) {
		if d.failWith != nil {
			d.failed = true
		}
		return false
	}
	d.i++
	return true
}

func (d *eventDecoder) Close() error { return nil }

func (d *eventDecoder) Err() error {
	if d.failed {
		return d.failWith
	}
	return nil
}

func rawEvent(eventType, data string) ssestream.Event {
	return ssestream.Event{Type: eventType, Data: json.RawMessage(data)}
}

func collectChunks(t *testing.T, s Streamer) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	for {
		chunk, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestAnthropicStreamDeliversTextAndUsage(t *testing.T) {
	dec := &eventDecoder{events: []ssestream.Event{
		rawEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`),
		rawEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`),
		rawEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":12,"output_tokens":5,"cache_read_input_tokens":2,"cache_creation_input_tokens":1}}`),
		rawEvent("message_stop", `{"type":"message_stop"}`),
	}}
	stub := &stubMessages{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}
	a := newTestAnthropic(t, stub)

	s, err := a.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	chunks, err := collectChunks(t, s)
	require.NoError(t, err)

	var text string
	var sawUsage bool
	for _, chunk := range chunks {
		text += chunk.Text
		if chunk.Usage != nil {
			sawUsage = true
			assert.Equal(t, int64(12), chunk.Usage.InputTokens)
			assert.Equal(t, int64(5), chunk.Usage.OutputTokens)
			assert.Equal(t, int64(2), chunk.Usage.CacheReadInputTokens)
			assert.Equal(t, int64(1), chunk.Usage.CacheCreationInputTokens)
		}
	}
	assert.Equal(t, "Hello", text)
	assert.True(t, sawUsage)

	// The stream is finite: further receives keep reporting EOF.
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAnthropicStreamClassifiesMidStreamFailure(t *testing.T) {
	dec := &eventDecoder{
		events: []ssestream.Event{
			rawEvent("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"par"}}`),
		},
		failWith: errors.New(`connection reset, api_key="sk-ant-abc12345678901"`),
	}
	stub := &stubMessages{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}
	a := newTestAnthropic(t, stub)

	s, err := a.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	chunks, err := collectChunks(t, s)
	require.Error(t, err)
	assert.Equal(t, faults.CodeUpstream, faults.CodeOf(err))
	assert.NotContains(t, err.Error(), "sk-ant-abc12345678901")
	require.Len(t, chunks, 1)
	assert.Equal(t, "par", chunks[0].Text)
}

func TestAnthropicStreamOpenFailure(t *testing.T) {
	openErr := errors.New("401 unauthorized, Bearer abcdef12345678")
	stub := &stubMessages{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](&eventDecoder{}, openErr)}
	a := newTestAnthropic(t, stub)

	_, err := a.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, faults.CodeUpstream, faults.CodeOf(err))
	assert.NotContains(t, err.Error(), "abcdef12345678")
}

// blockingDecoder parks Next until released, standing in for a stalled SSE
// connection.
type blockingDecoder struct {
	release chan struct{}
	once    sync.Once
}

func newBlockingDecoder() *blockingDecoder {
	return &blockingDecoder{release: make(chan struct{})}
}

func (d *blockingDecoder) Event() ssestream.Event { return ssestream.Event{} }

func (d *blockingDecoder) Next() bool {
	<-d.release
	return false
}

func (d *blockingDecoder) Close() error {
	d.once.Do(func() { close(d.release) })
	return nil
}

func (d *blockingDecoder) Err() error { return nil }

func TestAnthropicStreamCloseUnblocksRecv(t *testing.T) {
	dec := newBlockingDecoder()
	stub := &stubMessages{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}
	a := newTestAnthropic(t, stub)

	s, err := a.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	recvErr := make(chan error, 1)
	go func() {
		_, err := s.Recv()
		recvErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-recvErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
