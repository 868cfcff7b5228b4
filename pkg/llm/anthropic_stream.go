package llm

import (
	"context"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/codeready-toolchain/baton/pkg/models"
)

// streamChunkBuffer bounds the chunk channel so a stalled consumer applies
// backpressure to the SSE reader instead of buffering the whole response.
const streamChunkBuffer = 32

// anthropicStreamer adapts an Anthropic SSE stream to the Streamer
// interface. A pump goroutine reads events and forwards text deltas and
// usage updates; the first stream failure is classified once and surfaced
// from Recv after the channel drains.
type anthropicStreamer struct {
	ctx     context.Context
	release func()
	stream  *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error
}

func newAnthropicStreamer(
	ctx context.Context,
	cancel context.CancelFunc,
	stream *ssestream.Stream[sdk.MessageStreamEventUnion],
	classify func(error) error,
) *anthropicStreamer {
	cctx, ccancel := context.WithCancel(ctx)
	s := &anthropicStreamer{
		ctx: cctx,
		release: func() {
			ccancel()
			cancel()
		},
		stream: stream,
		chunks: make(chan Chunk, streamChunkBuffer),
	}
	go s.run(classify)
	return s
}

// Recv returns the next chunk, io.EOF after the stream completes, or the
// classified stream error.
func (s *anthropicStreamer) Recv() (Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return Chunk{}, err
	}
}

// Close aborts the pump and releases the SSE connection. It is safe to call
// concurrently with Recv.
func (s *anthropicStreamer) Close() error {
	s.release()
	return s.stream.Close()
}

func (s *anthropicStreamer) run(classify func(error) error) {
	defer close(s.chunks)
	defer func() { _ = s.stream.Close() }()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(classify(err))
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			}
			return
		}
		if err := s.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

// handle forwards the events this engine consumes: text deltas and the
// cumulative usage report. Tool, thinking, and lifecycle events are skipped.
func (s *anthropicStreamer) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockDeltaEvent:
		if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
			return s.emit(Chunk{Text: delta.Text})
		}
		return nil
	case sdk.MessageDeltaEvent:
		usage := models.TokenUsage{
			InputTokens:              ev.Usage.InputTokens,
			OutputTokens:             ev.Usage.OutputTokens,
			CacheCreationInputTokens: ev.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     ev.Usage.CacheReadInputTokens,
		}
		return s.emit(Chunk{Usage: &usage})
	default:
		return nil
	}
}

func (s *anthropicStreamer) emit(chunk Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- chunk:
		return nil
	}
}

func (s *anthropicStreamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet || err == nil {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *anthropicStreamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}
