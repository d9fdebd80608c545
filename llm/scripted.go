package llm

import (
	"context"

	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

// ScriptedResponse is one pre-recorded backend response. Text is delivered as
// text deltas split into Chunks pieces (1 when zero); ToolCalls, if any, are
// delivered batched on the terminal fragment. Stall makes the stream block
// until the context is cancelled, which cancellation tests rely on.
type ScriptedResponse struct {
	Text      string
	Chunks    int
	ToolCalls []session.ToolCall
	Stall     bool
}

// ScriptedBackend replays a fixed list of responses, one per Stream call.
// Once the script is exhausted every further call repeats the last response.
// It is the default backend when no provider is configured, and the backend
// used throughout the tests.
type ScriptedBackend struct {
	Responses []ScriptedResponse
	calls     int
}

func (b *ScriptedBackend) Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error) {
	if len(b.Responses) == 0 {
		return &scriptedStream{ctx: ctx, fragments: []Fragment{{Done: true}}}, nil
	}
	idx := b.calls
	if idx >= len(b.Responses) {
		idx = len(b.Responses) - 1
	}
	b.calls++
	resp := b.Responses[idx]

	if resp.Stall {
		return &scriptedStream{ctx: ctx, stall: true}, nil
	}

	var fragments []Fragment
	if resp.Text != "" {
		chunks := resp.Chunks
		if chunks <= 0 {
			chunks = 1
		}
		fragments = append(fragments, splitDeltas(resp.Text, chunks)...)
	}
	fragments = append(fragments, Fragment{ToolCalls: resp.ToolCalls, Done: true})
	return &scriptedStream{ctx: ctx, fragments: fragments}, nil
}

// Calls reports how many times the backend has been asked for a stream.
func (b *ScriptedBackend) Calls() int { return b.calls }

type scriptedStream struct {
	ctx       context.Context
	fragments []Fragment
	next      int
	stall     bool
}

func (s *scriptedStream) Recv() (Fragment, error) {
	if s.stall {
		<-s.ctx.Done()
		return Fragment{}, s.ctx.Err()
	}
	if err := s.ctx.Err(); err != nil {
		return Fragment{}, err
	}
	if s.next >= len(s.fragments) {
		return Fragment{Done: true}, nil
	}
	f := s.fragments[s.next]
	s.next++
	return f, nil
}

func (s *scriptedStream) Close() error { return nil }

func splitDeltas(text string, chunks int) []Fragment {
	if chunks > len(text) {
		chunks = len(text)
	}
	size := len(text) / chunks
	var out []Fragment
	for i := 0; i < chunks; i++ {
		start := i * size
		end := start + size
		if i == chunks-1 {
			end = len(text)
		}
		out = append(out, Fragment{TextDelta: text[start:end]})
	}
	return out
}
