package agent

import (
	"context"
	"strings"

	"github.com/avidalr/reactor/llm"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

// streamResult is the terminal report of one streaming phase: the full
// assistant text and the error that ended the stream, if any.
type streamResult struct {
	text string
	err  error
}

// consumeStream drives one backend stream to completion, forwarding semantic
// events on events and reporting once on done. Text deltas go through an
// incremental protocol parser; structured tool-call fragments bypass it, so a
// backend may deliver calls either way within the same response.
//
// All event sends race ctx so a cancelled orchestrator never strands this
// goroutine; events is closed when the stream ends, and done has room for the
// final send even if nobody is listening.
func consumeStream(ctx context.Context, backend llm.Backend, history []session.Message, defs []tools.Definition, events chan<- Event, done chan<- streamResult) {
	defer close(events)

	emit := func(evs []Event) bool {
		for _, ev := range evs {
			select {
			case events <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	stream, err := backend.Stream(ctx, history, defs)
	if err != nil {
		done <- streamResult{err: err}
		return
	}
	defer stream.Close()

	parser := NewParser()
	var text strings.Builder
	for {
		frag, err := stream.Recv()
		if err != nil {
			done <- streamResult{text: text.String(), err: err}
			return
		}
		if frag.TextDelta != "" {
			text.WriteString(frag.TextDelta)
			if !emit(parser.Feed(frag.TextDelta)) {
				done <- streamResult{text: text.String(), err: ctx.Err()}
				return
			}
		}
		for _, call := range frag.ToolCalls {
			ev := Event{Type: EventToolCall, CallID: call.ToolCallID, ToolName: call.Name, Arguments: call.Args}
			if !emit([]Event{ev}) {
				done <- streamResult{text: text.String(), err: ctx.Err()}
				return
			}
		}
		if frag.Done {
			if !emit(parser.Close()) {
				done <- streamResult{text: text.String(), err: ctx.Err()}
				return
			}
			done <- streamResult{text: text.String()}
			return
		}
	}
}
