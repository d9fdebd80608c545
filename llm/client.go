package llm

import (
	"context"

	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

// Fragment is one unit of a backend response stream. Exactly one of the
// delivery styles applies per fragment: a text delta (incremental delivery,
// parsed by the reasoning/action parser) or a batch of structured tool calls.
// Done marks the terminal fragment; a terminal fragment may itself carry the
// batched tool calls.
type Fragment struct {
	TextDelta string
	ToolCalls []session.ToolCall
	Done      bool
}

// Stream yields fragments as the backend produces them. Recv blocks until a
// fragment is available; it returns io.EOF-free semantics through the Done
// flag instead, and a non-nil error only on transport failure or context
// cancellation. Close releases the underlying transport.
type Stream interface {
	Recv() (Fragment, error)
	Close() error
}

// Backend is the interface for a streaming text-generation backend.
type Backend interface {
	Stream(ctx context.Context, messages []session.Message, defs []tools.Definition) (Stream, error)
}
