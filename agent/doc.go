// Package agent contains the core orchestration loop shared by the terminal
// and RPC interaction modes: streaming model responses, recovering semantic
// events from the reasoning/action text protocol, validating and throttling
// tool calls, and feeding observations back into the conversation.
//
// # Architecture
//
//   - Core agent (this package): the Agent type, the incremental protocol
//     parser, the tool-call validator, and the throttler
//   - Terminal subpackage (agent/terminal): interactive CLI mode
//   - RPC subpackage (agent/rpc): JSON-RPC server over stdio for editor and
//     bridge integration
//
// # Turn lifecycle
//
// ProcessUserInput appends the user message and then alternates two phases
// until the turn ends: a streaming phase consuming one model response, and a
// tool phase executing the calls that response requested. The turn ends with
// a final answer, on cancellation, or at the iteration cap. During the
// streaming phase a monitor polls the cancellation flag so RequestCancel
// takes effect promptly even while the backend is producing output.
//
// # Callbacks
//
// The ProcessCallbacks structure lets each interaction mode decide how to
// surface thoughts, tool calls, results, and warnings, and whether a given
// tool call may run. The same core loop serves the terminal (printing,
// prompting for approval) and the RPC server (JSON-RPC notifications).
package agent
