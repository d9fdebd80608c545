// Package terminal implements the command-line interface (CLI) mode for the
// Reactor agent.
//
// It provides an interactive terminal session where users converse with the
// agent, approve tool executions (in prompt mode), and inspect throttler
// state through slash commands. It is one of the two interaction modes:
//   - Terminal mode: interactive CLI for direct use
//   - RPC mode: JSON-RPC over stdio for editor and bridge integration
//
// # Usage
//
//	a, err := agent.New(cfg, sess, backend, registry, mode, verbosity)
//	if err != nil {
//	    // handle error
//	}
//
//	term := terminal.New(a)
//	err = term.Run(ctx, initialPrompt)
//
// # Commands
//
//   - /stats: show recent tool call counts and live failure counters
//   - /reset [tool]: clear failure counters for one tool, or all of them
//   - /quit, /exit: end the session
//
// # Modes and verbosity
//
// In prompt mode every tool execution asks for confirmation; auto mode runs
// tools without asking. Verbosity controls how much of each tool call is
// shown: none, the tool name (info), or names plus arguments and results
// (all).
package terminal
