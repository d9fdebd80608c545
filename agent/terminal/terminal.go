package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/avidalr/reactor/agent"
	"github.com/avidalr/reactor/session"
)

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
}

// New creates a new Terminal instance
func New(a *agent.Agent) *Terminal {
	return &Terminal{
		agent: a,
	}
}

// Run starts the interactive terminal session
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		if userInput == "/quit" || userInput == "/exit" {
			break
		}
		if strings.HasPrefix(userInput, "/") {
			t.runCommand(userInput)
			continue
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// runCommand handles the slash commands that inspect or adjust agent state.
func (t *Terminal) runCommand(input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/stats":
		t.printStats()
	case "/reset":
		tool := ""
		if len(fields) > 1 {
			tool = fields[1]
		}
		t.agent.ResetThrottle(tool)
		if tool == "" {
			fmt.Println("Cleared all tool failure counters.")
		} else {
			fmt.Printf("Cleared failure counter for `%s`.\n", tool)
		}
	default:
		fmt.Printf("Unknown command %s. Available: /stats, /reset [tool], /quit\n", fields[0])
	}
}

func (t *Terminal) printStats() {
	stats := t.agent.Stats()
	fmt.Printf("Tool calls in retention window: %d\n", stats.RecentCalls)
	if len(stats.MostCalled) > 0 {
		fmt.Println("Most called:")
		for _, tc := range stats.MostCalled {
			fmt.Printf("  %s: %d\n", tc.Tool, tc.Count)
		}
	}
	if len(stats.Failures) > 0 {
		fmt.Println("Consecutive failures:")
		for tool, n := range stats.Failures {
			fmt.Printf("  %s: %d\n", tool, n)
		}
	}
}

// processTurn handles a single user input turn
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	// Create callbacks for terminal-specific behavior
	callbacks := agent.ProcessCallbacks{
		OnThought: func(thought string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Thinking: %s\n", thought)
			}
		},
		OnAssistantMessage: func(message string) {
			fmt.Printf("Reactor: %s\n", message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			// Display tool call information based on verbosity
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Reactor wants to call tool `%s` with args: %v\n", toolCall.Name, toolCall.Args)
			} else if t.agent.Verbosity == agent.ToolVerbosityInfo {
				fmt.Printf("Reactor wants to call tool `%s`\n", toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			// Display tool result if verbosity is set to all
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			// In prompt mode, ask for user confirmation
			if t.agent.Mode == agent.ModePrompt {
				fmt.Print("Do you want to allow this? (y/n): ")
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				return strings.TrimSpace(strings.ToLower(answer)) == "y"
			}
			// In auto mode, always execute
			return true
		},
		OnWarning: func(warning string) {
			fmt.Printf("Warning: %s\n", warning)
		},
	}

	result, err := t.agent.ProcessUserInput(ctx, userInput, callbacks)
	if err != nil {
		return err
	}
	switch result.Outcome {
	case agent.TurnCancelled:
		fmt.Println("(turn cancelled)")
	case agent.TurnIterationLimit:
		fmt.Printf("(stopped after %d tool iterations)\n", result.Iterations)
	}
	return nil
}
