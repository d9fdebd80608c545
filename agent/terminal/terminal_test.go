package terminal

import (
	"context"
	"strings"
	"testing"

	"github.com/avidalr/reactor/agent"
	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/llm"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

func newTestAgent(t *testing.T, mode agent.Mode, verbosity agent.ToolVerbosity) *agent.Agent {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	sess, err := session.New("terminal-test-" + strings.ReplaceAll(t.Name(), "/", "_"))
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	backend := &llm.ScriptedBackend{
		Responses: []llm.ScriptedResponse{
			{Text: "Action: Final Answer\nAction Input: done\n"},
		},
	}
	a, err := agent.New(cfg, sess, backend, tools.NewStaticRegistry(), mode, verbosity)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return a
}

func TestTerminalNew(t *testing.T) {
	t.Chdir(t.TempDir())
	a := newTestAgent(t, agent.ModeAuto, agent.ToolVerbosityNone)

	term := New(a)
	if term == nil {
		t.Fatal("Expected terminal instance, got nil")
	}
	if term.agent != a {
		t.Fatal("Terminal agent doesn't match the provided agent")
	}
}

func TestTerminalProcessTurn(t *testing.T) {
	t.Chdir(t.TempDir())

	testCases := []struct {
		name      string
		mode      agent.Mode
		verbosity agent.ToolVerbosity
	}{
		{"AutoModeNoVerbosity", agent.ModeAuto, agent.ToolVerbosityNone},
		{"AutoModeInfoVerbosity", agent.ModeAuto, agent.ToolVerbosityInfo},
		{"AutoModeAllVerbosity", agent.ModeAuto, agent.ToolVerbosityAll},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			term := New(newTestAgent(t, tc.mode, tc.verbosity))
			if err := term.processTurn(context.Background(), "test input"); err != nil {
				t.Errorf("processTurn failed: %v", err)
			}
		})
	}
}
