package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avidalr/reactor/agent"
	"github.com/avidalr/reactor/agent/rpc"
	"github.com/avidalr/reactor/agent/terminal"
	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/llm"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
	"github.com/avidalr/reactor/tools/mcp"
)

func main() {
	// Define flags
	modeFlag := flag.String("m", "", "Execution mode: 'auto' or 'prompt'")
	sessionFlag := flag.String("s", "", "Session name to create or use")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolVerbosityFlag := flag.String("tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	rpcFlag := flag.Bool("rpc", false, "Run as a JSON-RPC server over stdio")
	traceFlag := flag.Bool("trace", false, "Enable execution tracing to troubleshoot issues")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	var sess *session.Session
	sessionName := *sessionFlag

	if *resumeFlag != "" {
		// Resume session
		sessionName = *resumeFlag
		sess, err = session.Load(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session: %s\n", sessionName)
	} else {
		// Start new session
		if sessionName == "" {
			sessionName = defaultSessionName()
		}
		sess, err = session.New(sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Starting new session: %s\n", sessionName)
	}

	if *modeFlag == "" {
		*modeFlag = "prompt"
	}
	if *toolVerbosityFlag == "" {
		*toolVerbosityFlag = "none"
	}

	// Validate mode
	var opMode agent.Mode
	switch *modeFlag {
	case "auto":
		opMode = agent.ModeAuto
	case "prompt":
		opMode = agent.ModePrompt
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'auto' or 'prompt'.\n", *modeFlag)
		os.Exit(1)
	}

	// Validate tool verbosity
	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize the model backend
	var backend llm.Backend
	switch cfg.Backend {
	case "gemini":
		backend, err = llm.NewGeminiBackend(ctx, cfg.Model)
	case "openai":
		backend, err = llm.NewOpenAIBackend(ctx, cfg.Model)
	case "bedrock":
		backend, err = llm.NewBedrockBackend(ctx, cfg.Model)
	case "anthropic":
		backend, err = llm.NewAnthropicBackend(ctx, cfg.Model)
	default:
		backend = &llm.ScriptedBackend{}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s backend: %+v\n", cfg.Backend, err)
		os.Exit(1)
	}

	// Assemble tool registry: built-ins plus any configured MCP servers
	registry := tools.Registry(builtinRegistry())
	if len(cfg.AdditionalMCPServers) > 0 {
		mcpRegistry, err := mcp.NewRegistry(ctx, cfg.AdditionalMCPServers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting MCP servers: %+v\n", err)
			os.Exit(1)
		}
		defer mcpRegistry.Close()
		registry = tools.NewMulti(registry, mcpRegistry)
	}

	// Create the agent
	reactorAgent, err := agent.New(cfg, sess, backend, registry, opMode, verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}

	// First interrupt cancels the running turn; a second one exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		reactorAgent.RequestCancel()
		<-sigCh
		os.Exit(130)
	}()

	if *rpcFlag {
		in := bufio.NewReader(os.Stdin)
		out := bufio.NewWriter(os.Stdout)
		if err := rpc.Run(ctx, reactorAgent, in, out, traceFlag); err != nil {
			fmt.Fprintf(os.Stderr, "RPC mode failed: %+v\n", err)
			os.Exit(1)
		}
	} else {
		// Get initial prompt from remaining arguments
		initialPrompt := strings.Join(flag.Args(), " ")

		fmt.Println("Reactor is ready. Type your prompt.")
		term := terminal.New(reactorAgent)
		if err := term.Run(ctx, initialPrompt); err != nil {
			fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
			os.Exit(1)
		}
	}
}

// builtinRegistry holds the small set of tools available without any MCP
// server.
func builtinRegistry() *tools.StaticRegistry {
	registry := tools.NewStaticRegistry()
	registry.Register(tools.Definition{
		Name:        "echo",
		Description: "Echo the given text back to the caller.",
		Params: map[string]tools.ParamSpec{
			"text": {Type: "string", Required: true},
		},
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
	registry.Register(tools.Definition{
		Name:        "current_time",
		Description: "Return the current local time in RFC 3339 format.",
		Params:      map[string]tools.ParamSpec{},
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		return time.Now().Format(time.RFC3339), nil
	})
	return registry
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "reactor"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
