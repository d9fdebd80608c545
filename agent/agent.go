package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/errors"
	"github.com/avidalr/reactor/llm"
	"github.com/avidalr/reactor/session"
	"github.com/avidalr/reactor/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// TurnOutcome says how a turn ended.
type TurnOutcome string

const (
	TurnDone           TurnOutcome = "done"
	TurnCancelled      TurnOutcome = "cancelled"
	TurnIterationLimit TurnOutcome = "iteration_limit"
)

// TurnResult reports one completed call to ProcessUserInput.
type TurnResult struct {
	Outcome     TurnOutcome
	FinalAnswer string
	Iterations  int
}

// ProcessCallbacks lets an interaction mode (terminal, RPC server) observe
// and steer a turn without the core loop knowing about it. Nil fields are
// skipped.
type ProcessCallbacks struct {
	OnThought          func(thought string)
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	ShouldExecuteTool  func(toolCall session.ToolCall) bool
	OnWarning          func(warning string)
}

// Agent drives the model/tool loop for one conversation. A single Agent
// serves one session; RequestCancel and Stats may be called from other
// goroutines while a turn runs.
type Agent struct {
	Config    *config.Config
	Session   *session.Session
	Backend   llm.Backend
	Registry  tools.Registry
	Mode      Mode
	Verbosity ToolVerbosity

	throttler *Throttler
	validator *Validator

	cancelRequested atomic.Bool
	active          atomic.Bool
}

func New(cfg *config.Config, sess *session.Session, backend llm.Backend, registry tools.Registry, mode Mode, verbosity ToolVerbosity) (*Agent, error) {
	if backend == nil {
		return nil, errors.New("agent requires a backend")
	}
	if registry == nil {
		return nil, errors.New("agent requires a tool registry")
	}
	throttler := NewThrottler(cfg.Throttle)
	return &Agent{
		Config:    cfg,
		Session:   sess,
		Backend:   backend,
		Registry:  registry,
		Mode:      mode,
		Verbosity: verbosity,
		throttler: throttler,
		validator: NewValidator(cfg.Validation, throttler),
	}, nil
}

// RequestCancel flags the running turn for cancellation. Safe to call from
// any goroutine, and a no-op when no turn is active; the flag clears when
// the turn ends.
func (a *Agent) RequestCancel() {
	a.cancelRequested.Store(true)
}

// Stats exposes throttler state for admin surfaces.
func (a *Agent) Stats() ThrottleStats {
	return a.throttler.Stats()
}

// ResetThrottle clears failure counters for one tool, or all of them when
// tool is empty.
func (a *Agent) ResetThrottle(tool string) {
	a.throttler.Reset(tool)
}

// ProcessUserInput runs one full turn: append the user message, then
// alternate model streaming with tool execution until the model produces a
// final answer, the iteration cap is reached, or cancellation wins. Only one
// turn may run at a time.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) (*TurnResult, error) {
	return a.ProcessUserInputInSession(ctx, nil, userInput, callbacks)
}

// ProcessUserInputInSession runs the turn against sess instead of the
// agent's current session. The swap happens only after the turn slot is
// acquired, so a rejected concurrent prompt cannot replace the session the
// active turn is using. A nil sess keeps the current one.
func (a *Agent) ProcessUserInputInSession(ctx context.Context, sess *session.Session, userInput string, callbacks ProcessCallbacks) (*TurnResult, error) {
	if !a.active.CompareAndSwap(false, true) {
		return nil, errors.New("a turn is already in progress")
	}
	defer a.active.Store(false)
	defer a.cancelRequested.Store(false)

	if sess != nil {
		a.Session = sess
	}
	a.ensureSystemPrompt()
	a.Session.AddMessage(session.Message{Role: session.RoleUser, Content: userInput})

	defs := a.Registry.List()
	defIndex := make(map[string]tools.Definition, len(defs))
	for _, def := range defs {
		defIndex[def.Name] = def
	}

	for iteration := 1; iteration <= a.Config.MaxIterations; iteration++ {
		events, text, cancelled, err := a.streamPhase(ctx, defs)
		if cancelled {
			return &TurnResult{Outcome: TurnCancelled, Iterations: iteration}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "backend stream failed")
		}

		assistant := session.Message{Role: session.RoleAssistant, Content: text}
		for _, ev := range events {
			if ev.Type == EventToolCall {
				assistant.ToolCalls = append(assistant.ToolCalls, session.ToolCall{
					ToolCallID: ev.CallID, Name: ev.ToolName, Args: ev.Arguments,
				})
			}
		}
		a.Session.AddMessage(assistant)
		if text != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(text)
		}

		var finalAnswer *string
		madeToolCall := false
		fedBackError := false
		for _, ev := range events {
			switch ev.Type {
			case EventThought:
				if callbacks.OnThought != nil {
					callbacks.OnThought(ev.Text)
				}
			case EventFinalAnswer:
				if finalAnswer == nil {
					answer := ev.Text
					finalAnswer = &answer
				}
			case EventParseError:
				a.addObservation(formatParseError(ev.ToolName, ev.Text), nil)
				fedBackError = true
			case EventToolCall:
				if a.cancelRequested.Load() || ctx.Err() != nil {
					a.saveSession(callbacks)
					return &TurnResult{Outcome: TurnCancelled, Iterations: iteration}, nil
				}
				madeToolCall = true
				a.handleToolCall(ctx, ev, defIndex, callbacks)
			}
			if finalAnswer != nil {
				break
			}
		}

		a.saveSession(callbacks)

		if finalAnswer != nil {
			return &TurnResult{Outcome: TurnDone, FinalAnswer: *finalAnswer, Iterations: iteration}, nil
		}
		if !madeToolCall && !fedBackError {
			// Nothing actionable and nothing fed back; the turn cannot
			// progress. Marker-free prose already arrives as a final_answer
			// event, so this only catches thought-only responses.
			return &TurnResult{Outcome: TurnDone, FinalAnswer: text, Iterations: iteration}, nil
		}
	}

	notice := fmt.Sprintf("Stopping: reached the limit of %d tool iterations for this turn.", a.Config.MaxIterations)
	a.Session.AddMessage(session.Message{Role: session.RoleAssistant, Content: notice})
	a.saveSession(callbacks)
	return &TurnResult{Outcome: TurnIterationLimit, Iterations: a.Config.MaxIterations}, nil
}

// streamPhase runs one model response to completion while a monitor watches
// the cancellation flag. The stream consumer and the poll ticker race in a
// select; whichever finishes first decides the phase.
func (a *Agent) streamPhase(ctx context.Context, defs []tools.Definition) (events []Event, text string, cancelled bool, err error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	history := append([]session.Message(nil), a.Session.Messages...)
	eventCh := make(chan Event)
	doneCh := make(chan streamResult, 1)
	go consumeStream(streamCtx, a.Backend, history, defs, eventCh, doneCh)

	ticker := time.NewTicker(a.Config.CancelPollInterval())
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			events = append(events, ev)
		case res := <-doneCh:
			return events, res.text, false, res.err
		case <-ticker.C:
			if a.cancelRequested.Load() || ctx.Err() != nil {
				cancel()
				return events, "", true, nil
			}
		}
	}
}

// handleToolCall validates, optionally executes, and records one requested
// call. Every path appends exactly one observation so the model always sees
// an outcome; invalid calls never reach the registry.
func (a *Agent) handleToolCall(ctx context.Context, ev Event, defIndex map[string]tools.Definition, callbacks ProcessCallbacks) {
	call := session.ToolCall{ToolCallID: ev.CallID, Name: ev.ToolName, Args: ev.Arguments}
	if callbacks.OnToolCall != nil {
		callbacks.OnToolCall(call)
	}

	verdict := a.validator.ValidateCall(defIndex, call.Name, call.Args)
	if verdict.Outcome != OutcomeValid {
		if callbacks.OnWarning != nil {
			callbacks.OnWarning(verdict.Reason)
		}
		a.addObservation(formatInvalidCall(verdict), &call)
		return
	}

	if callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(call) {
		a.addObservation(skippedObservation, &call)
		return
	}

	output, execErr := a.Registry.Execute(ctx, call.Name, call.Args)
	for _, warning := range a.validator.ValidateResponse(call.Name, output, execErr) {
		if callbacks.OnWarning != nil {
			callbacks.OnWarning(warning)
		}
	}
	if execErr != nil {
		a.addObservation(formatToolError(call.Name, execErr), &call)
		return
	}
	if callbacks.OnToolResult != nil {
		callbacks.OnToolResult(call, output)
	}
	a.addObservation(formatObservation(output), &call)
}

// addObservation appends an observation message. The originating call rides
// along so backends with native tool calling can pair it with its request.
func (a *Agent) addObservation(content string, call *session.ToolCall) {
	msg := session.Message{Role: session.RoleObservation, Content: content}
	if call != nil {
		msg.ToolCalls = []session.ToolCall{*call}
	}
	a.Session.AddMessage(msg)
}

// ensureSystemPrompt seeds a fresh session with the protocol instructions.
func (a *Agent) ensureSystemPrompt() {
	for _, msg := range a.Session.Messages {
		if msg.Role == session.RoleSystem {
			return
		}
	}
	a.Session.AddMessage(session.Message{Role: session.RoleSystem, Content: SystemPrompt(a.Registry.List())})
}

func (a *Agent) saveSession(callbacks ProcessCallbacks) {
	if err := a.Session.Save(); err != nil && callbacks.OnWarning != nil {
		callbacks.OnWarning(fmt.Sprintf("failed to save session: %v", err))
	}
}
