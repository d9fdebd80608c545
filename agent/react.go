package agent

import (
	"encoding/json"
	"strings"
)

// EventType classifies a semantic event recovered from model output.
type EventType string

const (
	EventThought     EventType = "thought"
	EventToolCall    EventType = "tool_call"
	EventFinalAnswer EventType = "final_answer"
	EventParseError  EventType = "parse_error"
)

// Event is one semantic unit of a model response: a reasoning step, a tool
// invocation request, the final answer, or an argument-text parse failure
// (Text then carries the raw unparseable input).
type Event struct {
	Type      EventType
	Text      string
	CallID    string
	ToolName  string
	Arguments map[string]interface{}
}

type parserSection int

const (
	sectionScanning parserSection = iota
	sectionThought
	sectionActionName
	sectionActionInput
	sectionDone
)

// Parser is an incremental parser for the reasoning/action text protocol:
// alternating "Thought:", "Action:" and "Action Input:" sections, with an
// action name of "Final Answer" routing the input text into the final answer.
//
// Feeding identical content split across any number of chunks yields the same
// event sequence as feeding it whole: input is consumed one complete line at
// a time, so a marker split across chunks stays buffered until its line ends.
// A Parser drives one turn; create a fresh one per response.
type Parser struct {
	section    parserSection
	partial    string
	preamble   []string
	thought    []string
	actionName string
	input      []string
	sawMarker  bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes the next chunk of streamed text and returns the events that
// became unambiguous.
func (p *Parser) Feed(chunk string) []Event {
	if p.section == sectionDone {
		return nil
	}
	var events []Event
	p.partial += chunk
	for {
		idx := strings.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		line := p.partial[:idx]
		p.partial = p.partial[idx+1:]
		events = append(events, p.consumeLine(line)...)
	}
	return events
}

// Close flushes the parser at end of stream. An open section is closed and
// emitted; if no marker was recognized in the whole stream, the accumulated
// text becomes an implicit final answer (fallback policy for backends that
// answer in plain prose). Trailing text that follows a completed cycle is
// dropped, matching the behavior of marker-delimited extraction.
func (p *Parser) Close() []Event {
	if p.section == sectionDone {
		return nil
	}
	var events []Event
	if p.partial != "" {
		line := p.partial
		p.partial = ""
		events = append(events, p.consumeLine(line)...)
	}
	switch p.section {
	case sectionThought:
		events = append(events, p.closeThought()...)
	case sectionActionName, sectionActionInput:
		events = append(events, p.closeAction()...)
	case sectionScanning:
		if !p.sawMarker {
			if text := joinTrimmed(p.preamble); text != "" {
				events = append(events, Event{Type: EventFinalAnswer, Text: text})
			}
		}
	}
	p.section = sectionDone
	return events
}

func (p *Parser) consumeLine(line string) []Event {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	// "Action Input:" must be tested before "Action:".
	switch {
	case strings.HasPrefix(lower, "action input:"):
		return p.onActionInputMarker(line, strings.TrimSpace(trimmed[len("action input:"):]))
	case strings.HasPrefix(lower, "action:"):
		return p.onActionMarker(strings.TrimSpace(trimmed[len("action:"):]))
	case strings.HasPrefix(lower, "thought:"):
		return p.onThoughtMarker(strings.TrimSpace(trimmed[len("thought:"):]))
	}

	switch p.section {
	case sectionScanning:
		p.preamble = append(p.preamble, line)
	case sectionThought:
		p.thought = append(p.thought, line)
	case sectionActionName:
		// Stray text between Action and Action Input carries no meaning.
	case sectionActionInput:
		p.input = append(p.input, line)
		return p.tryCompleteToolInput()
	}
	return nil
}

func (p *Parser) onThoughtMarker(rest string) []Event {
	events := p.closeCurrent()
	p.sawMarker = true
	p.section = sectionThought
	p.thought = nil
	if rest != "" {
		p.thought = append(p.thought, rest)
	}
	return events
}

func (p *Parser) onActionMarker(rest string) []Event {
	events := p.closeCurrent()
	p.sawMarker = true
	p.section = sectionActionName
	p.actionName = rest
	p.input = nil
	return events
}

func (p *Parser) onActionInputMarker(raw string, rest string) []Event {
	if p.section != sectionActionName {
		// Without a pending action the marker is ordinary content.
		return p.consumeContentLine(raw)
	}
	p.sawMarker = true
	p.section = sectionActionInput
	p.input = nil
	if rest != "" {
		p.input = append(p.input, rest)
	}
	return p.tryCompleteToolInput()
}

func (p *Parser) consumeContentLine(line string) []Event {
	switch p.section {
	case sectionScanning:
		p.preamble = append(p.preamble, line)
	case sectionThought:
		p.thought = append(p.thought, line)
	case sectionActionInput:
		p.input = append(p.input, line)
		return p.tryCompleteToolInput()
	}
	return nil
}

// closeCurrent closes whatever section is open ahead of a new marker.
func (p *Parser) closeCurrent() []Event {
	switch p.section {
	case sectionThought:
		return p.closeThought()
	case sectionActionName, sectionActionInput:
		return p.closeAction()
	}
	return nil
}

func (p *Parser) closeThought() []Event {
	text := joinTrimmed(p.thought)
	p.thought = nil
	p.section = sectionScanning
	if text == "" {
		return nil
	}
	return []Event{{Type: EventThought, Text: text}}
}

// closeAction emits the event for a finished action cycle: a final answer,
// a tool call, or a parse error carrying the raw argument text.
func (p *Parser) closeAction() []Event {
	name := p.actionName
	text := joinTrimmed(p.input)
	p.actionName = ""
	p.input = nil
	p.section = sectionScanning

	if isFinalAnswer(name) {
		return []Event{{Type: EventFinalAnswer, Text: text}}
	}
	if text == "" {
		// An action with no input section is a call with no arguments.
		return []Event{{Type: EventToolCall, ToolName: name, Arguments: map[string]interface{}{}}}
	}
	args, ok := parseArguments(text)
	if !ok {
		return []Event{{Type: EventParseError, ToolName: name, Text: text}}
	}
	return []Event{{Type: EventToolCall, ToolName: name, Arguments: args}}
}

// tryCompleteToolInput emits a tool call as soon as the accumulated input is
// a complete JSON object, so a call is not held back until the next marker.
// Final-answer text is free-form and only closes on a marker or end of stream.
func (p *Parser) tryCompleteToolInput() []Event {
	if isFinalAnswer(p.actionName) {
		return nil
	}
	text := joinTrimmed(p.input)
	if !strings.HasPrefix(text, "{") || !json.Valid([]byte(text)) {
		return nil
	}
	args, ok := parseArguments(text)
	if !ok {
		return nil
	}
	name := p.actionName
	p.actionName = ""
	p.input = nil
	p.section = sectionScanning
	return []Event{{Type: EventToolCall, ToolName: name, Arguments: args}}
}

func parseArguments(text string) (map[string]interface{}, bool) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(text), &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, true
}

func isFinalAnswer(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "final answer", "finalanswer":
		return true
	}
	return false
}

func joinTrimmed(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
