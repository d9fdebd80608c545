package agent

import (
	"strings"
	"testing"
)

func feedAll(p *Parser, chunks ...string) []Event {
	var events []Event
	for _, chunk := range chunks {
		events = append(events, p.Feed(chunk)...)
	}
	events = append(events, p.Close()...)
	return events
}

func TestParserCompleteCycle(t *testing.T) {
	response := "Thought: x\nAction: Echo\nAction Input: {\"text\": \"hi\"}\n"

	events := feedAll(NewParser(), response)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventThought || events[0].Text != "x" {
		t.Errorf("Expected thought 'x', got %+v", events[0])
	}
	if events[1].Type != EventToolCall || events[1].ToolName != "Echo" {
		t.Errorf("Expected tool call to Echo, got %+v", events[1])
	}
	if got := events[1].Arguments["text"]; got != "hi" {
		t.Errorf("Expected text arg 'hi', got %v", got)
	}
}

func TestParserToolCallEmittedBeforeClose(t *testing.T) {
	// The call must surface as soon as its JSON is complete, without
	// waiting for the end of the stream.
	p := NewParser()
	events := p.Feed("Thought: x\nAction: Echo\nAction Input: {\"text\": \"hi\"}\n")
	found := false
	for _, ev := range events {
		if ev.Type == EventToolCall {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected tool call from Feed alone, got %+v", events)
	}
}

func TestParserChunkInvariance(t *testing.T) {
	response := "Thought: I should echo this back.\nAction: Echo\nAction Input: {\"text\": \"hello world\"}\n"

	whole := feedAll(NewParser(), response)

	// Split the response at every possible boundary pair.
	for i := 0; i <= len(response); i++ {
		for j := i; j <= len(response); j++ {
			split := feedAll(NewParser(), response[:i], response[i:j], response[j:])
			if len(split) != len(whole) {
				t.Fatalf("Split (%d,%d): expected %d events, got %d", i, j, len(whole), len(split))
			}
			for k := range whole {
				if split[k].Type != whole[k].Type || split[k].Text != whole[k].Text || split[k].ToolName != whole[k].ToolName {
					t.Fatalf("Split (%d,%d): event %d differs: %+v vs %+v", i, j, k, split[k], whole[k])
				}
			}
		}
	}
}

func TestParserMarkerSplitAcrossChunks(t *testing.T) {
	events := feedAll(NewParser(), "Thought: plan\nAct", "ion: Echo\nAction In", "put: {\"text\": \"a\"}\n")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %+v", events)
	}
	if events[1].Type != EventToolCall || events[1].ToolName != "Echo" {
		t.Errorf("Expected Echo tool call, got %+v", events[1])
	}
}

func TestParserFinalAnswer(t *testing.T) {
	events := feedAll(NewParser(), "Thought: done\nAction: Final Answer\nAction Input: The answer is 4.\n")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %+v", events)
	}
	if events[1].Type != EventFinalAnswer || events[1].Text != "The answer is 4." {
		t.Errorf("Expected final answer event, got %+v", events[1])
	}
}

func TestParserMultilineFinalAnswer(t *testing.T) {
	events := feedAll(NewParser(), "Action: Final Answer\nAction Input: line one\nline two\nline three")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %+v", events)
	}
	want := "line one\nline two\nline three"
	if events[0].Type != EventFinalAnswer || events[0].Text != want {
		t.Errorf("Expected multiline final answer %q, got %+v", want, events[0])
	}
}

func TestParserImplicitFinalAnswer(t *testing.T) {
	// Plain prose with no protocol markers falls back to a final answer.
	events := feedAll(NewParser(), "Just a plain answer\nwith two lines.")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %+v", events)
	}
	if events[0].Type != EventFinalAnswer || events[0].Text != "Just a plain answer\nwith two lines." {
		t.Errorf("Expected implicit final answer, got %+v", events[0])
	}
}

func TestParserInvalidJSONInput(t *testing.T) {
	events := feedAll(NewParser(), "Action: Echo\nAction Input: {not json")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %+v", events)
	}
	ev := events[0]
	if ev.Type != EventParseError {
		t.Fatalf("Expected parse error, got %+v", ev)
	}
	if ev.ToolName != "Echo" || !strings.Contains(ev.Text, "{not json") {
		t.Errorf("Parse error should carry the tool and raw input, got %+v", ev)
	}
}

func TestParserActionWithoutInput(t *testing.T) {
	events := feedAll(NewParser(), "Action: current_time\n")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %+v", events)
	}
	if events[0].Type != EventToolCall || events[0].ToolName != "current_time" || len(events[0].Arguments) != 0 {
		t.Errorf("Expected parameterless tool call, got %+v", events[0])
	}
}

func TestParserMultipleCycles(t *testing.T) {
	response := "Thought: first\nAction: A\nAction Input: {\"n\": 1}\n" +
		"Thought: second\nAction: B\nAction Input: {\"n\": 2}\n"

	events := feedAll(NewParser(), response)
	var kinds []EventType
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	want := []EventType{EventThought, EventToolCall, EventThought, EventToolCall}
	if len(kinds) != len(want) {
		t.Fatalf("Expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, kinds)
		}
	}
	if events[1].ToolName != "A" || events[3].ToolName != "B" {
		t.Errorf("Tool order wrong: %+v", events)
	}
}

func TestParserCaseInsensitiveMarkers(t *testing.T) {
	events := feedAll(NewParser(), "thought: lower\naction: Echo\naction input: {\"text\": \"a\"}\n")
	if len(events) != 2 || events[1].Type != EventToolCall {
		t.Fatalf("Expected markers to match case-insensitively, got %+v", events)
	}
}

func TestParserMultilineJSONInput(t *testing.T) {
	events := feedAll(NewParser(), "Action: Write\nAction Input: {\n  \"path\": \"a.txt\",\n  \"content\": \"x\"\n}\n")
	if len(events) != 1 || events[0].Type != EventToolCall {
		t.Fatalf("Expected one tool call, got %+v", events)
	}
	if events[0].Arguments["path"] != "a.txt" {
		t.Errorf("Expected path argument, got %+v", events[0].Arguments)
	}
}

func TestParserNonObjectInputIsParseError(t *testing.T) {
	events := feedAll(NewParser(), "Action: Echo\nAction Input: [1, 2, 3]")
	if len(events) != 1 || events[0].Type != EventParseError {
		t.Fatalf("Expected parse error for non-object input, got %+v", events)
	}
}
