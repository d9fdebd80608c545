package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/tools"
)

func testDefs() map[string]tools.Definition {
	return map[string]tools.Definition{
		"read_file": {
			Name:        "read_file",
			Description: "Read a file",
			Params: map[string]tools.ParamSpec{
				"path":  {Type: "string", Required: true},
				"limit": {Type: "integer", Required: false},
			},
		},
		"write_file": {
			Name:        "write_file",
			Description: "Write a file",
			Params: map[string]tools.ParamSpec{
				"path":    {Type: "string", Required: true},
				"content": {Type: "string", Required: true},
			},
		},
		"search": {
			Name:        "search",
			Description: "Search",
			Params: map[string]tools.ParamSpec{
				"query": {Type: "string", Required: true},
			},
		},
	}
}

func newTestValidator() (*Validator, *Throttler) {
	throttler, _ := newTestThrottler()
	cfg := config.Validation{
		ResponseWarnKB:  100,
		RestrictedPaths: []string{".reactor", ".reactor/**"},
	}
	return NewValidator(cfg, throttler), throttler
}

func TestValidateCallValid(t *testing.T) {
	validator, _ := newTestValidator()
	result := validator.ValidateCall(testDefs(), "read_file", map[string]interface{}{"path": "a.txt"})
	if result.Outcome != OutcomeValid {
		t.Fatalf("Expected valid, got %s: %s", result.Outcome, result.Reason)
	}
}

func TestValidateCallUnknownToolSuggestions(t *testing.T) {
	validator, _ := newTestValidator()
	result := validator.ValidateCall(testDefs(), "read_fil", nil)
	if result.Outcome != OutcomeUnknownTool {
		t.Fatalf("Expected unknown_tool, got %s", result.Outcome)
	}
	if len(result.Suggestions) == 0 || result.Suggestions[0] != "read_file" {
		t.Errorf("Expected read_file as first suggestion, got %v", result.Suggestions)
	}
	if len(result.Suggestions) > 3 {
		t.Errorf("At most 3 suggestions allowed, got %v", result.Suggestions)
	}
	if !strings.Contains(result.Reason, "read_file") {
		t.Errorf("Reason should name the suggestion: %s", result.Reason)
	}
}

func TestValidateCallUnknownToolNoCloseMatch(t *testing.T) {
	validator, _ := newTestValidator()
	result := validator.ValidateCall(testDefs(), "zzzzzzzz", nil)
	if result.Outcome != OutcomeUnknownTool {
		t.Fatalf("Expected unknown_tool, got %s", result.Outcome)
	}
	if len(result.Suggestions) != 0 {
		t.Errorf("Expected no suggestions for a distant name, got %v", result.Suggestions)
	}
}

func TestValidateCallMissingParams(t *testing.T) {
	validator, _ := newTestValidator()
	result := validator.ValidateCall(testDefs(), "write_file", map[string]interface{}{})
	if result.Outcome != OutcomeBadParams {
		t.Fatalf("Expected bad_params, got %s", result.Outcome)
	}
	// Both missing parameters must be named, in stable order.
	if !strings.Contains(result.Reason, "content, path") {
		t.Errorf("Expected both missing params named: %s", result.Reason)
	}
}

func TestValidateCallUnknownParams(t *testing.T) {
	validator, _ := newTestValidator()
	result := validator.ValidateCall(testDefs(), "search", map[string]interface{}{
		"query": "x",
		"qerry": "typo",
	})
	if result.Outcome != OutcomeBadParams {
		t.Fatalf("Expected bad_params, got %s", result.Outcome)
	}
	if !strings.Contains(result.Reason, "qerry") || !strings.Contains(result.Reason, "query") {
		t.Errorf("Reason should name the unknown param and the accepted ones: %s", result.Reason)
	}
}

func TestValidateCallTypeMismatch(t *testing.T) {
	validator, _ := newTestValidator()

	result := validator.ValidateCall(testDefs(), "read_file", map[string]interface{}{"path": 42.0})
	if result.Outcome != OutcomeBadParams {
		t.Fatalf("Expected bad_params for number as string, got %s", result.Outcome)
	}

	// JSON decodes numbers as float64; whole values satisfy integer.
	result = validator.ValidateCall(testDefs(), "read_file", map[string]interface{}{"path": "a.txt", "limit": 10.0})
	if result.Outcome != OutcomeValid {
		t.Errorf("Whole float should satisfy integer, got %s: %s", result.Outcome, result.Reason)
	}

	result = validator.ValidateCall(testDefs(), "read_file", map[string]interface{}{"path": "a.txt", "limit": 10.5})
	if result.Outcome != OutcomeBadParams {
		t.Errorf("Fractional float should fail integer, got %s", result.Outcome)
	}
}

func TestValidateCallThrottled(t *testing.T) {
	validator, throttler := newTestValidator()

	for i := 0; i < 3; i++ {
		throttler.RecordResult("search", false)
	}

	result := validator.ValidateCall(testDefs(), "search", map[string]interface{}{"query": "x"})
	if result.Outcome != OutcomeThrottled {
		t.Fatalf("Expected throttled after 3 consecutive failures, got %s", result.Outcome)
	}
	if result.Reason == "" {
		t.Error("Expected a throttle reason")
	}
}

func TestValidateResponseRecordsOutcome(t *testing.T) {
	validator, throttler := newTestValidator()

	validator.ValidateResponse("search", "ok", nil)
	validator.ValidateResponse("search", "", fmt.Errorf("boom"))

	stats := throttler.Stats()
	if stats.RecentCalls != 2 {
		t.Errorf("Exactly one record per execution expected, got %d", stats.RecentCalls)
	}
	if stats.Failures["search"] != 1 {
		t.Errorf("Expected failure counter 1, got %+v", stats.Failures)
	}
}

func TestValidateResponseLargeResult(t *testing.T) {
	validator, _ := newTestValidator()
	large := strings.Repeat("a", 101*1024)
	warnings := validator.ValidateResponse("search", large, nil)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "large response") {
		t.Errorf("Expected a size warning, got %v", warnings)
	}
}

func TestValidateResponseDuplicatedPathSegment(t *testing.T) {
	validator, _ := newTestValidator()
	warnings := validator.ValidateResponse("read_file", "wrote /home/user/src/src/main.go", nil)
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "repeats segment 'src'") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a duplicated-segment warning, got %v", warnings)
	}

	warnings = validator.ValidateResponse("read_file", "wrote /home/user/src/main.go", nil)
	for _, w := range warnings {
		if strings.Contains(w, "repeats segment") {
			t.Errorf("Unexpected duplicate warning for clean path: %v", warnings)
		}
	}
}

func TestValidateResponseRestrictedPath(t *testing.T) {
	validator, _ := newTestValidator()
	warnings := validator.ValidateResponse("search", "found .reactor/sessions/main.json", nil)
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "restricted pattern") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a restricted-path warning, got %v", warnings)
	}
}

func TestValidateResponseNoWarningsOnError(t *testing.T) {
	validator, _ := newTestValidator()
	large := strings.Repeat("a", 200*1024)
	warnings := validator.ValidateResponse("search", large, fmt.Errorf("failed"))
	if len(warnings) != 0 {
		t.Errorf("Failed executions should produce no sanity warnings, got %v", warnings)
	}
}
