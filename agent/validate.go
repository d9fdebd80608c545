package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/avidalr/reactor/config"
	"github.com/avidalr/reactor/tools"
)

// Outcome classifies the result of validating a requested tool call.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeUnknownTool Outcome = "unknown_tool"
	OutcomeBadParams   Outcome = "bad_params"
	OutcomeThrottled   Outcome = "throttled"
)

// ValidationResult carries the outcome of a pre-execution check plus a
// model-facing reason and, for unknown tools, up to three close name
// suggestions.
type ValidationResult struct {
	Outcome     Outcome
	Reason      string
	Suggestions []string
}

// Validator gates tool calls before execution and sanity-checks tool output
// after it. It owns no registry state; the caller passes the definitions in
// force for the turn.
type Validator struct {
	cfg       config.Validation
	throttler *Throttler
}

func NewValidator(cfg config.Validation, throttler *Throttler) *Validator {
	return &Validator{cfg: cfg, throttler: throttler}
}

// ValidateCall checks a requested call against the known tool definitions in
// order: the tool exists, the arguments fit its schema, and the throttler
// admits it. The first failed check decides the outcome.
func (v *Validator) ValidateCall(defs map[string]tools.Definition, name string, args map[string]interface{}) ValidationResult {
	def, ok := defs[name]
	if !ok {
		suggestions := suggestNames(name, defs)
		reason := fmt.Sprintf("unknown tool '%s'", name)
		if len(suggestions) > 0 {
			reason += "; did you mean: " + strings.Join(suggestions, ", ")
		}
		return ValidationResult{Outcome: OutcomeUnknownTool, Reason: reason, Suggestions: suggestions}
	}

	var missing []string
	for param, spec := range def.Params {
		if !spec.Required {
			continue
		}
		if _, present := args[param]; !present {
			missing = append(missing, param)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ValidationResult{
			Outcome: OutcomeBadParams,
			Reason:  fmt.Sprintf("missing required parameters for '%s': %s", name, strings.Join(missing, ", ")),
		}
	}

	var unknown []string
	for param := range args {
		if _, known := def.Params[param]; !known {
			unknown = append(unknown, param)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return ValidationResult{
			Outcome: OutcomeBadParams,
			Reason: fmt.Sprintf("unknown parameters for '%s': %s (accepted: %s)",
				name, strings.Join(unknown, ", "), strings.Join(paramNames(def), ", ")),
		}
	}

	for param, spec := range def.Params {
		value, present := args[param]
		if !present {
			continue
		}
		if !typeMatches(value, spec.Type) {
			return ValidationResult{
				Outcome: OutcomeBadParams,
				Reason:  fmt.Sprintf("parameter '%s' of '%s' must be of type %s, got %T", param, name, spec.Type, value),
			}
		}
	}

	if reason, msg := v.throttler.Allow(name); reason != BlockNone {
		return ValidationResult{Outcome: OutcomeThrottled, Reason: msg}
	}
	return ValidationResult{Outcome: OutcomeValid}
}

// ValidateResponse records the execution outcome with the throttler and
// returns sanity warnings about the output: oversized results, paths with a
// duplicated segment (a common model copy slip), and paths matching a
// restricted pattern. Warnings never fail the call.
func (v *Validator) ValidateResponse(name string, result string, execErr error) []string {
	v.throttler.RecordResult(name, execErr == nil)
	if execErr != nil {
		return nil
	}

	var warnings []string
	if limit := v.cfg.ResponseWarnKB * 1024; limit > 0 && len(result) > limit {
		warnings = append(warnings, fmt.Sprintf(
			"tool '%s' returned a large response (%.1fKB); consider narrowing the request",
			name, float64(len(result))/1024))
	}
	for _, path := range extractPaths(result) {
		if seg, dup := duplicatedSegment(path); dup {
			warnings = append(warnings, fmt.Sprintf(
				"path '%s' repeats segment '%s'; it may be mis-joined", path, seg))
		}
		if pattern, hit := v.restrictedMatch(path); hit {
			warnings = append(warnings, fmt.Sprintf(
				"path '%s' matches restricted pattern '%s'", path, pattern))
		}
	}
	return warnings
}

func (v *Validator) restrictedMatch(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	for _, pattern := range v.cfg.RestrictedPaths {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return pattern, true
		}
		if ok, _ := doublestar.PathMatch("**/"+pattern, trimmed); ok {
			return pattern, true
		}
	}
	return "", false
}

// suggestNames returns up to three known tool names close to the requested
// one, nearest first. A candidate qualifies when its similarity ratio is at
// least 0.6.
func suggestNames(name string, defs map[string]tools.Definition) []string {
	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for known := range defs {
		dist := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(known))
		longest := len(name)
		if len(known) > longest {
			longest = len(known)
		}
		if longest == 0 {
			continue
		}
		if 1-float64(dist)/float64(longest) >= 0.6 {
			candidates = append(candidates, scored{name: known, dist: dist})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

func paramNames(def tools.Definition) []string {
	names := make([]string, 0, len(def.Params))
	for name := range def.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// typeMatches checks a decoded JSON value against a schema type name.
// JSON numbers decode as float64, so integer accepts whole-valued floats.
func typeMatches(value interface{}, typeName string) bool {
	switch typeName {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "integer":
		switch n := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return true
}

var pathPattern = regexp.MustCompile(`(?:/[A-Za-z0-9._-]+){2,}|(?:[A-Za-z0-9._-]+/){1,}[A-Za-z0-9._-]+`)

func extractPaths(text string) []string {
	return pathPattern.FindAllString(text, -1)
}

// duplicatedSegment reports a segment that appears twice in a row, e.g.
// "src/src/main.go".
func duplicatedSegment(path string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := 1; i < len(segments); i++ {
		if segments[i] != "" && segments[i] == segments[i-1] {
			return segments[i], true
		}
	}
	return "", false
}
