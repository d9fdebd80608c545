package agent

import (
	"fmt"
	"sort"
	"time"

	"github.com/avidalr/reactor/config"
)

// BlockReason names why the throttler refused a call.
type BlockReason string

const (
	BlockNone                BlockReason = ""
	BlockConsecutiveFailures BlockReason = "consecutive_failures"
	BlockPerToolBurst        BlockReason = "per_tool_burst"
	BlockGlobalBurst         BlockReason = "global_burst"
)

// callRecord is one completed execution in the sliding history.
type callRecord struct {
	tool    string
	at      time.Time
	success bool
}

// Throttler blocks runaway tool usage: repeated failures of one tool, a
// burst of calls to one tool, or a burst of calls across all tools. Failure
// counters reset on the first success of that tool; history older than the
// retention window is pruned lazily on each Allow.
//
// Throttler is not safe for concurrent use; the orchestrator serializes
// tool executions within a turn.
type Throttler struct {
	cfg     config.Throttle
	now     func() time.Time
	history []callRecord
	failed  map[string]int
}

func NewThrottler(cfg config.Throttle) *Throttler {
	return &Throttler{cfg: cfg, now: time.Now, failed: make(map[string]int)}
}

// Allow reports whether a call to tool may proceed. A non-empty reason means
// blocked; msg is suitable for feeding back to the model.
func (t *Throttler) Allow(tool string) (reason BlockReason, msg string) {
	t.prune()
	now := t.now()

	if n := t.failed[tool]; n >= t.cfg.ConsecutiveFailures {
		return BlockConsecutiveFailures, fmt.Sprintf(
			"tool '%s' failed %d times in a row; fix the arguments or try a different tool", tool, n)
	}

	perToolWindow := time.Duration(t.cfg.PerToolWindowSecs) * time.Second
	globalWindow := time.Duration(t.cfg.GlobalWindowSecs) * time.Second
	perTool, global := 0, 0
	for _, rec := range t.history {
		age := now.Sub(rec.at)
		if rec.tool == tool && age < perToolWindow {
			perTool++
		}
		if age < globalWindow {
			global++
		}
	}
	if perTool >= t.cfg.PerToolBurst {
		return BlockPerToolBurst, fmt.Sprintf(
			"tool '%s' was called %d times in the last %ds; slow down", tool, perTool, t.cfg.PerToolWindowSecs)
	}
	if global >= t.cfg.GlobalBurst {
		return BlockGlobalBurst, fmt.Sprintf(
			"%d tool calls in the last %ds across all tools; slow down", global, t.cfg.GlobalWindowSecs)
	}
	return BlockNone, ""
}

// RecordResult appends one execution to the history and updates the failure
// counter for the tool. Exactly one record per execution.
func (t *Throttler) RecordResult(tool string, success bool) {
	t.history = append(t.history, callRecord{tool: tool, at: t.now(), success: success})
	if success {
		t.failed[tool] = 0
	} else {
		t.failed[tool]++
	}
}

// Reset clears the failure counter for one tool, or every counter when tool
// is empty.
func (t *Throttler) Reset(tool string) {
	if tool == "" {
		t.failed = make(map[string]int)
		return
	}
	delete(t.failed, tool)
}

// ToolCount pairs a tool name with how often it appears in retained history.
type ToolCount struct {
	Tool  string
	Count int
}

// ThrottleStats is a point-in-time summary of throttler state.
type ThrottleStats struct {
	RecentCalls int
	Failures    map[string]int
	MostCalled  []ToolCount
}

// Stats summarizes retained history and live failure counters.
func (t *Throttler) Stats() ThrottleStats {
	t.prune()
	counts := make(map[string]int)
	for _, rec := range t.history {
		counts[rec.tool]++
	}
	most := make([]ToolCount, 0, len(counts))
	for tool, n := range counts {
		most = append(most, ToolCount{Tool: tool, Count: n})
	}
	sort.Slice(most, func(i, j int) bool {
		if most[i].Count != most[j].Count {
			return most[i].Count > most[j].Count
		}
		return most[i].Tool < most[j].Tool
	})
	failures := make(map[string]int)
	for tool, n := range t.failed {
		if n > 0 {
			failures[tool] = n
		}
	}
	return ThrottleStats{RecentCalls: len(t.history), Failures: failures, MostCalled: most}
}

// prune drops records older than the retention window. History is appended
// in time order, so the first young record bounds the cut.
func (t *Throttler) prune() {
	retention := time.Duration(t.cfg.RetentionSecs) * time.Second
	cutoff := t.now().Add(-retention)
	i := 0
	for i < len(t.history) && t.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.history = append([]callRecord(nil), t.history[i:]...)
	}
}
