package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.MaxIterations != 300 {
		t.Errorf("Expected 300 max iterations, got %d", cfg.MaxIterations)
	}
	if cfg.CancelPollInterval() != 50*time.Millisecond {
		t.Errorf("Expected 50ms poll interval, got %v", cfg.CancelPollInterval())
	}
	if cfg.Throttle.ConsecutiveFailures != 3 {
		t.Errorf("Expected 3 consecutive failures, got %d", cfg.Throttle.ConsecutiveFailures)
	}
	if cfg.Throttle.PerToolBurst != 5 || cfg.Throttle.PerToolWindowSecs != 10 {
		t.Errorf("Unexpected per-tool burst defaults: %+v", cfg.Throttle)
	}
	if cfg.Throttle.GlobalBurst != 10 || cfg.Throttle.GlobalWindowSecs != 5 {
		t.Errorf("Unexpected global burst defaults: %+v", cfg.Throttle)
	}
	if cfg.Throttle.RetentionSecs != 60 {
		t.Errorf("Expected 60s retention, got %d", cfg.Throttle.RetentionSecs)
	}
	if cfg.Validation.ResponseWarnKB != 100 {
		t.Errorf("Expected 100KB warn threshold, got %d", cfg.Validation.ResponseWarnKB)
	}
	if len(cfg.Validation.RestrictedPaths) == 0 {
		t.Error("Expected default restricted paths")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{MaxIterations: 7}
	cfg.Throttle.ConsecutiveFailures = 1
	cfg.ApplyDefaults()

	if cfg.MaxIterations != 7 {
		t.Errorf("Explicit max iterations overwritten: %d", cfg.MaxIterations)
	}
	if cfg.Throttle.ConsecutiveFailures != 1 {
		t.Errorf("Explicit threshold overwritten: %d", cfg.Throttle.ConsecutiveFailures)
	}
}

func TestLoadConfigProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".reactor"), 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	content := []byte("backend: anthropic\nmodel: test-model\nmax_iterations: 12\nthrottle:\n  per_tool_burst: 2\n")
	if err := os.WriteFile(filepath.Join(dir, ".reactor", "config.yaml"), content, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend != "anthropic" || cfg.Model != "test-model" {
		t.Errorf("Project config not applied: %+v", cfg)
	}
	if cfg.MaxIterations != 12 {
		t.Errorf("Expected 12 max iterations, got %d", cfg.MaxIterations)
	}
	if cfg.Throttle.PerToolBurst != 2 {
		t.Errorf("Expected per-tool burst 2, got %d", cfg.Throttle.PerToolBurst)
	}
	// Unset fields still fall back to defaults.
	if cfg.Throttle.GlobalBurst != 10 {
		t.Errorf("Expected default global burst, got %d", cfg.Throttle.GlobalBurst)
	}
}

func TestLoadConfigMissingFilesIsFine(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig should tolerate missing files: %v", err)
	}
	if cfg.MaxIterations != 300 {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}
