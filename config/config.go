package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/avidalr/reactor/errors"
	"gopkg.in/yaml.v3"
)

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Throttle holds the tool-call rate limiting thresholds. Zero values are
// replaced with defaults by ApplyDefaults.
type Throttle struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	PerToolBurst        int `yaml:"per_tool_burst"`
	PerToolWindowSecs   int `yaml:"per_tool_window_secs"`
	GlobalBurst         int `yaml:"global_burst"`
	GlobalWindowSecs    int `yaml:"global_window_secs"`
	RetentionSecs       int `yaml:"retention_secs"`
}

// Validation holds the post-execution response check settings.
type Validation struct {
	// ResponseWarnKB is the payload size above which a warning is raised.
	ResponseWarnKB int `yaml:"response_warn_kb"`
	// RestrictedPaths are glob patterns; tool results whose path-like
	// fields match one of them raise a warning.
	RestrictedPaths []string `yaml:"restricted_paths"`
}

type Config struct {
	Backend              string      `yaml:"backend"`
	Model                string      `yaml:"model"`
	MaxIterations        int         `yaml:"max_iterations"`
	CancelPollMillis     int         `yaml:"cancel_poll_millis"`
	Throttle             Throttle    `yaml:"throttle"`
	Validation           Validation  `yaml:"validation"`
	AdditionalMCPServers []MCPServer `yaml:"additional_mcp_servers"`
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".reactor", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrap(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".reactor", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrap(err, "error loading project config")
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML. This provides a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 300
	}
	if c.CancelPollMillis <= 0 {
		c.CancelPollMillis = 50
	}
	if c.Throttle.ConsecutiveFailures <= 0 {
		c.Throttle.ConsecutiveFailures = 3
	}
	if c.Throttle.PerToolBurst <= 0 {
		c.Throttle.PerToolBurst = 5
	}
	if c.Throttle.PerToolWindowSecs <= 0 {
		c.Throttle.PerToolWindowSecs = 10
	}
	if c.Throttle.GlobalBurst <= 0 {
		c.Throttle.GlobalBurst = 10
	}
	if c.Throttle.GlobalWindowSecs <= 0 {
		c.Throttle.GlobalWindowSecs = 5
	}
	if c.Throttle.RetentionSecs <= 0 {
		c.Throttle.RetentionSecs = 60
	}
	if c.Validation.ResponseWarnKB <= 0 {
		c.Validation.ResponseWarnKB = 100
	}
	if c.Validation.RestrictedPaths == nil {
		// The agent's own state directory should never surface in results.
		c.Validation.RestrictedPaths = []string{".reactor", ".reactor/**"}
	}
}

// CancelPollInterval returns the cancellation monitor's polling interval.
func (c *Config) CancelPollInterval() time.Duration {
	return time.Duration(c.CancelPollMillis) * time.Millisecond
}
