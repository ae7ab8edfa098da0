// Package config handles configuration loading and validation for conch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/conch/internal/core/detect"
)

// MaxDimension is the largest accepted terminal width or height.
const MaxDimension = 500

// Config holds the application configuration.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Shell     ShellConfig     `yaml:"shell"`
	SSH       SSHConfig       `yaml:"ssh"`
	History   HistoryConfig   `yaml:"history"`
	DataDir   string          `yaml:"-"` // set by caller, not from config file
}

// DetectionConfig holds the completion-detection defaults. Every value can be
// overridden per command on the CLI.
type DetectionConfig struct {
	QuickTimeout    time.Duration `yaml:"quick_timeout"`
	MaxTimeout      time.Duration `yaml:"max_timeout"`
	TruncationLines int           `yaml:"truncation_lines"`
	MaxBufferLines  int           `yaml:"max_buffer_lines"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ReadLines       int           `yaml:"read_lines"`
}

// ShellConfig describes the local shell spawned under a pseudo-terminal.
type ShellConfig struct {
	Path string            `yaml:"path"`
	Args []string          `yaml:"args"`
	Env  map[string]string `yaml:"env"`
	Term string            `yaml:"term"`
	Cols int               `yaml:"cols"`
	Rows int               `yaml:"rows"`
	Dir  string            `yaml:"dir"`
}

// SSHConfig holds defaults for remote sessions. The target host is always
// given on the command line.
type SSHConfig struct {
	Port                  int           `yaml:"port"`
	User                  string        `yaml:"user"`
	KeyPath               string        `yaml:"key_path"`
	UseAgent              bool          `yaml:"use_agent"`
	KnownHosts            string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	KeepaliveInterval     time.Duration `yaml:"keepalive_interval"`
}

// HistoryConfig controls the command history file.
type HistoryConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Detection: DetectionConfig{
			QuickTimeout:    detect.DefaultQuickTimeout,
			MaxTimeout:      detect.DefaultMaxTimeout,
			TruncationLines: detect.DefaultTruncationLines,
			MaxBufferLines:  10000,
			PollInterval:    detect.DefaultPollInterval,
			ReadLines:       20,
		},
		Shell: ShellConfig{
			Path: defaultShell(),
			Env:  map[string]string{},
			Term: "xterm-256color",
			Cols: 80,
			Rows: 24,
		},
		SSH: SSHConfig{
			Port:              22,
			UseAgent:          true,
			KnownHosts:        "~/.ssh/known_hosts",
			DialTimeout:       10 * time.Second,
			KeepaliveInterval: 30 * time.Second,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 500,
		},
	}
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options and
// expands "~" in paths.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Detection.QuickTimeout == 0 {
		c.Detection.QuickTimeout = defaults.Detection.QuickTimeout
	}
	if c.Detection.MaxTimeout == 0 {
		c.Detection.MaxTimeout = defaults.Detection.MaxTimeout
	}
	if c.Detection.TruncationLines == 0 {
		c.Detection.TruncationLines = defaults.Detection.TruncationLines
	}
	if c.Detection.MaxBufferLines == 0 {
		c.Detection.MaxBufferLines = defaults.Detection.MaxBufferLines
	}
	if c.Detection.PollInterval == 0 {
		c.Detection.PollInterval = defaults.Detection.PollInterval
	}
	if c.Detection.ReadLines == 0 {
		c.Detection.ReadLines = defaults.Detection.ReadLines
	}

	if c.Shell.Path == "" {
		c.Shell.Path = defaults.Shell.Path
	}
	if c.Shell.Term == "" {
		c.Shell.Term = defaults.Shell.Term
	}
	if c.Shell.Cols == 0 {
		c.Shell.Cols = defaults.Shell.Cols
	}
	if c.Shell.Rows == 0 {
		c.Shell.Rows = defaults.Shell.Rows
	}
	c.Shell.Dir = ExpandHome(c.Shell.Dir)

	if c.SSH.Port == 0 {
		c.SSH.Port = defaults.SSH.Port
	}
	if c.SSH.DialTimeout == 0 {
		c.SSH.DialTimeout = defaults.SSH.DialTimeout
	}
	c.SSH.KeyPath = ExpandHome(c.SSH.KeyPath)
	c.SSH.KnownHosts = ExpandHome(c.SSH.KnownHosts)

	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = defaults.History.MaxEntries
	}
}

// Validate checks that the configuration is usable. It does not touch the
// filesystem; see ValidateDeep.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("data directory cannot be empty"))
	}

	d := c.Detection
	if d.QuickTimeout <= 0 {
		errs = errs.Append("detection.quick_timeout", fmt.Errorf("must be positive"))
	}
	if d.MaxTimeout <= 0 {
		errs = errs.Append("detection.max_timeout", fmt.Errorf("must be positive"))
	} else if d.QuickTimeout > d.MaxTimeout {
		errs = errs.Append("detection.quick_timeout", fmt.Errorf("%s exceeds max_timeout %s", d.QuickTimeout, d.MaxTimeout))
	}
	if d.PollInterval <= 0 {
		errs = errs.Append("detection.poll_interval", fmt.Errorf("must be positive"))
	}
	if d.TruncationLines < 1 {
		errs = errs.Append("detection.truncation_lines", fmt.Errorf("must be at least 1"))
	}
	if d.MaxBufferLines < 1 {
		errs = errs.Append("detection.max_buffer_lines", fmt.Errorf("must be at least 1"))
	}
	if d.ReadLines < 1 {
		errs = errs.Append("detection.read_lines", fmt.Errorf("must be at least 1"))
	}

	if c.Shell.Path == "" {
		errs = errs.Append("shell.path", fmt.Errorf("cannot be empty"))
	}
	if c.Shell.Cols < 1 || c.Shell.Cols > MaxDimension {
		errs = errs.Append("shell.cols", fmt.Errorf("must be between 1 and %d", MaxDimension))
	}
	if c.Shell.Rows < 1 || c.Shell.Rows > MaxDimension {
		errs = errs.Append("shell.rows", fmt.Errorf("must be between 1 and %d", MaxDimension))
	}

	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		errs = errs.Append("ssh.port", fmt.Errorf("must be between 1 and 65535"))
	}
	if c.SSH.DialTimeout <= 0 {
		errs = errs.Append("ssh.dial_timeout", fmt.Errorf("must be positive"))
	}
	if c.SSH.KeepaliveInterval < 0 {
		errs = errs.Append("ssh.keepalive_interval", fmt.Errorf("cannot be negative"))
	}

	if c.History.MaxEntries < 1 {
		errs = errs.Append("history.max_entries", fmt.Errorf("must be at least 1"))
	}

	return errs.ToError()
}

// Detect returns the detection settings for a command.
func (c *Config) Detect() detect.Config {
	return detect.Config{
		QuickTimeout:    c.Detection.QuickTimeout,
		MaxTimeout:      c.Detection.MaxTimeout,
		TruncationLines: c.Detection.TruncationLines,
		PollInterval:    c.Detection.PollInterval,
	}
}

// HistoryFile returns the path to the command history JSON file.
func (c *Config) HistoryFile() string {
	return filepath.Join(c.DataDir, "history.jsonl")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
