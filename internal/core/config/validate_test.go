package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Shell.Path = "sh"
	cfg.SSH.KnownHosts = filepath.Join(t.TempDir(), "known_hosts")
	return &cfg
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)

	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field)
	}
	return names
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }, wantField: "data_dir"},
		{name: "zero quick timeout", mutate: func(c *Config) { c.Detection.QuickTimeout = 0 }, wantField: "detection.quick_timeout"},
		{name: "quick exceeds max", mutate: func(c *Config) { c.Detection.QuickTimeout = 10 * time.Second }, wantField: "detection.quick_timeout"},
		{name: "negative max timeout", mutate: func(c *Config) { c.Detection.MaxTimeout = -time.Second }, wantField: "detection.max_timeout"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Detection.PollInterval = 0 }, wantField: "detection.poll_interval"},
		{name: "zero truncation", mutate: func(c *Config) { c.Detection.TruncationLines = 0 }, wantField: "detection.truncation_lines"},
		{name: "zero buffer", mutate: func(c *Config) { c.Detection.MaxBufferLines = 0 }, wantField: "detection.max_buffer_lines"},
		{name: "zero read lines", mutate: func(c *Config) { c.Detection.ReadLines = 0 }, wantField: "detection.read_lines"},
		{name: "empty shell", mutate: func(c *Config) { c.Shell.Path = "" }, wantField: "shell.path"},
		{name: "cols too large", mutate: func(c *Config) { c.Shell.Cols = MaxDimension + 1 }, wantField: "shell.cols"},
		{name: "rows zero", mutate: func(c *Config) { c.Shell.Rows = 0 }, wantField: "shell.rows"},
		{name: "port out of range", mutate: func(c *Config) { c.SSH.Port = 70000 }, wantField: "ssh.port"},
		{name: "zero dial timeout", mutate: func(c *Config) { c.SSH.DialTimeout = 0 }, wantField: "ssh.dial_timeout"},
		{name: "negative keepalive", mutate: func(c *Config) { c.SSH.KeepaliveInterval = -1 }, wantField: "ssh.keepalive_interval"},
		{name: "zero history entries", mutate: func(c *Config) { c.History.MaxEntries = 0 }, wantField: "history.max_entries"},
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, validConfig(t).Validate())
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			assert.Contains(t, fieldNames(t, cfg.Validate()), tt.wantField)
		})
	}
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.ValidateDeep(""), "expected valid config")
}

func TestValidateDeep_IncludesShallowErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.SSH.Port = 0

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "ssh.port")
}

func TestValidateDeep_ShellNotFound(t *testing.T) {
	cfg := validConfig(t)
	cfg.Shell.Path = "/nonexistent/path/to/shell"

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "shell.path")
}

func TestValidateDeep_ShellDirIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	cfg := validConfig(t)
	cfg.Shell.Dir = tmpFile

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "shell.dir")
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	cfg := validConfig(t)
	cfg.DataDir = tmpFile

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "data_dir")
}

func TestValidateDeep_ConfigFileIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep(t.TempDir())), "config_file")
}

func TestValidateDeep_MissingKeyFile(t *testing.T) {
	cfg := validConfig(t)
	cfg.SSH.KeyPath = filepath.Join(t.TempDir(), "id_ed25519")

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "ssh.key_path")
}

func TestValidateDeep_KnownHostsRequired(t *testing.T) {
	cfg := validConfig(t)
	cfg.SSH.KnownHosts = ""

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "ssh.known_hosts")

	cfg.SSH.InsecureIgnoreHostKey = true
	assert.NoError(t, cfg.ValidateDeep(""))
}

func hasWarning(warnings []ValidationWarning, category, item string) bool {
	for _, w := range warnings {
		if w.Category == category && w.Item == item {
			return true
		}
	}
	return false
}

func TestWarnings(t *testing.T) {
	t.Run("missing known_hosts", func(t *testing.T) {
		cfg := validConfig(t)
		assert.True(t, hasWarning(cfg.Warnings(), "SSH", "known_hosts"))
	})

	t.Run("existing known_hosts", func(t *testing.T) {
		cfg := validConfig(t)
		require.NoError(t, os.WriteFile(cfg.SSH.KnownHosts, nil, 0o600))
		assert.False(t, hasWarning(cfg.Warnings(), "SSH", "known_hosts"))
	})

	t.Run("insecure host keys", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SSH.InsecureIgnoreHostKey = true

		warnings := cfg.Warnings()
		assert.True(t, hasWarning(warnings, "SSH", "insecure_ignore_host_key"))
		assert.False(t, hasWarning(warnings, "SSH", "known_hosts"))
	})

	t.Run("agent without socket", func(t *testing.T) {
		t.Setenv("SSH_AUTH_SOCK", "")
		cfg := validConfig(t)
		assert.True(t, hasWarning(cfg.Warnings(), "SSH", "use_agent"))
	})

	t.Run("quick timeout below two polls", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Detection.QuickTimeout = 150 * time.Millisecond
		assert.True(t, hasWarning(cfg.Warnings(), "Detection", "quick_timeout"))
	})

	t.Run("truncation larger than buffer", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Detection.MaxBufferLines = 100
		assert.True(t, hasWarning(cfg.Warnings(), "Detection", "truncation_lines"))
	})

	t.Run("history disabled", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.History.Enabled = false
		assert.True(t, hasWarning(cfg.Warnings(), "History", "enabled"))
	})
}
