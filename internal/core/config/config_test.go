package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), dataDir)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, defaults.Detection, cfg.Detection)
	assert.Equal(t, 2*time.Second, cfg.Detection.QuickTimeout)
	assert.Equal(t, 5*time.Second, cfg.Detection.MaxTimeout)
	assert.Equal(t, 200, cfg.Detection.TruncationLines)
	assert.Equal(t, 10000, cfg.Detection.MaxBufferLines)
	assert.True(t, cfg.SSH.UseAgent)
	assert.True(t, cfg.History.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
detection:
  quick_timeout: 1s
  max_timeout: 30s
  truncation_lines: 50
shell:
  path: /bin/zsh
  args: ["-l"]
  env:
    LANG: C.UTF-8
  cols: 120
ssh:
  user: deploy
  use_agent: false
  key_path: ~/.ssh/id_ed25519
history:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Detection.QuickTimeout)
	assert.Equal(t, 30*time.Second, cfg.Detection.MaxTimeout)
	assert.Equal(t, 50, cfg.Detection.TruncationLines)
	assert.Equal(t, 100*time.Millisecond, cfg.Detection.PollInterval, "unset keys keep defaults")

	assert.Equal(t, "/bin/zsh", cfg.Shell.Path)
	assert.Equal(t, []string{"-l"}, cfg.Shell.Args)
	assert.Equal(t, "C.UTF-8", cfg.Shell.Env["LANG"])
	assert.Equal(t, 120, cfg.Shell.Cols)
	assert.Equal(t, 24, cfg.Shell.Rows)

	assert.Equal(t, "deploy", cfg.SSH.User)
	assert.False(t, cfg.SSH.UseAgent)
	assert.True(t, filepath.IsAbs(cfg.SSH.KeyPath), "home is expanded")
	assert.Equal(t, 22, cfg.SSH.Port)

	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, 500, cfg.History.MaxEntries)
}

func TestLoad_ZeroValuesGetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
detection:
  quick_timeout: 0s
  read_lines: 0
ssh:
  port: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Detection.QuickTimeout)
	assert.Equal(t, 20, cfg.Detection.ReadLines)
	assert.Equal(t, 22, cfg.SSH.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad yaml", content: "detection: [", wantErr: "parse config file"},
		{name: "bad duration", content: "detection:\n  quick_timeout: soon\n", wantErr: "parse config file"},
		{name: "quick over max", content: "detection:\n  quick_timeout: 10s\n  max_timeout: 1s\n", wantErr: "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path, t.TempDir())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Detect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.MaxTimeout = time.Minute

	d := cfg.Detect()
	assert.Equal(t, time.Minute, d.MaxTimeout)
	assert.Equal(t, cfg.Detection.QuickTimeout, d.QuickTimeout)
	assert.Equal(t, cfg.Detection.TruncationLines, d.TruncationLines)
	assert.Equal(t, cfg.Detection.PollInterval, d.PollInterval)
}

func TestConfig_HistoryFile(t *testing.T) {
	cfg := &Config{DataDir: "/data/conch"}
	assert.Equal(t, "/data/conch/history.jsonl", cfg.HistoryFile())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, ".ssh", "known_hosts"), ExpandHome("~/.ssh/known_hosts"))
	assert.Equal(t, "/etc/ssh/known_hosts", ExpandHome("/etc/ssh/known_hosts"))
	assert.Equal(t, "~other/file", ExpandHome("~other/file"))
	assert.Equal(t, "", ExpandHome(""))
}
