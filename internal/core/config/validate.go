package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks that referenced files and executables exist.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if err := c.Validate(); err != nil {
		for _, fe := range extract(err) {
			errs = errs.Append(fe.Field, fe.Err)
		}
	}

	errs = c.validateFileAccess(errs, configPath)
	errs = c.validateShell(errs)
	errs = c.validateSSH(errs)

	return errs.ToError()
}

func extract(err error) criterio.FieldErrors {
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	return errs
}

// validateShell checks the local shell executable and working directory.
func (c *Config) validateShell(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if c.Shell.Path != "" {
		if _, err := exec.LookPath(c.Shell.Path); err != nil {
			errs = errs.Append("shell.path", fmt.Errorf("shell not found: %s", c.Shell.Path))
		}
	}

	if c.Shell.Dir != "" {
		info, err := os.Stat(c.Shell.Dir)
		switch {
		case err != nil:
			errs = errs.Append("shell.dir", fmt.Errorf("cannot access %s: %w", c.Shell.Dir, err))
		case !info.IsDir():
			errs = errs.Append("shell.dir", fmt.Errorf("%s is not a directory", c.Shell.Dir))
		}
	}

	return errs
}

// validateSSH checks the key file when one is configured. A missing
// known_hosts file is only a warning since local sessions do not need it.
func (c *Config) validateSSH(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if c.SSH.KeyPath != "" {
		f, err := os.Open(c.SSH.KeyPath)
		if err != nil {
			errs = errs.Append("ssh.key_path", fmt.Errorf("cannot read key: %w", err))
		} else {
			_ = f.Close()
		}
	}

	if !c.SSH.InsecureIgnoreHostKey && c.SSH.KnownHosts == "" {
		errs = errs.Append("ssh.known_hosts", fmt.Errorf("required unless insecure_ignore_host_key is set"))
	}

	return errs
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	d := c.Detection
	if d.PollInterval > 0 && d.QuickTimeout < 2*d.PollInterval {
		warnings = append(warnings, ValidationWarning{
			Category: "Detection",
			Item:     "quick_timeout",
			Message:  fmt.Sprintf("shorter than two poll intervals (%s); fast completion can never fire", 2*d.PollInterval),
		})
	}
	if d.TruncationLines > d.MaxBufferLines {
		warnings = append(warnings, ValidationWarning{
			Category: "Detection",
			Item:     "truncation_lines",
			Message:  "larger than max_buffer_lines; timed-out output is limited by the buffer instead",
		})
	}

	if c.SSH.InsecureIgnoreHostKey {
		warnings = append(warnings, ValidationWarning{
			Category: "SSH",
			Item:     "insecure_ignore_host_key",
			Message:  "host keys are not verified; connections are open to interception",
		})
	} else if c.SSH.KnownHosts != "" {
		if _, err := os.Stat(c.SSH.KnownHosts); os.IsNotExist(err) {
			warnings = append(warnings, ValidationWarning{
				Category: "SSH",
				Item:     "known_hosts",
				Message:  fmt.Sprintf("%s does not exist; every remote host will be rejected", c.SSH.KnownHosts),
			})
		}
	}

	if c.SSH.UseAgent && os.Getenv("SSH_AUTH_SOCK") == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "SSH",
			Item:     "use_agent",
			Message:  "SSH_AUTH_SOCK is not set; agent authentication is unavailable",
		})
	}

	if !c.History.Enabled {
		warnings = append(warnings, ValidationWarning{
			Category: "History",
			Item:     "enabled",
			Message:  "command history is disabled",
		})
	}

	return warnings
}
