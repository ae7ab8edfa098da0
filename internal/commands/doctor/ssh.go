package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/hay-kot/conch/internal/core/config"
)

// SSHCheck inspects the agent, key file and known_hosts used for remote
// sessions. Nothing is dialed.
type SSHCheck struct {
	cfg         config.SSHConfig
	agentSock   string
	dialTimeout time.Duration
}

// NewSSHCheck creates a check for cfg. agentSock is usually $SSH_AUTH_SOCK.
func NewSSHCheck(cfg config.SSHConfig, agentSock string) *SSHCheck {
	return &SSHCheck{cfg: cfg, agentSock: agentSock, dialTimeout: 2 * time.Second}
}

func (c *SSHCheck) Name() string {
	return "SSH"
}

func (c *SSHCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.cfg.UseAgent {
		result.Items = append(result.Items, c.checkAgent())
	}

	if c.cfg.KeyPath != "" {
		result.Items = append(result.Items, checkKey(c.cfg.KeyPath))
	}

	result.Items = append(result.Items, c.checkKnownHosts())

	return result
}

func (c *SSHCheck) checkAgent() CheckItem {
	item := CheckItem{Label: "Agent"}

	if c.agentSock == "" {
		item.Status = StatusWarn
		item.Detail = "SSH_AUTH_SOCK is not set"
		return item
	}

	conn, err := net.DialTimeout("unix", c.agentSock, c.dialTimeout)
	if err != nil {
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("cannot reach agent: %v", err)
		return item
	}
	defer func() { _ = conn.Close() }()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("list agent keys: %v", err)
		return item
	}
	if len(keys) == 0 {
		item.Status = StatusWarn
		item.Detail = "agent has no keys loaded"
		return item
	}

	item.Status = StatusPass
	item.Detail = fmt.Sprintf("%d key(s) loaded", len(keys))
	return item
}

func checkKey(path string) CheckItem {
	item := CheckItem{Label: "Key file"}

	data, err := os.ReadFile(path)
	if err != nil {
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("cannot read %s: %v", path, err)
		return item
	}

	_, err = ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		item.Status = StatusPass
		item.Detail = path
	case errors.As(err, &missing):
		item.Status = StatusPass
		item.Detail = path + " (passphrase protected)"
	default:
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("parse %s: %v", path, err)
	}
	return item
}

func (c *SSHCheck) checkKnownHosts() CheckItem {
	item := CheckItem{Label: "Host keys"}

	if c.cfg.InsecureIgnoreHostKey {
		item.Status = StatusWarn
		item.Detail = "host key verification disabled"
		return item
	}

	info, err := os.Stat(c.cfg.KnownHosts)
	switch {
	case err != nil:
		item.Status = StatusWarn
		item.Detail = fmt.Sprintf("%s not readable: %v", c.cfg.KnownHosts, err)
	case info.IsDir():
		item.Status = StatusFail
		item.Detail = fmt.Sprintf("%s is a directory", c.cfg.KnownHosts)
	default:
		item.Status = StatusPass
		item.Detail = c.cfg.KnownHosts
	}
	return item
}
