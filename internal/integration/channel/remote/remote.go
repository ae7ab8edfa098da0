// Package remote opens an interactive shell on another machine over SSH.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/hay-kot/conch/internal/integration/channel"
)

const DefaultPort = 22

// Options configures the SSH connection and the remote terminal.
type Options struct {
	Host string
	Port int
	User string

	// Authentication. Every configured method is offered in order: agent,
	// key file, password.
	UseAgent       bool
	AgentSocket    string // defaults to $SSH_AUTH_SOCK
	KeyPath        string
	PassphraseFunc func() ([]byte, error) // asked when KeyPath is encrypted
	Password       string

	// Host key verification.
	KnownHosts            string
	InsecureIgnoreHostKey bool

	DialTimeout       time.Duration
	KeepaliveInterval time.Duration // zero disables keepalives

	Term string
	Cols int
	Rows int
}

func (o Options) withDefaults() Options {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.User == "" {
		o.User = os.Getenv("USER")
	}
	if o.AgentSocket == "" {
		o.AgentSocket = os.Getenv("SSH_AUTH_SOCK")
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Term == "" {
		o.Term = "xterm-256color"
	}
	if o.Cols <= 0 {
		o.Cols = 80
	}
	if o.Rows <= 0 {
		o.Rows = 24
	}
	return o
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// ParseTarget splits "user@host:port" into its parts. User and port are
// optional; a missing port is returned as zero.
func ParseTarget(target string) (user, host string, port int, err error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", 0, errors.New("empty target")
	}

	if i := strings.LastIndex(target, "@"); i >= 0 {
		user, target = target[:i], target[i+1:]
		if user == "" {
			return "", "", 0, fmt.Errorf("empty user in %q", target)
		}
	}

	host = target
	if h, p, splitErr := net.SplitHostPort(target); splitErr == nil {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid port %q", p)
		}
		host = h
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", "", 0, errors.New("empty host")
	}
	return user, host, port, nil
}

// Channel is a shell running in an SSH session.
type Channel struct {
	target    string
	client    *ssh.Client
	session   *ssh.Session
	stdin     io.WriteCloser
	agentConn net.Conn
	pump      *channel.Pump
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// Dial connects, requests a PTY, and starts the login shell.
func Dial(ctx context.Context, opts Options, log zerolog.Logger) (*Channel, error) {
	opts = opts.withDefaults()
	if opts.Host == "" {
		return nil, errors.New("host is required")
	}

	hostKeyCallback, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	auth, agentConn, err := authMethods(opts)
	if err != nil {
		return nil, err
	}

	closeAgent := func() {
		if agentConn != nil {
			_ = agentConn.Close()
		}
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.DialTimeout,
	}

	client, err := dialContext(ctx, opts.Addr(), cfg)
	if err != nil {
		closeAgent()
		return nil, err
	}

	c := &Channel{
		target:    fmt.Sprintf("%s@%s", opts.User, opts.Addr()),
		client:    client,
		agentConn: agentConn,
		pump:      channel.NewPump(channel.DefaultEventBuffer),
		stop:      make(chan struct{}),
	}
	c.log = log.With().Str("component", "remote").Str("target", c.target).Logger()

	if err := c.startShell(opts); err != nil {
		_ = client.Close()
		closeAgent()
		return nil, err
	}

	if opts.KeepaliveInterval > 0 {
		go c.keepalive(opts.KeepaliveInterval)
	}

	c.log.Debug().Msg("ssh shell started")
	return c, nil
}

func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake has no context support; bound it with a deadline.
	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Channel) startShell(opts Options) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, opts.Rows, opts.Cols, modes); err != nil {
		_ = session.Close()
		return fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	c.session = session
	c.stdin = stdin
	go c.pump.Run(stdout)
	return nil
}

// keepalive probes the connection until the channel closes. A failed probe
// ends the event stream with an error.
func (c *Channel) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.pump.Finished():
			return
		case <-ticker.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.log.Warn().Err(err).Msg("keepalive failed")
				c.pump.Fail(fmt.Errorf("keepalive: %w", err))
				_ = c.client.Close()
				return
			}
		}
	}
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, channel.ErrClosed
	}
	return c.stdin.Write(p)
}

// Close ends the SSH session and connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	c.pump.Stop()

	var errs []error
	if err := c.session.Close(); err != nil && !channel.IsClosedErr(err) {
		errs = append(errs, fmt.Errorf("close ssh session: %w", err))
	}
	if err := c.client.Close(); err != nil && !channel.IsClosedErr(err) && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("close ssh client: %w", err))
	}
	if c.agentConn != nil {
		_ = c.agentConn.Close()
	}
	return errors.Join(errs...)
}

func (c *Channel) Events() <-chan channel.Event {
	return c.pump.Events()
}

func (c *Channel) Resize(cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	return c.session.WindowChange(rows, cols)
}

func (c *Channel) Origin() channel.Origin {
	return channel.OriginRemote
}

func (c *Channel) Describe() string {
	return c.target
}

// authMethods builds the offered auth methods. The returned conn is the agent
// socket, if one was opened, and must be closed by the caller.
func authMethods(opts Options) ([]ssh.AuthMethod, net.Conn, error) {
	var (
		methods   []ssh.AuthMethod
		agentConn net.Conn
	)

	if opts.UseAgent && opts.AgentSocket != "" {
		conn, err := net.Dial("unix", opts.AgentSocket)
		if err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if opts.KeyPath != "" {
		signer, err := loadKey(opts.KeyPath, opts.PassphraseFunc)
		if err != nil {
			if agentConn != nil {
				_ = agentConn.Close()
			}
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}

	if len(methods) == 0 {
		return nil, nil, errors.New("no ssh auth method available: configure an agent, key file, or password")
	}
	return methods, agentConn, nil
}

func loadKey(path string, passphrase func() ([]byte, error)) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) || passphrase == nil {
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}

	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
	if err != nil {
		return nil, fmt.Errorf("decrypt key %s: %w", path, err)
	}
	return signer, nil
}

func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if opts.KnownHosts == "" {
		return nil, errors.New("known_hosts path is required unless host key checking is disabled")
	}

	cb, err := knownhosts.New(opts.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", opts.KnownHosts, err)
	}
	return cb, nil
}

// Opener dials SSH targets of the form user@host:port.
type Opener struct {
	Options Options
	Log     zerolog.Logger
}

func (o *Opener) Name() string {
	return "ssh"
}

func (o *Opener) Available() bool {
	return true
}

// Open dials target, filling in user and port from the configured options
// when target omits them.
func (o *Opener) Open(ctx context.Context, target string) (channel.Channel, error) {
	user, host, port, err := ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}

	opts := o.Options
	opts.Host = host
	if user != "" {
		opts.User = user
	}
	if port != 0 {
		opts.Port = port
	}
	return Dial(ctx, opts, o.Log)
}

var (
	_ channel.Channel = (*Channel)(nil)
	_ channel.Opener  = (*Opener)(nil)
)
