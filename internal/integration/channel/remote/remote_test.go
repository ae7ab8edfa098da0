package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/hay-kot/conch/internal/integration/channel"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target   string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{target: "db1", wantHost: "db1"},
		{target: "deploy@db1", wantUser: "deploy", wantHost: "db1"},
		{target: "deploy@db1:2222", wantUser: "deploy", wantHost: "db1", wantPort: 2222},
		{target: "db1.internal:22", wantHost: "db1.internal", wantPort: 22},
		{target: "root@[::1]:2200", wantUser: "root", wantHost: "::1", wantPort: 2200},
		{target: "user@name@host", wantUser: "user@name", wantHost: "host"},
		{target: "", wantErr: true},
		{target: "@db1", wantErr: true},
		{target: "deploy@", wantErr: true},
		{target: "db1:0", wantErr: true},
		{target: "db1:ssh", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			user, host, port, err := ParseTarget(tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

// --- test SSH server ---

type testServer struct {
	addr    string
	hostKey ssh.PublicKey

	mu      sync.Mutex
	resizes [][2]uint32
}

func (s *testServer) lastResize() ([2]uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.resizes) == 0 {
		return [2]uint32{}, false
	}
	return s.resizes[len(s.resizes)-1], true
}

// startServer runs an SSH server that accepts password "secret" and whose
// shell echoes its input back.
func startServer(t *testing.T) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == "secret" {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("bad password")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := &testServer{addr: ln.Addr().String(), hostKey: hostSigner.PublicKey()}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn, cfg)
		}
	}()

	return srv
}

func (s *testServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	defer func() { _ = conn.Close() }()

	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer func() { _ = sconn.Close() }()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *testServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()

	for req := range reqs {
		switch req.Type {
		case "pty-req":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go func() { _, _ = io.Copy(ch, ch) }()
		case "window-change":
			if len(req.Payload) >= 8 {
				s.mu.Lock()
				s.resizes = append(s.resizes, [2]uint32{
					binary.BigEndian.Uint32(req.Payload[0:4]),
					binary.BigEndian.Uint32(req.Payload[4:8]),
				})
				s.mu.Unlock()
			}
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testServer) options(t *testing.T) Options {
	t.Helper()

	host, portStr, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return Options{
		Host:                  host,
		Port:                  port,
		User:                  "deploy",
		Password:              "secret",
		InsecureIgnoreHostKey: true,
		DialTimeout:           5 * time.Second,
	}
}

func readUntil(t *testing.T, c *Channel, want string) string {
	t.Helper()

	var out strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			require.Equal(t, channel.EventData, ev.Kind, "unexpected %s event: %v", ev.Kind, ev.Err)
			out.Write(ev.Data)
			if strings.Contains(out.String(), want) {
				return out.String()
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q, got %q", want, out.String())
		}
	}
}

func TestDial_EchoShell(t *testing.T) {
	srv := startServer(t)

	c, err := Dial(context.Background(), srv.options(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, channel.OriginRemote, c.Origin())
	assert.Equal(t, "deploy@"+srv.addr, c.Describe())

	_, err = c.Write([]byte("hello over ssh\n"))
	require.NoError(t, err)
	assert.Contains(t, readUntil(t, c, "hello over ssh"), "hello over ssh")
}

func TestDial_Resize(t *testing.T) {
	srv := startServer(t)

	c, err := Dial(context.Background(), srv.options(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Resize(132, 43))

	require.Eventually(t, func() bool {
		got, ok := srv.lastResize()
		return ok && got == [2]uint32{132, 43}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDial_Close(t *testing.T) {
	srv := startServer(t)

	c, err := Dial(context.Background(), srv.options(t), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Write([]byte("late\n"))
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestDial_Keepalive(t *testing.T) {
	srv := startServer(t)

	opts := srv.options(t)
	opts.KeepaliveInterval = 10 * time.Millisecond

	c, err := Dial(context.Background(), opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// Several keepalive rounds must not disturb the shell.
	time.Sleep(50 * time.Millisecond)
	_, err = c.Write([]byte("still here\n"))
	require.NoError(t, err)
	readUntil(t, c, "still here")
}

func TestDial_WrongPassword(t *testing.T) {
	srv := startServer(t)

	opts := srv.options(t)
	opts.Password = "nope"

	_, err := Dial(context.Background(), opts, zerolog.Nop())
	assert.ErrorContains(t, err, "ssh handshake")
}

func TestDial_KnownHosts(t *testing.T) {
	srv := startServer(t)
	dir := t.TempDir()

	t.Run("matching key", func(t *testing.T) {
		path := filepath.Join(dir, "known_hosts")
		line := knownhosts.Line([]string{srv.addr}, srv.hostKey)
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		opts := srv.options(t)
		opts.InsecureIgnoreHostKey = false
		opts.KnownHosts = path

		c, err := Dial(context.Background(), opts, zerolog.Nop())
		require.NoError(t, err)
		_ = c.Close()
	})

	t.Run("unknown host", func(t *testing.T) {
		path := filepath.Join(dir, "empty_known_hosts")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		opts := srv.options(t)
		opts.InsecureIgnoreHostKey = false
		opts.KnownHosts = path

		_, err := Dial(context.Background(), opts, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("missing path", func(t *testing.T) {
		opts := srv.options(t)
		opts.InsecureIgnoreHostKey = false
		opts.KnownHosts = ""

		_, err := Dial(context.Background(), opts, zerolog.Nop())
		assert.ErrorContains(t, err, "known_hosts")
	})
}

func TestAuthMethods(t *testing.T) {
	dir := t.TempDir()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	plain, err := ssh.MarshalPrivateKey(priv, "test")
	require.NoError(t, err)
	plainPath := filepath.Join(dir, "id_plain")
	require.NoError(t, os.WriteFile(plainPath, pem.EncodeToMemory(plain), 0o600))

	encrypted, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte("hunter2"))
	require.NoError(t, err)
	encPath := filepath.Join(dir, "id_encrypted")
	require.NoError(t, os.WriteFile(encPath, pem.EncodeToMemory(encrypted), 0o600))

	passphrase := func(p string) func() ([]byte, error) {
		return func() ([]byte, error) { return []byte(p), nil }
	}

	tests := []struct {
		name        string
		opts        Options
		wantMethods int
		wantErr     string
	}{
		{name: "nothing configured", opts: Options{}, wantErr: "no ssh auth method"},
		{name: "password", opts: Options{Password: "pw"}, wantMethods: 1},
		{name: "plain key", opts: Options{KeyPath: plainPath}, wantMethods: 1},
		{name: "key and password", opts: Options{KeyPath: plainPath, Password: "pw"}, wantMethods: 2},
		{name: "encrypted key with passphrase", opts: Options{KeyPath: encPath, PassphraseFunc: passphrase("hunter2")}, wantMethods: 1},
		{name: "encrypted key without passphrase", opts: Options{KeyPath: encPath}, wantErr: "parse key"},
		{name: "encrypted key wrong passphrase", opts: Options{KeyPath: encPath, PassphraseFunc: passphrase("nope")}, wantErr: "decrypt key"},
		{name: "missing key file", opts: Options{KeyPath: filepath.Join(dir, "missing")}, wantErr: "read key"},
		{name: "agent socket unreachable", opts: Options{UseAgent: true, AgentSocket: filepath.Join(dir, "no.sock"), Password: "pw"}, wantMethods: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods, conn, err := authMethods(tt.opts)
			if conn != nil {
				_ = conn.Close()
			}
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, methods, tt.wantMethods)
		})
	}
}

func TestOpener_Open(t *testing.T) {
	srv := startServer(t)

	base := srv.options(t)
	o := &Opener{Options: Options{
		Password:              base.Password,
		InsecureIgnoreHostKey: true,
		DialTimeout:           5 * time.Second,
	}}

	assert.Equal(t, "ssh", o.Name())
	assert.True(t, o.Available())

	ch, err := o.Open(context.Background(), "ops@"+srv.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	assert.Equal(t, "ops@"+srv.addr, ch.Describe())

	_, err = o.Open(context.Background(), "")
	assert.ErrorContains(t, err, "parse target")
}
