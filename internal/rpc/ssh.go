package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshTransport tunnels SCGI through an SSH connection, running socat on
// the remote side to bridge the session streams to rtorrent's Unix
// socket. The SSH connection is established lazily and kept open; each
// call runs in its own session.
type sshTransport struct {
	addr       string // host:port
	socketPath string // remote rtorrent socket
	config     *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

func newSSHTransport(u *url.URL, cfg Config) (*sshTransport, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("scgi+ssh url %q carries no remote socket path", u.String())
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("scgi+ssh url %q carries no user", u.String())
	}

	signer, err := loadSSHIdentity(cfg.SSHIdentity)
	if err != nil {
		return nil, err
	}
	hostKeys, err := loadKnownHosts(cfg.SSHKnownHosts)
	if err != nil {
		return nil, err
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}
	return &sshTransport{
		addr:       addr,
		socketPath: u.Path,
		config: &ssh.ClientConfig{
			User:            u.User.Username(),
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
		},
	}, nil
}

func loadSSHIdentity(path string) (ssh.Signer, error) {
	candidates := []string{path}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate ssh identity: %w", err)
		}
		candidates = []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		}
	}
	var lastErr error
	for _, cand := range candidates {
		key, err := os.ReadFile(cand)
		if err != nil {
			lastErr = err
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh identity %s: %w", cand, err)
		}
		return signer, nil
	}
	return nil, fmt.Errorf("no usable ssh identity: %w", lastErr)
}

func loadKnownHosts(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return cb, nil
}

func (t *sshTransport) dial(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh %s: %w", t.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, t.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", t.addr, err)
	}
	// Handshake done; calls manage their own deadlines per session.
	conn.SetDeadline(time.Time{})

	t.client = ssh.NewClient(sshConn, chans, reqs)
	return t.client, nil
}

func (t *sshTransport) roundTrip(ctx context.Context, contentType string, body []byte) ([]byte, error) {
	client, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		// The connection may have died since the last call; redial once.
		t.mu.Lock()
		t.client.Close()
		t.client = nil
		t.mu.Unlock()
		if client, err = t.dial(ctx); err != nil {
			return nil, err
		}
		if session, err = client.NewSession(); err != nil {
			return nil, fmt.Errorf("open ssh session: %w", err)
		}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("socat STDIO UNIX-CONNECT:%s", shellQuote(t.socketPath))
	if err := session.Start(cmd); err != nil {
		return nil, fmt.Errorf("start remote socat: %w", err)
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := scgiExchange(sessionStream{stdin, stdout}, contentType, body)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

func (t *sshTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// sessionStream bridges a session's stdin/stdout pipes into the
// io.ReadWriter scgiExchange wants. CloseWrite closes stdin so the
// remote socat sees EOF and flushes the response.
type sessionStream struct {
	in  io.WriteCloser
	out io.Reader
}

func (s sessionStream) Read(p []byte) (int, error)  { return s.out.Read(p) }
func (s sessionStream) Write(p []byte) (int, error) { return s.in.Write(p) }
func (s sessionStream) CloseWrite() error           { return s.in.Close() }

// shellQuote single-quotes a path for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
