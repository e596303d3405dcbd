// Package rpc implements the rtorrent control protocol client: XML-RPC
// and JSON-RPC 2.0 codecs over HTTP, SCGI (TCP or Unix socket), and
// SCGI tunneled through SSH.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rtctl/internal/logging"
)

// Fault is an application-level error returned by the remote end, as
// opposed to a transport failure.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("rpc fault %d: %s", f.Code, f.Message)
}

// codec translates between Go values and one wire encoding.
type codec interface {
	contentType() string
	encodeRequest(method string, args []any) ([]byte, error)
	decodeResponse(data []byte) (any, error)
}

// transport carries one encoded request to the server and returns the
// raw response body.
type transport interface {
	roundTrip(ctx context.Context, contentType string, body []byte) ([]byte, error)
	close() error
}

// Config holds client options beyond what the connection URL encodes.
type Config struct {
	// Timeout bounds a single call when the caller's context carries no
	// deadline of its own. Zero means 30 seconds.
	Timeout time.Duration

	// SSHIdentity is the private key file for scgi+ssh URLs. Empty means
	// ~/.ssh/id_ed25519 then ~/.ssh/id_rsa.
	SSHIdentity string

	// SSHKnownHosts overrides the host key database for scgi+ssh URLs.
	// Empty means ~/.ssh/known_hosts.
	SSHKnownHosts string

	// Logger for structured logging.
	Logger *slog.Logger
}

// Client issues calls against one rtorrent endpoint.
type Client struct {
	codec   codec
	tr      transport
	timeout time.Duration
	logger  *slog.Logger
}

// Dial parses a connection URL and builds a client for it. The scheme
// selects the transport (http, https, scgi, scgi+unix, scgi+ssh) and
// the rpc query parameter selects the codec (xml, the default, or
// json). Dial itself performs no I/O; connections are made per call.
func Dial(rawURL string, cfg Config) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection url: %w", err)
	}

	c := &Client{
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if c.timeout == 0 {
		c.timeout = 30 * time.Second
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}

	switch u.Query().Get("rpc") {
	case "", "xml":
		c.codec = xmlCodec{}
	case "json":
		c.codec = jsonCodec{}
	default:
		return nil, fmt.Errorf("unknown rpc codec %q (want xml or json)", u.Query().Get("rpc"))
	}

	switch u.Scheme {
	case "http", "https":
		endpoint := *u
		q := endpoint.Query()
		q.Del("rpc")
		endpoint.RawQuery = q.Encode()
		c.tr = &httpTransport{url: endpoint.String()}
	case "scgi":
		c.tr = &scgiTransport{network: "tcp", addr: u.Host}
	case "scgi+unix":
		if u.Path == "" {
			return nil, fmt.Errorf("scgi+unix url %q carries no socket path", rawURL)
		}
		c.tr = &scgiTransport{network: "unix", addr: u.Path}
	case "scgi+ssh":
		tr, err := newSSHTransport(u, cfg)
		if err != nil {
			return nil, err
		}
		c.tr = tr
	default:
		return nil, fmt.Errorf("unknown connection scheme %q", u.Scheme)
	}
	return c, nil
}

// Call invokes a remote method. Arguments map as int/int64 → integer,
// bool → integer 0/1 (rtorrent convention), string, []byte → base64,
// []any → array, map[string]any → struct. The result uses the same Go
// types; remote faults come back as a *Fault error.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.codec.encodeRequest(method, args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	c.logger.Debug("rpc call", "method", method, "args", len(args))
	resp, err := c.tr.roundTrip(ctx, c.codec.contentType(), req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	result, err := c.codec.decodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

// Close releases any long-lived transport state (the SSH connection).
func (c *Client) Close() error {
	return c.tr.close()
}

// httpTransport POSTs requests to an XML-RPC/JSON-RPC HTTP endpoint.
type httpTransport struct {
	url    string
	client http.Client
}

func (t *httpTransport) roundTrip(ctx context.Context, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, firstLine(data))
	}
	return data, nil
}

func (t *httpTransport) close() error { return nil }

func firstLine(data []byte) string {
	s := strings.TrimSpace(string(data))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
