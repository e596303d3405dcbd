// Package rtorrent layers torrent-level operations over the raw RPC
// client: capability probing, item proxies with attribute caching, and
// view streaming with server-side pre-filtering.
package rtorrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"rtctl/internal/logging"
	"rtctl/internal/matching"
)

// ErrFieldUnavailable reports a getter the backend could not serve, or
// a driver-fed item asked for an attribute outside its prefetch plan.
var ErrFieldUnavailable = errors.New("field unavailable")

// caller is the RPC surface the engine needs; *rpc.Client satisfies it.
type caller interface {
	Call(ctx context.Context, method string, args ...any) (any, error)
	Close() error
}

// Client wraps one rtorrent connection.
type Client struct {
	rpc    caller
	logger *slog.Logger

	mu   sync.Mutex
	caps *matching.Caps // probed once
}

// New builds a client over an established RPC connection.
func New(rpc caller, logger *slog.Logger) *Client {
	return &Client{
		rpc:    rpc,
		logger: logging.Default(logger).With("component", "rtorrent"),
	}
}

// Call exposes the raw RPC surface for tools that need it.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	return c.rpc.Call(ctx, method, args...)
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rpc.Close() }

// Caps probes the backend's method list once and reports the
// capabilities the pushdown analyzer consults. The probe result is
// cached for the connection's lifetime.
func (c *Client) Caps(ctx context.Context) (matching.Caps, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caps != nil {
		return *c.caps, nil
	}

	raw, err := c.rpc.Call(ctx, "system.listMethods")
	if err != nil {
		return matching.Caps{}, fmt.Errorf("probe method list: %w", err)
	}
	methods, ok := raw.([]any)
	if !ok {
		return matching.Caps{}, fmt.Errorf("unexpected method list type %T", raw)
	}

	caps := matching.Caps{}
	for _, m := range methods {
		switch m {
		case "d.multicall.filtered":
			caps.FilteredMulticall = true
		case "string.contains_i":
			caps.ContainsI = true
		}
	}
	c.logger.Debug("probed backend capabilities",
		"methods", len(methods),
		"filtered_multicall", caps.FilteredMulticall,
		"contains_i", caps.ContainsI)
	c.caps = &caps
	return caps, nil
}

// Version reports the backend's client version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	raw, err := c.rpc.Call(ctx, "system.client_version")
	if err != nil {
		return "", err
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("unexpected version type %T", raw)
	}
	return s, nil
}

// GlobalUpRate reports the current total upload rate in bytes/s.
func (c *Client) GlobalUpRate(ctx context.Context) (int64, error) {
	return c.callInt(ctx, "throttle.global_up.rate")
}

// GlobalDownRate reports the current total download rate in bytes/s.
func (c *Client) GlobalDownRate(ctx context.Context) (int64, error) {
	return c.callInt(ctx, "throttle.global_down.rate")
}

func (c *Client) callInt(ctx context.Context, method string, args ...any) (int64, error) {
	raw, err := c.rpc.Call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected result type %T", method, raw)
	}
	return n, nil
}

// LoadMode selects how a metafile enters the backend.
type LoadMode string

const (
	LoadNormal LoadMode = "load.verbose" // loaded stopped
	LoadStart  LoadMode = "load.start"   // loaded and started
)

// Load hands a local metafile path to the backend.
func (c *Client) Load(ctx context.Context, mode LoadMode, path string) error {
	_, err := c.rpc.Call(ctx, string(mode), "", path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", mode, path, err)
	}
	return nil
}

// LoadRaw hands metafile bytes to the backend, for files the backend
// host cannot read itself.
func (c *Client) LoadRaw(ctx context.Context, mode LoadMode, data []byte) error {
	// load.start → load.raw_start, load.verbose → load.raw_verbose
	method := "load.raw_" + strings.TrimPrefix(string(mode), "load.")
	if _, err := c.rpc.Call(ctx, method, "", data); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// StartItem begins or resumes downloading/seeding an item.
func (c *Client) StartItem(ctx context.Context, hash string) error {
	_, err := c.rpc.Call(ctx, "d.start", hash)
	return err
}

// StopItem pauses an item, keeping it open.
func (c *Client) StopItem(ctx context.Context, hash string) error {
	_, err := c.rpc.Call(ctx, "d.stop", hash)
	return err
}

// CloseItem stops an item and closes its files.
func (c *Client) CloseItem(ctx context.Context, hash string) error {
	_, err := c.rpc.Call(ctx, "d.close", hash)
	return err
}
