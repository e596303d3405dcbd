package rtorrent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Item is one torrent in the backend, keyed by info hash. Attribute
// values are cached as fetched; the view driver bulk-fills the cache
// before matching so evaluation never blocks on RPC.
type Item struct {
	Hash string

	client *Client // nil for purely cache-fed items

	mu    sync.Mutex
	cache map[string]any
}

func newItem(c *Client, hash string) *Item {
	return &Item{Hash: hash, client: c, cache: make(map[string]any)}
}

// Fetch returns the raw value of one backend attribute, named by its
// getter ("d.name", "d.custom=tags", "t.multicall=,t.url=,..."). A
// cache miss falls back to a single RPC call when the item is bound to
// a client; unbound items report ErrFieldUnavailable instead.
func (it *Item) Fetch(name string) (any, error) {
	it.mu.Lock()
	val, ok := it.cache[name]
	it.mu.Unlock()
	if ok {
		return val, nil
	}
	if it.client == nil {
		return nil, fmt.Errorf("%w: %s (not prefetched)", ErrFieldUnavailable, name)
	}

	method, args := parseGetter(name)
	callArgs := append([]any{it.Hash}, args...)
	val, err := it.client.Call(context.Background(), method, callArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFieldUnavailable, name, err)
	}
	it.set(name, val)
	return val, nil
}

func (it *Item) set(name string, val any) {
	it.mu.Lock()
	it.cache[name] = val
	it.mu.Unlock()
}

// fill populates the cache from one multicall row, positionally matched
// to the getter list the row was fetched with.
func (it *Item) fill(getters []string, row []any) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for i, g := range getters {
		if i < len(row) {
			it.cache[g] = row[i]
		}
	}
}

// parseGetter splits a getter name into its RPC method and trailing
// arguments. "d.name" calls d.name(hash); "d.custom=tags" calls
// d.custom(hash, "tags"); "t.multicall=,t.url=,t.is_enabled=" calls
// t.multicall(hash, "", "t.url=", "t.is_enabled=").
func parseGetter(name string) (method string, args []any) {
	parts := strings.Split(name, ",")
	head := parts[0]
	if i := strings.IndexByte(head, '='); i >= 0 {
		method = head[:i]
		if len(parts) > 1 || head[i+1:] != "" {
			args = append(args, head[i+1:])
		}
	} else {
		method = head
	}
	for _, p := range parts[1:] {
		args = append(args, p)
	}
	return method, args
}

// multicallCommand renders a getter as a d.multicall2 command string:
// plain getters gain a trailing "=", parameterized ones pass through.
func multicallCommand(getter string) string {
	if strings.Contains(getter, "=") {
		return getter
	}
	return getter + "="
}
