package torque

import (
	"context"
	"sync"
)

type rpcCall struct {
	method string
	args   []any
}

// fakeBackend satisfies the rtorrent client's RPC surface for tests.
type fakeBackend struct {
	handler func(method string, args []any) (any, error)

	mu    sync.Mutex
	calls []rpcCall
}

func (f *fakeBackend) Call(_ context.Context, method string, args ...any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rpcCall{method: method, args: args})
	f.mu.Unlock()
	if f.handler == nil {
		return nil, nil
	}
	return f.handler(method, args)
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) countCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (f *fakeBackend) methodCalls(method string) []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
