package torque

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"rtctl/internal/fields"
	"rtctl/internal/matching"
	"rtctl/internal/rtorrent"
)

const (
	hashA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	hashB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func newQueueParser(clock clockwork.Clock) *matching.Parser {
	reg := fields.NewRegistryWithClock(clock)
	return matching.NewParser(reg, matching.WithClock(clock))
}

func TestQueueTickStartsWithinLimits(t *testing.T) {
	clock := clockwork.NewFakeClock()

	leeching := []any{"CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"}
	backend := &fakeBackend{}
	backend.handler = func(method string, args []any) (any, error) {
		switch method {
		case "system.listMethods":
			return []any{"d.multicall2"}, nil
		case "download_list":
			return leeching, nil
		case "d.multicall2":
			// Two closed items and one already open.
			return []any{
				[]any{hashA, int64(0)},
				[]any{hashB, int64(0)},
				[]any{"DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", int64(1)},
			}, nil
		case "d.start":
			return 0, nil
		}
		return nil, fmt.Errorf("unexpected method %s", method)
	}

	client := rtorrent.New(backend, nil)
	q, err := NewQueueJob(client, newQueueParser(clock), QueueConfig{
		DownloadingMax: 3,
		StartAtOnce:    1,
		Intermission:   10 * time.Minute,
		Startable:      "is_open=no",
	}, clock, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	starts := backend.methodCalls("d.start")
	if len(starts) != 1 {
		t.Fatalf("expected 1 start (start_at_once), got %d", len(starts))
	}
	if starts[0].args[0] != hashA {
		t.Errorf("started %v, want %s", starts[0].args[0], hashA)
	}

	// Immediately after a burst the intermission blocks further starts.
	if err := q.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := backend.countCalls("d.start"); n != 1 {
		t.Fatalf("intermission ignored, %d starts", n)
	}

	// Past the intermission, but the queue is now full.
	clock.Advance(11 * time.Minute)
	leeching = []any{"C1", "C2", "C3"}
	if err := q.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := backend.countCalls("d.start"); n != 1 {
		t.Fatalf("full queue ignored, %d starts", n)
	}
}

func TestQueueRejectsBadStartable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, err := NewQueueJob(rtorrent.New(&fakeBackend{}, nil), newQueueParser(clock), QueueConfig{
		DownloadingMax: 3,
		StartAtOnce:    1,
		Startable:      "no_such_field=yes",
	}, clock, nil)
	if err == nil {
		t.Fatal("expected parse error for bad startable expression")
	}
}
