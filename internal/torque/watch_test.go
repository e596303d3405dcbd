package torque

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/bencode"

	"rtctl/internal/rtorrent"
)

func torrentBytes(t *testing.T, name string) []byte {
	t.Helper()
	data, err := bencode.EncodeBytes(map[string]any{
		"announce": "https://tracker.example.org/announce",
		"info": map[string]any{
			"name":         name,
			"piece length": 262144,
			"pieces":       strings.Repeat("\x11", 20),
			"length":       4096,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWatchTickLoadsNewFiles(t *testing.T) {
	dir := t.TempDir()
	good := torrentBytes(t, "linux.iso")
	if err := os.WriteFile(filepath.Join(dir, "good.torrent"), good, 0o644); err != nil {
		t.Fatal(err)
	}
	// Mid-write garbage stays unloaded and is retried next tick.
	if err := os.WriteFile(filepath.Join(dir, "partial.torrent"), []byte("d4:info"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{}
	client := rtorrent.New(backend, nil)
	w := NewWatchJob(client, []string{filepath.Join(dir, "*.torrent")}, rtorrent.LoadStart, nil)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	loads := backend.methodCalls("load.raw_start")
	if len(loads) != 1 {
		t.Fatalf("expected 1 load call, got %d", len(loads))
	}
	if loads[0].args[0] != "" {
		t.Errorf("first load arg = %v, want empty target", loads[0].args[0])
	}
	sent, ok := loads[0].args[1].([]byte)
	if !ok || !bytes.Equal(sent, good) {
		t.Errorf("backend did not receive the raw metafile bytes")
	}

	// A second tick must not reload the handled file.
	if err := w.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := backend.countCalls("load.raw_start"); n != 1 {
		t.Errorf("expected no reload, got %d load calls", n)
	}
}

func TestWatchNormalMode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.torrent"), torrentBytes(t, "a"), 0o644); err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{}
	w := NewWatchJob(rtorrent.New(backend, nil), []string{filepath.Join(dir, "*.torrent")}, rtorrent.LoadNormal, nil)
	if err := w.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := backend.countCalls("load.raw_verbose"); n != 1 {
		t.Errorf("expected load.raw_verbose, calls: %+v", backend.calls)
	}
}
