package torque

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"rtctl/internal/logging"
	"rtctl/internal/metafile"
	"rtctl/internal/rtorrent"
)

// WatchJob loads .torrent files appearing under configured directories
// into the backend. New files are picked up live via fsnotify; the cron
// tick rescans the patterns for anything inotify missed (network
// mounts, files present before startup).
type WatchJob struct {
	client   *rtorrent.Client
	patterns []string
	mode     rtorrent.LoadMode
	logger   *slog.Logger

	mu     sync.Mutex
	loaded map[string]bool // absolute path → handled
}

// NewWatchJob builds a watch job over doublestar patterns like
// "~/watch/**/*.torrent" (already home-expanded by config).
func NewWatchJob(client *rtorrent.Client, patterns []string, mode rtorrent.LoadMode, logger *slog.Logger) *WatchJob {
	return &WatchJob{
		client:   client,
		patterns: patterns,
		mode:     mode,
		logger:   logging.Default(logger).With("component", "watch"),
		loaded:   make(map[string]bool),
	}
}

// Start runs the fsnotify loop until ctx is cancelled. An initial scan
// handles files already present.
func (w *WatchJob) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirsForPatterns(w.patterns) {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !matchesAnyPattern(event.Name, w.patterns) {
				continue
			}
			w.loadFile(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// Tick is the cron entry point: rescan for unhandled files.
func (w *WatchJob) Tick(ctx context.Context) error {
	return w.scan(ctx)
}

func (w *WatchJob) scan(ctx context.Context) error {
	files, err := discoverFiles(w.patterns)
	if err != nil {
		return fmt.Errorf("scan watch patterns: %w", err)
	}
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.loadFile(ctx, path)
	}
	return nil
}

// loadFile validates and hands one metafile to the backend. The raw
// bytes travel over RPC so the backend host never needs to see the
// watch directory. Parse failures are logged and the file retried on
// the next tick (it may still be mid-write).
func (w *WatchJob) loadFile(ctx context.Context, path string) {
	w.mu.Lock()
	done := w.loaded[path]
	w.mu.Unlock()
	if done {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("cannot read metafile", "path", path, "error", err)
		return
	}
	m, err := metafile.Parse(data)
	if err != nil {
		w.logger.Warn("not a loadable metafile yet", "path", path, "error", err)
		return
	}

	if err := w.client.LoadRaw(ctx, w.mode, data); err != nil {
		w.logger.Error("load failed", "path", path, "hash", m.InfoHashString(), "error", err)
		return
	}

	w.mu.Lock()
	w.loaded[path] = true
	w.mu.Unlock()
	w.logger.Info("metafile loaded",
		"path", path,
		"name", m.Name,
		"hash", m.InfoHashString(),
		"mode", string(w.mode))
}
