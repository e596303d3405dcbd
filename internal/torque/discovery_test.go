package torque

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaticPrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"/watch/**/*.torrent", "/watch"},
		{"/watch/incoming/*.torrent", "/watch/incoming"},
		{"/watch/file.torrent", "/watch"},
		{"/w[ab]/x.torrent", "/"},
		{"/srv/tv?/drop/*.torrent", "/srv"},
	}
	for _, tt := range tests {
		if got := staticPrefix(tt.pattern); got != tt.want {
			t.Errorf("staticPrefix(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestWatchDirsDeduplicated(t *testing.T) {
	dirs := watchDirsForPatterns([]string{
		"/watch/*.torrent",
		"/watch/**/*.torrent",
		"/other/*.torrent",
	})
	if len(dirs) != 2 {
		t.Fatalf("expected 2 watch dirs, got %v", dirs)
	}
	if dirs[0] != "/watch" || dirs[1] != "/other" {
		t.Errorf("unexpected dirs %v", dirs)
	}
}

func TestMatchesAnyPattern(t *testing.T) {
	patterns := []string{"/watch/**/*.torrent"}
	tests := []struct {
		path string
		want bool
	}{
		{"/watch/a.torrent", true},
		{"/watch/sub/deep/b.torrent", true},
		{"/watch/a.torrent.part", false},
		{"/elsewhere/a.torrent", false},
	}
	for _, tt := range tests {
		if got := matchesAnyPattern(tt.path, patterns); got != tt.want {
			t.Errorf("matchesAnyPattern(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(dir, "a.torrent"),
		filepath.Join(sub, "b.torrent"),
		filepath.Join(dir, "notes.txt"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// A directory whose name matches the pattern must be skipped.
	if err := os.Mkdir(filepath.Join(dir, "dir.torrent"), 0o755); err != nil {
		t.Fatal(err)
	}

	// Overlapping patterns must not produce duplicates.
	files, err := discoverFiles([]string{
		filepath.Join(dir, "**", "*.torrent"),
		filepath.Join(dir, "*.torrent"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
}
