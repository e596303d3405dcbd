package metafile

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zeebo/bencode"
)

// buildTorrent assembles test metafile bytes from a top-level dict.
func buildTorrent(t *testing.T, top map[string]any) []byte {
	t.Helper()
	data, err := bencode.EncodeBytes(top)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func singleFileTorrent(t *testing.T) []byte {
	t.Helper()
	return buildTorrent(t, map[string]any{
		"announce":      "http://tracker.example/announce",
		"comment":       "test payload",
		"created by":    "rtctl test",
		"creation date": int64(1700000000),
		"info": map[string]any{
			"name":         "ubuntu.iso",
			"piece length": int64(262144),
			"pieces":       strings.Repeat("\x01", 2*sha1.Size),
			"length":       int64(400000),
		},
		// Session garbage a client may have left behind.
		"rtorrent":          map[string]any{"state": int64(1)},
		"libtorrent_resume": map[string]any{"bitfield": int64(2)},
	})
}

func TestParseSingleFile(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "ubuntu.iso" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.Announce != "http://tracker.example/announce" {
		t.Errorf("Announce = %q", m.Announce)
	}
	if m.Comment != "test payload" || m.CreatedBy != "rtctl test" {
		t.Errorf("Comment/CreatedBy = %q/%q", m.Comment, m.CreatedBy)
	}
	if m.CreationDate.Unix() != 1700000000 {
		t.Errorf("CreationDate = %v", m.CreationDate)
	}
	if m.PieceLength != 262144 || m.PieceCount != 2 {
		t.Errorf("pieces = %d x %d", m.PieceCount, m.PieceLength)
	}
	want := []File{{Path: "ubuntu.iso", Length: 400000}}
	if diff := cmp.Diff(want, m.Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
	if m.TotalSize != 400000 {
		t.Errorf("TotalSize = %d", m.TotalSize)
	}
}

func TestParseMultiFile(t *testing.T) {
	data := buildTorrent(t, map[string]any{
		"announce": "http://tracker.example/announce",
		"info": map[string]any{
			"name":         "season1",
			"piece length": int64(65536),
			"pieces":       strings.Repeat("\x02", sha1.Size),
			"private":      int64(1),
			"files": []any{
				map[string]any{"length": int64(100), "path": []any{"e01.mkv"}},
				map[string]any{"length": int64(200), "path": []any{"extras", "e02.mkv"}},
			},
		},
	})
	m, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Private {
		t.Error("private flag lost")
	}
	want := []File{
		{Path: filepath.Join("season1", "e01.mkv"), Length: 100},
		{Path: filepath.Join("season1", "extras", "e02.mkv"), Length: 200},
	}
	if diff := cmp.Diff(want, m.Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
	if m.TotalSize != 300 {
		t.Errorf("TotalSize = %d", m.TotalSize)
	}
}

func TestParseRejectsMissingInfo(t *testing.T) {
	data := buildTorrent(t, map[string]any{"announce": "http://x/announce"})
	if _, err := Parse(data); err == nil {
		t.Error("metafile without info parsed")
	}
	if _, err := Parse([]byte("not bencode")); err == nil {
		t.Error("garbage parsed")
	}
}

func TestInfoHashStability(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	if err != nil {
		t.Fatal(err)
	}

	// Independently computed hash of the canonical info encoding.
	info, err := bencode.EncodeBytes(map[string]any{
		"name":         "ubuntu.iso",
		"piece length": int64(262144),
		"pieces":       strings.Repeat("\x01", 2*sha1.Size),
		"length":       int64(400000),
	})
	if err != nil {
		t.Fatal(err)
	}
	sum := sha1.Sum(info)
	if got := m.InfoHashString(); got != hex.EncodeToString(sum[:]) {
		t.Errorf("InfoHashString = %s, want %s", got, hex.EncodeToString(sum[:]))
	}

	// Decode → encode → decode must preserve the hash and the bytes.
	out, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if m2.InfoHashString() != m.InfoHashString() {
		t.Error("info hash changed across a round-trip")
	}
}

func TestEditsPreserveInfoHash(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	if err != nil {
		t.Fatal(err)
	}
	before := m.InfoHashString()

	if err := m.SetAnnounce("http://other.example/announce"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetComment("edited"); err != nil {
		t.Fatal(err)
	}
	removed := m.Strip()
	sort.Strings(removed)
	if diff := cmp.Diff([]string{"libtorrent_resume", "rtorrent"}, removed); diff != "" {
		t.Errorf("Strip removed (-want +got):\n%s", diff)
	}

	out, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Announce != "http://other.example/announce" || m2.Comment != "edited" {
		t.Errorf("edits lost: %q %q", m2.Announce, m2.Comment)
	}
	if m2.InfoHashString() != before {
		t.Error("edit changed the info hash")
	}
}

func TestSetCommentRemoval(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetComment(""); err != nil {
		t.Fatal(err)
	}
	out, _ := m.Encode()
	m2, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Comment != "" {
		t.Errorf("comment survived removal: %q", m2.Comment)
	}
}

func TestWriteAtomic(t *testing.T) {
	m, err := Parse(singleFileTorrent(t))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out.torrent")
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}
	m2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m2.InfoHashString() != m.InfoHashString() {
		t.Error("written file hash differs")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory carries %d entries, want 1", len(entries))
	}
}
