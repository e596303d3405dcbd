// Package metafile reads and edits .torrent files. The info dictionary
// is kept as raw bencode so that decoding and re-encoding never changes
// the info hash.
package metafile

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/bencode"
)

// File is one payload file within a torrent.
type File struct {
	Path   string
	Length int64
}

// Metafile is a decoded .torrent. The top-level dictionary is retained
// raw, so unknown keys survive an edit round-trip untouched.
type Metafile struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate time.Time

	// Info dictionary, decoded.
	Name        string
	PieceLength int64
	PieceCount  int
	Private     bool
	Files       []File
	TotalSize   int64

	raw  map[string]bencode.RawMessage
	info bencode.RawMessage
}

type infoDict struct {
	Name        string  `bencode:"name"`
	PieceLength int64   `bencode:"piece length"`
	Pieces      []byte  `bencode:"pieces"`
	Private     int64   `bencode:"private"`
	Length      int64   `bencode:"length"`
	Files       []struct {
		Length int64    `bencode:"length"`
		Path   []string `bencode:"path"`
	} `bencode:"files"`
}

// Load reads and parses a metafile from disk.
func Load(path string) (*Metafile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes metafile bytes.
func Parse(data []byte) (*Metafile, error) {
	m := &Metafile{}
	if err := bencode.DecodeBytes(data, &m.raw); err != nil {
		return nil, fmt.Errorf("malformed metafile: %w", err)
	}
	m.info = m.raw["info"]
	if len(m.info) == 0 {
		return nil, fmt.Errorf("metafile carries no info dictionary")
	}

	var info infoDict
	if err := bencode.DecodeBytes(m.info, &info); err != nil {
		return nil, fmt.Errorf("malformed info dictionary: %w", err)
	}
	m.Name = info.Name
	m.PieceLength = info.PieceLength
	m.PieceCount = len(info.Pieces) / sha1.Size
	m.Private = info.Private != 0

	if len(info.Files) > 0 {
		for _, f := range info.Files {
			m.Files = append(m.Files, File{
				Path:   filepath.Join(append([]string{info.Name}, f.Path...)...),
				Length: f.Length,
			})
			m.TotalSize += f.Length
		}
	} else {
		m.Files = []File{{Path: info.Name, Length: info.Length}}
		m.TotalSize = info.Length
	}

	decodeOptional(m.raw, "announce", &m.Announce)
	decodeOptional(m.raw, "announce-list", &m.AnnounceList)
	decodeOptional(m.raw, "comment", &m.Comment)
	decodeOptional(m.raw, "created by", &m.CreatedBy)
	var created int64
	decodeOptional(m.raw, "creation date", &created)
	if created != 0 {
		m.CreationDate = time.Unix(created, 0)
	}
	return m, nil
}

// decodeOptional fills dst from a raw key, ignoring absence and type
// mismatches (real-world metafiles carry plenty of both).
func decodeOptional(raw map[string]bencode.RawMessage, key string, dst any) {
	if v, ok := raw[key]; ok {
		_ = bencode.DecodeBytes(v, dst)
	}
}

// InfoHash returns the SHA-1 of the raw info dictionary.
func (m *Metafile) InfoHash() [sha1.Size]byte {
	return sha1.Sum(m.info)
}

// InfoHashString returns the info hash as 40 lowercase hex digits, the
// form rtorrent uses as item key.
func (m *Metafile) InfoHashString() string {
	sum := m.InfoHash()
	return hex.EncodeToString(sum[:])
}

// SetAnnounce replaces the announce URL, dropping any announce-list.
func (m *Metafile) SetAnnounce(url string) error {
	enc, err := bencode.EncodeBytes(url)
	if err != nil {
		return err
	}
	m.raw["announce"] = enc
	delete(m.raw, "announce-list")
	m.Announce = url
	m.AnnounceList = nil
	return nil
}

// SetComment replaces (or with "" removes) the comment.
func (m *Metafile) SetComment(comment string) error {
	if comment == "" {
		delete(m.raw, "comment")
		m.Comment = ""
		return nil
	}
	enc, err := bencode.EncodeBytes(comment)
	if err != nil {
		return err
	}
	m.raw["comment"] = enc
	m.Comment = comment
	return nil
}

// standardKeys are the top-level keys Strip preserves. Everything else,
// including rtorrent session state, is removed.
var standardKeys = map[string]bool{
	"announce":      true,
	"announce-list": true,
	"comment":       true,
	"created by":    true,
	"creation date": true,
	"encoding":      true,
	"info":          true,
	"url-list":      true,
}

// Strip removes non-standard top-level keys (resume data, session
// state, client extensions). The info dictionary is never touched.
func (m *Metafile) Strip() []string {
	var removed []string
	for key := range m.raw {
		if !standardKeys[key] {
			delete(m.raw, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Encode renders the metafile back to bencode. Bencode dictionaries are
// canonically key-sorted, so an unmodified metafile produced by a
// conforming encoder round-trips byte-identically.
func (m *Metafile) Encode() ([]byte, error) {
	return bencode.EncodeBytes(m.raw)
}

// Write saves the metafile atomically: encode to a temp file in the
// destination directory, then rename over the target.
func (m *Metafile) Write(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".metafile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
