package fields

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
)

// Coercion helpers for raw multicall values. rtorrent returns integers as
// int64 and everything else as strings; single-getter fallbacks may also
// produce int.

func itemString(it Item, getter string) (string, error) {
	v, err := it.Fetch(getter)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func itemInt(it Item, getter string) (int64, error) {
	v, err := it.Fetch(getter)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		if n == "" {
			return 0, nil
		}
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("non-numeric value %T for %s", v, getter)
	}
}

func itemBool(it Item, getter string) (bool, error) {
	n, err := itemInt(it, getter)
	return n != 0, err
}

// stringField builds a plain getter-backed string descriptor.
func stringField(name, getter, help string, prefilter string) *Descriptor {
	return &Descriptor{
		Name:      name,
		Kind:      String,
		Help:      help,
		Requires:  []string{getter},
		Prefilter: prefilter,
		Accessor:  func(it Item) (any, error) { return itemString(it, getter) },
	}
}

// boolField builds a getter-backed boolean flag descriptor.
func boolField(name, getter, help string) *Descriptor {
	return &Descriptor{
		Name:      name,
		Kind:      Bool,
		Help:      help,
		Requires:  []string{getter},
		Prefilter: getter + "=",
		Accessor:  func(it Item) (any, error) { return itemBool(it, getter) },
	}
}

// byteField builds a getter-backed byte-size descriptor.
func byteField(name, getter, help string, prefilter string) *Descriptor {
	return &Descriptor{
		Name:      name,
		Kind:      ByteSize,
		Help:      help,
		Requires:  []string{getter},
		Prefilter: prefilter,
		Accessor:  func(it Item) (any, error) { return itemInt(it, getter) },
	}
}

// timeField builds a descriptor for a custom timestamp attribute
// ("d.custom=tm_*"); zero means the timestamp was never recorded.
func timeField(name, customKey, help string) *Descriptor {
	getter := "d.custom=" + customKey
	return &Descriptor{
		Name:      name,
		Kind:      TimeDelayed,
		Help:      help,
		Requires:  []string{getter},
		Prefilter: getter,
		Accessor: func(it Item) (any, error) {
			s, err := itemString(it, getter)
			if err != nil {
				return nil, err
			}
			if s == "" {
				return int64(0), nil
			}
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad timestamp in %s: %w", getter, err)
			}
			return n, nil
		},
	}
}

// datapath returns the filesystem path of the item's data. Multi-file items
// download into the directory itself; single-file items into directory/name.
func datapath(it Item) (string, error) {
	dir, err := itemString(it, "d.directory")
	if err != nil {
		return "", err
	}
	multi, err := itemBool(it, "d.is_multi_file")
	if err != nil {
		return "", err
	}
	if multi {
		return strings.TrimRight(dir, "/"), nil
	}
	name, err := itemString(it, "d.name")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// tagSet splits a whitespace-separated custom attribute into a lowercase
// tag list.
func tagSet(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// lastPauseTime returns the timestamp of the latest "P" event in an
// activations event string like "R1283008245P1283008268", or 0 when the
// item was never paused. Events are appended chronologically, so the
// last P in the string wins.
func lastPauseTime(interval string) int64 {
	var last int64
	for i := 0; i < len(interval); i++ {
		kind := interval[i]
		if kind < 'A' || kind > 'Z' {
			continue
		}
		j := i + 1
		for j < len(interval) && isDigitByte(interval[j]) {
			j++
		}
		if kind == 'P' && j > i+1 {
			if n, err := strconv.ParseInt(interval[i+1:j], 10, 64); err == nil {
				last = n
			}
		}
		i = j - 1
	}
	return last
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

// builtinFields is the built-in field table. The getter names mirror the
// rtorrent XML-RPC attribute surface.
func builtinFields(clock clockwork.Clock) []*Descriptor {
	var out []*Descriptor

	// Identity.
	out = append(out,
		&Descriptor{
			Name: "hash", Kind: String, Help: "info hash",
			Requires: []string{"d.hash"},
			Accessor: func(it Item) (any, error) { return itemString(it, "d.hash") },
		},
		stringField("name", "d.name", "name (file or root directory)", "d.name="),
		&Descriptor{
			Name: "alias", Kind: String, Help: "tracker domain",
			Requires: []string{"t.multicall=,t.url=,t.is_enabled="},
			Accessor: func(it Item) (any, error) { return trackerDomain(it) },
		},
	)

	// Flags.
	out = append(out,
		boolField("is_open", "d.is_open", "download open?"),
		boolField("is_active", "d.is_active", "download active?"),
		boolField("is_private", "d.is_private", "private flag set (no DHT/PEX)?"),
		boolField("is_multi_file", "d.is_multi_file", "single- or multi-file download?"),
		&Descriptor{
			Name: "is_complete", Kind: Bool, Help: "download complete?",
			Requires:  []string{"d.complete"},
			Prefilter: "d.complete=",
			Accessor:  func(it Item) (any, error) { return itemBool(it, "d.complete") },
		},
		&Descriptor{
			Name: "is_ignored", Kind: Bool, Help: "ignore commands?",
			Requires:  []string{"d.ignore_commands"},
			Prefilter: "d.ignore_commands=",
			Accessor:  func(it Item) (any, error) { return itemBool(it, "d.ignore_commands") },
		},
	)

	// Numbers.
	out = append(out,
		&Descriptor{
			Name: "ratio", Kind: Number, Help: "normalized upload ratio (1:1 = 1.0)",
			Requires:  []string{"d.ratio"},
			Prefilter: "d.ratio=",
			Scale:     1000,
			Accessor: func(it Item) (any, error) {
				n, err := itemInt(it, "d.ratio")
				return float64(n) / 1000.0, err
			},
		},
		&Descriptor{
			Name: "peers_connected", Kind: Number, Help: "number of connected peers",
			Requires:  []string{"d.peers_connected"},
			Prefilter: "d.peers_connected=",
			Accessor:  func(it Item) (any, error) { return itemInt(it, "d.peers_connected") },
		},
		&Descriptor{
			Name: "prio", Kind: Priority, Help: "priority (0=off, 1=low, 2=normal, 3=high)",
			Requires:  []string{"d.priority"},
			Prefilter: "d.priority=",
			Accessor:  func(it Item) (any, error) { return itemInt(it, "d.priority") },
		},
		&Descriptor{
			Name: "done", Kind: Number, Help: "completion in percent",
			Requires: []string{"d.completed_bytes", "d.size_bytes"},
			Accessor: func(it Item) (any, error) {
				c, err := itemInt(it, "d.completed_bytes")
				if err != nil {
					return nil, err
				}
				s, err := itemInt(it, "d.size_bytes")
				if err != nil {
					return nil, err
				}
				if s == 0 {
					return float64(0), nil
				}
				return 100 * float64(c) / float64(s), nil
			},
		},
		&Descriptor{
			Name: "fno", Kind: Number, Help: "number of files in this item",
			Requires: []string{"d.size_files"},
			Accessor: func(it Item) (any, error) { return itemInt(it, "d.size_files") },
		},
	)

	// Byte sizes and rates.
	out = append(out,
		byteField("size", "d.size_bytes", "data size", "d.size_bytes="),
		byteField("uploaded", "d.up.total", "amount of uploaded data", "d.up.total="),
		byteField("downloaded", "d.down.total", "amount of downloaded data", "d.down.total="),
		byteField("left", "d.left_bytes", "bytes not yet downloaded", "d.left_bytes="),
		byteField("up", "d.up.rate", "upload rate", "d.up.rate="),
		byteField("down", "d.down.rate", "download rate", "d.down.rate="),
		&Descriptor{
			Name: "xfer", Kind: ByteSize, Help: "combined transfer rate",
			Requires: []string{"d.up.rate", "d.down.rate"},
			Accessor: func(it Item) (any, error) {
				u, err := itemInt(it, "d.up.rate")
				if err != nil {
					return nil, err
				}
				d, err := itemInt(it, "d.down.rate")
				if err != nil {
					return nil, err
				}
				return u + d, nil
			},
		},
	)

	// Timestamps.
	out = append(out,
		timeField("loaded", "tm_loaded", "time metafile was loaded"),
		timeField("started", "tm_started", "time download was first started"),
		&Descriptor{
			Name: "completed", Kind: TimeDelayed, Help: "time download was finished",
			Requires:  []string{"d.timestamp.finished"},
			Prefilter: "d.timestamp.finished=",
			Accessor:  func(it Item) (any, error) { return itemInt(it, "d.timestamp.finished") },
		},
		&Descriptor{
			Name: "last_active", Kind: TimeDelayed, Help: "last time a peer was connected",
			Requires: []string{"d.timestamp.last_active"},
			Accessor: func(it Item) (any, error) { return itemInt(it, "d.timestamp.last_active") },
		},
		&Descriptor{
			Name: "last_xfer", Kind: TimeDelayed, Help: "last time data was transferred",
			Requires: []string{"d.timestamp.last_xfer"},
			Accessor: func(it Item) (any, error) { return itemInt(it, "d.timestamp.last_xfer") },
		},
		&Descriptor{
			Name: "stopped", Kind: TimeDelayed, Help: "time download was last stopped or paused",
			Requires: []string{"d.custom=activations"},
			Accessor: func(it Item) (any, error) {
				s, err := itemString(it, "d.custom=activations")
				if err != nil {
					return nil, err
				}
				return lastPauseTime(s), nil
			},
		},
	)

	// Durations, derived from the finish timestamp.
	out = append(out,
		&Descriptor{
			Name: "seedtime", Kind: Duration, Help: "time since download was finished",
			Requires: []string{"d.timestamp.finished", "d.complete"},
			Accessor: func(it Item) (any, error) {
				complete, err := itemBool(it, "d.complete")
				if err != nil {
					return nil, err
				}
				fin, err := itemInt(it, "d.timestamp.finished")
				if err != nil {
					return nil, err
				}
				if !complete || fin == 0 {
					return nil, nil
				}
				return clock.Now().Unix() - fin, nil
			},
		},
		&Descriptor{
			Name: "leechtime", Kind: Duration, Help: "time between load and completion",
			Requires: []string{"d.custom=tm_loaded", "d.timestamp.finished"},
			Accessor: func(it Item) (any, error) {
				loaded, err := itemString(it, "d.custom=tm_loaded")
				if err != nil {
					return nil, err
				}
				fin, err := itemInt(it, "d.timestamp.finished")
				if err != nil {
					return nil, err
				}
				l, _ := strconv.ParseInt(strings.TrimSpace(loaded), 10, 64)
				if l == 0 || fin == 0 || fin < l {
					return nil, nil
				}
				return fin - l, nil
			},
		},
	)

	// Paths and strings.
	out = append(out,
		stringField("directory", "d.directory", "directory containing download data", "d.directory="),
		stringField("message", "d.message", "current tracker message", "d.message="),
		stringField("throttle", "d.throttle_name", "throttle group name", "d.throttle_name="),
		stringField("metafile", "d.tied_to_file", "path to torrent file", ""),
		stringField("label", "d.custom1", "ruTorrent label (alias for custom_1)", "d.custom1="),
		&Descriptor{
			Name: "path", Kind: String, Help: "path to download data",
			Requires: []string{"d.directory", "d.is_multi_file", "d.name"},
			Accessor: func(it Item) (any, error) { return datapath(it) },
		},
		&Descriptor{
			Name: "realpath", Kind: String, Help: "real path to download data",
			Requires: []string{"d.directory", "d.is_multi_file", "d.name"},
			Accessor: func(it Item) (any, error) {
				p, err := datapath(it)
				if err != nil || p == "" {
					return p, err
				}
				if rp, rerr := filepath.EvalSymlinks(p); rerr == nil {
					return rp, nil
				}
				return p, nil
			},
		},
		&Descriptor{
			Name: "tracker", Kind: String, Help: "first announce URL",
			Requires: []string{"t.multicall=,t.url=,t.is_enabled="},
			Accessor: func(it Item) (any, error) { return trackerURL(it) },
		},
	)

	// Tag sets.
	out = append(out,
		&Descriptor{
			Name: "tagged", Kind: Tags, Help: "has certain tags?",
			Requires:  []string{"d.custom=tags"},
			Prefilter: "d.custom=tags",
			Accessor: func(it Item) (any, error) {
				s, err := itemString(it, "d.custom=tags")
				if err != nil {
					return nil, err
				}
				return tagSet(s), nil
			},
		},
		&Descriptor{
			Name: "views", Kind: Tags, Help: "views this item is attached to",
			Requires:  []string{"d.views"},
			Prefilter: "d.views=",
			Accessor: func(it Item) (any, error) {
				v, err := it.Fetch("d.views")
				if err != nil {
					return nil, err
				}
				return viewList(v), nil
			},
		},
	)

	// File list.
	out = append(out, &Descriptor{
		Name: "files", Kind: FileList, Help: "list of files in this item",
		Requires: []string{"f.multicall=,f.path="},
		Accessor: func(it Item) (any, error) {
			v, err := it.Fetch("f.multicall=,f.path=")
			if err != nil {
				return nil, err
			}
			return filePaths(v), nil
		},
	})

	return out
}

// trackerURL extracts the first enabled announce URL from the prefetched
// tracker multicall rows.
func trackerURL(it Item) (string, error) {
	v, err := it.Fetch("t.multicall=,t.url=,t.is_enabled=")
	if err != nil {
		return "", err
	}
	rows, ok := v.([]any)
	if !ok {
		return "", nil
	}
	for _, row := range rows {
		cols, ok := row.([]any)
		if !ok || len(cols) < 2 {
			continue
		}
		url, _ := cols[0].(string)
		enabled, _ := cols[1].(int64)
		if url != "" && enabled != 0 {
			return url, nil
		}
	}
	return "", nil
}

// trackerDomain reduces the first announce URL to its host, with the
// common "tracker."/"announce." prefixes stripped.
func trackerDomain(it Item) (string, error) {
	url, err := trackerURL(it)
	if err != nil || url == "" {
		return "", err
	}
	host := url
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	for _, prefix := range []string{"tracker.", "announce.", "www."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host, nil
}

// viewList normalizes the d.views= multicall value into a tag list.
func viewList(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		return tagSet(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, strings.ToLower(s))
			}
		}
		return out
	default:
		return nil
	}
}

// filePaths normalizes the f.multicall rows into a path list.
func filePaths(v any) []string {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		switch r := row.(type) {
		case string:
			out = append(out, r)
		case []any:
			if len(r) > 0 {
				if s, ok := r[0].(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
