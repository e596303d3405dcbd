package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
default_connection: local
connections:
  - name: local
    url: scgi+unix:///run/rtorrent/rpc.socket
  - name: seedbox
    url: scgi+ssh://user@box/var/run/rtorrent/rpc.socket
    ssh_identity: ~/.ssh/id_ed25519
    timeout: 45s
daemon:
  jobs:
    - name: watch-incoming
      type: watch
      schedule: "*/20 * * * * *"
      paths: ["/data/watch/**/*.torrent"]
    - name: queue
      type: queue
      schedule: "0 * * * * *"
      downloading_max: 5
      intermission: 2m
      startable: "is_open=no is_ignored=no"
    - name: exporter
      type: exporter
      schedule: "0 * * * * *"
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DefaultConnection != "local" {
		t.Errorf("DefaultConnection = %q", cfg.DefaultConnection)
	}
	conn, err := cfg.Connection("")
	if err != nil || conn.Name != "local" {
		t.Errorf("Connection(\"\") = %+v, %v", conn, err)
	}
	if conn.Timeout.Std() != 30*time.Second {
		t.Errorf("default timeout = %v", conn.Timeout)
	}

	seedbox, err := cfg.Connection("seedbox")
	if err != nil {
		t.Fatal(err)
	}
	if seedbox.Timeout.Std() != 45*time.Second {
		t.Errorf("seedbox timeout = %v", seedbox.Timeout)
	}
	if seedbox.SSHIdentity == "" || seedbox.SSHIdentity[0] == '~' {
		t.Errorf("ssh_identity not home-expanded: %q", seedbox.SSHIdentity)
	}

	if len(cfg.Daemon.Jobs) != 3 {
		t.Fatalf("jobs = %d", len(cfg.Daemon.Jobs))
	}
	watch := cfg.Daemon.Jobs[0]
	if watch.LoadMode != "start" {
		t.Errorf("watch load_mode default = %q", watch.LoadMode)
	}
	if watch.Connection != "local" {
		t.Errorf("watch connection default = %q", watch.Connection)
	}
	queue := cfg.Daemon.Jobs[1]
	if queue.DownloadingMax != 5 || queue.StartAtOnce != 1 {
		t.Errorf("queue limits = %d/%d", queue.DownloadingMax, queue.StartAtOnce)
	}
	if queue.Intermission.Std() != 2*time.Minute {
		t.Errorf("intermission = %v", queue.Intermission)
	}
	exporter := cfg.Daemon.Jobs[2]
	if exporter.Listen != ":9135" {
		t.Errorf("exporter listen default = %q", exporter.Listen)
	}
}

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Connections) != 1 || cfg.Connections[0].Name != "local" {
		t.Errorf("default config = %+v", cfg)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("RTCTL_TEST_SOCKET", "/tmp/test.socket")
	cfg, err := Load(writeConfig(t, `
connections:
  - name: local
    url: scgi+unix://${RTCTL_TEST_SOCKET}
  - name: other
    url: scgi://${RTCTL_TEST_UNSET:-localhost:5000}
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Connections[0].URL != "scgi+unix:///tmp/test.socket" {
		t.Errorf("url = %q", cfg.Connections[0].URL)
	}
	if cfg.Connections[1].URL != "scgi://localhost:5000" {
		t.Errorf("default url = %q", cfg.Connections[1].URL)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no connections", `daemon: {}`},
		{"duplicate connection", `
connections:
  - {name: a, url: scgi://x:1}
  - {name: a, url: scgi://y:1}`},
		{"missing url", `
connections:
  - name: a`},
		{"unknown default", `
default_connection: ghost
connections:
  - {name: a, url: scgi://x:1}`},
		{"unknown job type", `
connections:
  - {name: a, url: scgi://x:1}
daemon:
  jobs:
    - {name: j, type: mystery, schedule: "* * * * * *"}`},
		{"watch without paths", `
connections:
  - {name: a, url: scgi://x:1}
daemon:
  jobs:
    - {name: j, type: watch, schedule: "* * * * * *"}`},
		{"job without schedule", `
connections:
  - {name: a, url: scgi://x:1}
daemon:
  jobs:
    - {name: j, type: queue}`},
		{"job with unknown connection", `
connections:
  - {name: a, url: scgi://x:1}
daemon:
  jobs:
    - {name: j, type: queue, schedule: "* * * * * *", connection: ghost}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Skip("no user config dir in this environment")
	}
	if filepath.Base(path) != "config.yaml" || filepath.Base(filepath.Dir(path)) != "rtctl" {
		t.Errorf("path = %q", path)
	}
}
