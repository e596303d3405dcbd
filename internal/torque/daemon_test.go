package torque

import (
	"path/filepath"
	"testing"
	"time"

	"rtctl/internal/config"
)

func daemonConfig(jobs ...config.JobConfig) config.Config {
	return config.Config{
		DefaultConnection: "local",
		Connections: []config.Connection{
			{Name: "local", URL: "scgi://127.0.0.1:5000", Timeout: config.Duration(30 * time.Second)},
		},
		Daemon: config.DaemonConfig{Jobs: jobs},
	}
}

func TestNewDaemonBuildsJobs(t *testing.T) {
	dir := t.TempDir()
	cfg := daemonConfig(
		config.JobConfig{
			Name: "watch-incoming", Type: "watch", Schedule: "*/10 * * * * *",
			Connection: "local", Paths: []string{filepath.Join(dir, "*.torrent")}, LoadMode: "start",
		},
		config.JobConfig{
			Name: "queue", Type: "queue", Schedule: "0 * * * * *",
			Connection: "local", DownloadingMax: 2, StartAtOnce: 1, Startable: "is_open=no",
		},
	)

	d, err := NewDaemon(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.closeClients()

	if !d.scheduler.HasJob("watch-incoming") || !d.scheduler.HasJob("queue") {
		t.Error("jobs not registered with the scheduler")
	}
	if len(d.watchers) != 1 {
		t.Errorf("expected 1 watcher, got %d", len(d.watchers))
	}
	if len(d.clients) != 1 {
		t.Errorf("connection not shared, %d clients", len(d.clients))
	}
}

func TestNewDaemonRejectsBadJob(t *testing.T) {
	tests := []struct {
		name string
		job  config.JobConfig
	}{
		{"bad startable", config.JobConfig{
			Name: "q", Type: "queue", Schedule: "0 * * * * *",
			Connection: "local", DownloadingMax: 1, StartAtOnce: 1, Startable: "no_such_field=yes",
		}},
		{"bad cron", config.JobConfig{
			Name: "w", Type: "watch", Schedule: "whenever",
			Connection: "local", Paths: []string{"/watch/*.torrent"}, LoadMode: "start",
		}},
		{"unknown connection", config.JobConfig{
			Name: "w", Type: "watch", Schedule: "0 * * * * *",
			Connection: "remote", Paths: []string{"/watch/*.torrent"}, LoadMode: "start",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDaemon(daemonConfig(tt.job), nil); err == nil {
				t.Error("expected construction error")
			}
		})
	}
}
