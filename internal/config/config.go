// Package config loads the rtctl configuration file: named backend
// connections and the daemon's job table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "45s" or "2m" into a duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration tree.
type Config struct {
	DefaultConnection string       `yaml:"default_connection"`
	Connections       []Connection `yaml:"connections"`
	Daemon            DaemonConfig `yaml:"daemon"`
}

// Connection is one named backend endpoint.
type Connection struct {
	Name string `yaml:"name"`
	// URL scheme selects the transport (http, https, scgi, scgi+unix,
	// scgi+ssh); the rpc query parameter selects the codec (xml, json).
	URL           string   `yaml:"url"`
	SSHIdentity   string   `yaml:"ssh_identity"`
	SSHKnownHosts string   `yaml:"ssh_known_hosts"`
	Timeout       Duration `yaml:"timeout"`
}

// DaemonConfig holds the daemon's job table.
type DaemonConfig struct {
	Jobs []JobConfig `yaml:"jobs"`
}

// JobConfig configures one scheduled daemon job. Type selects which of
// the variant fields apply.
type JobConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`     // watch, queue, exporter
	Schedule   string `yaml:"schedule"` // cron expression with seconds
	Connection string `yaml:"connection"`

	// watch
	Paths    []string `yaml:"paths"` // doublestar patterns
	LoadMode string   `yaml:"load_mode"`

	// queue
	DownloadingMax int      `yaml:"downloading_max"`
	StartAtOnce    int      `yaml:"start_at_once"`
	Intermission   Duration `yaml:"intermission"`
	Startable      string   `yaml:"startable"`

	// exporter
	Listen string `yaml:"listen"`
}

// DefaultPath returns the standard config file location,
// $XDG_CONFIG_HOME/rtctl/config.yaml or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "rtctl", "config.yaml"), nil
}

// Default is the configuration used when no file exists: one local
// connection on rtorrent's customary socket path.
func Default() Config {
	cfg := Config{
		DefaultConnection: "local",
		Connections: []Connection{
			{Name: "local", URL: "scgi+unix://" + filepath.Join(homeDir(), ".rtorrent", "rpc.socket")},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads and validates a configuration file. A missing file at the
// default path is not an error; the built-in default applies.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR} / ${VAR:-default}.
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Connection resolves a connection by name; the empty name selects the
// configured default.
func (c *Config) Connection(name string) (Connection, error) {
	if name == "" {
		name = c.DefaultConnection
	}
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, nil
		}
	}
	return Connection{}, fmt.Errorf("unknown connection %q", name)
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.DefaultConnection == "" && len(c.Connections) > 0 {
		c.DefaultConnection = c.Connections[0].Name
	}
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Timeout <= 0 {
			conn.Timeout = Duration(30 * time.Second)
		}
		conn.SSHIdentity = expandHome(conn.SSHIdentity)
		conn.SSHKnownHosts = expandHome(conn.SSHKnownHosts)
	}
	for i := range c.Daemon.Jobs {
		job := &c.Daemon.Jobs[i]
		if job.Connection == "" {
			job.Connection = c.DefaultConnection
		}
		switch job.Type {
		case "watch":
			if job.LoadMode == "" {
				job.LoadMode = "start"
			}
			for j, p := range job.Paths {
				job.Paths[j] = expandHome(p)
			}
		case "queue":
			if job.DownloadingMax <= 0 {
				job.DownloadingMax = 3
			}
			if job.StartAtOnce <= 0 {
				job.StartAtOnce = 1
			}
			if job.Startable == "" {
				job.Startable = "is_open=no is_ignored=no"
			}
		case "exporter":
			if job.Listen == "" {
				job.Listen = ":9135"
			}
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("no connections configured")
	}
	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connections[%d]: name is required", i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection %q", conn.Name)
		}
		seen[conn.Name] = true
		if conn.URL == "" {
			return fmt.Errorf("connection %q: url is required", conn.Name)
		}
	}
	if _, err := c.Connection(""); err != nil {
		return fmt.Errorf("default_connection: %w", err)
	}

	jobNames := make(map[string]bool)
	for i, job := range c.Daemon.Jobs {
		if job.Name == "" {
			return fmt.Errorf("daemon.jobs[%d]: name is required", i)
		}
		if jobNames[job.Name] {
			return fmt.Errorf("duplicate job %q", job.Name)
		}
		jobNames[job.Name] = true
		if job.Schedule == "" {
			return fmt.Errorf("job %q: schedule is required", job.Name)
		}
		if !seen[job.Connection] {
			return fmt.Errorf("job %q: unknown connection %q", job.Name, job.Connection)
		}

		switch job.Type {
		case "watch":
			if len(job.Paths) == 0 {
				return fmt.Errorf("job %q: watch requires paths", job.Name)
			}
			if job.LoadMode != "start" && job.LoadMode != "normal" {
				return fmt.Errorf("job %q: load_mode must be start or normal, got %q", job.Name, job.LoadMode)
			}
		case "queue", "exporter":
			// Variant fields defaulted above.
		default:
			return fmt.Errorf("job %q: unknown type %q", job.Name, job.Type)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
