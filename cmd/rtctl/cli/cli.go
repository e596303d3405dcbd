// Package cli implements the rtctl subcommand tree: filtering queries,
// raw RPC calls, metafile inspection and the job daemon.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"rtctl/internal/config"
	"rtctl/internal/rpc"
	"rtctl/internal/rtorrent"
)

// loadConfig reads the file named by the persistent --config flag,
// falling back to the platform default path (where a missing file
// yields the built-in default).
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path)
}

// connect dials the backend selected by the persistent --connection
// flag. The caller owns the returned client and must Close it.
func connect(cmd *cobra.Command, logger *slog.Logger) (*rtorrent.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	name, _ := cmd.Flags().GetString("connection")
	conn, err := cfg.Connection(name)
	if err != nil {
		return nil, err
	}
	return dialConnection(conn, logger)
}

func dialConnection(conn config.Connection, logger *slog.Logger) (*rtorrent.Client, error) {
	rpcClient, err := rpc.Dial(conn.URL, rpc.Config{
		Timeout:       conn.Timeout.Std(),
		SSHIdentity:   conn.SSHIdentity,
		SSHKnownHosts: conn.SSHKnownHosts,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return rtorrent.New(rpcClient, logger), nil
}
