// Command rtctl queries and controls rtorrent instances.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rtctl/cmd/rtctl/cli"
)

var version = "dev"

func main() {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	rootCmd := &cobra.Command{
		Use:          "rtctl",
		Short:        "Query and control rtorrent",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level.Set(slog.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringP("connection", "c", "", "backend connection name (default from config)")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(
		cli.NewQueryCommand(logger),
		cli.NewCallCommand(logger),
		cli.NewMetaCommand(),
		cli.NewFieldsCommand(),
		cli.NewDaemonCommand(logger),
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
