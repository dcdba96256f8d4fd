package cmd

import (
	"fmt"

	"github.com/bmadkit/bmadkit/internal/logging"
	"github.com/bmadkit/bmadkit/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve resolved content as an MCP server over stdio",
	Long: `Run bmadkit as a Model Context Protocol server on stdin/stdout.

The catalog is rebuilt on every tool call, so filesystem changes are
visible immediately; only the git clones are cached between calls.
Logs go to stderr (or --log-file) — stdout belongs to the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.loadRuntimeConfig(cmd)
		if err != nil {
			return err
		}

		level, _ := cmd.Flags().GetString("log-level")
		logFile, _ := cmd.Flags().GetString("log-file")
		log, err := logging.Init(logging.Options{
			Level:      level,
			FilePath:   logFile,
			MaxSizeMB:  20,
			MaxBackups: 3,
		})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		log.WithField("version", Version).Info("bmadkit MCP server starting")
		return server.Serve(server.New(cfg, Version, log))
	},
}

func init() {
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-file", "", "Write logs to a rotating file instead of stderr")
	rootCmd.AddCommand(serveCmd)
}
