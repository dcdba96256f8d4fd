package cmd

import (
	"fmt"

	"github.com/bmadkit/bmadkit/internal/server"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Explain how installations were (or were not) discovered",
	Long: `Run discovery across every configured source and print the full
trace: each path checked with its accept/reject reason, the resulting
priority order, and any warnings.

Exits non-zero when no installation was found anywhere.`,
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

		catalog, resolveErr := newResolver(cfg).Resolve(cmd.Context(), cfg)
		if catalog == nil {
			return resolveErr
		}
		fmt.Print(server.RenderDiagnostics(catalog, resolveErr))
		return resolveErr
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
