package cmd

import (
	"fmt"

	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage the configured git remotes",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <remote-spec>",
	Short: "Add a git remote to the configuration",
	Long: `Add a remote specifier to ~/.bmadkit/config.json so every future
resolution consults it.

Example:
  bmadkit remote add git+https://github.com/acme/bmad-pack.git#main`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate before persisting; a bad spec never lands in config.
		spec, err := core.ParseRemoteSpec(args[0])
		if err != nil {
			return err
		}

		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.config.Load()
		if err != nil {
			return err
		}

		canonical := spec.String()
		for _, existing := range cfg.Remotes {
			if existing == canonical || existing == args[0] {
				fmt.Printf("Remote already configured: %s\n", canonical)
				return nil
			}
		}
		cfg.Remotes = append(cfg.Remotes, canonical)
		if err := d.config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", canonical)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <remote-spec>",
	Short: "Remove a git remote from the configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.config.Load()
		if err != nil {
			return err
		}

		target := args[0]
		if spec, err := core.ParseRemoteSpec(target); err == nil {
			target = spec.String()
		}

		kept := cfg.Remotes[:0]
		removed := false
		for _, existing := range cfg.Remotes {
			if existing == target || existing == args[0] {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			return fmt.Errorf("remote not configured: %s", args[0])
		}
		cfg.Remotes = kept
		if err := d.config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", target)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured git remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		cfg, err := d.config.Load()
		if err != nil {
			return err
		}
		if len(cfg.Remotes) == 0 {
			fmt.Println("No remotes configured.")
			return nil
		}
		for _, r := range cfg.Remotes {
			fmt.Println(r)
		}
		return nil
	},
}

func init() {
	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	rootCmd.AddCommand(remoteCmd)
}
