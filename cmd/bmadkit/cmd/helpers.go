package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okMark      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	config *core.ConfigManager
}

// newDeps creates shared dependencies. Called lazily by commands that need them.
func newDeps() (*deps, error) {
	config, err := core.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}
	return &deps{config: config}, nil
}

// loadRuntimeConfig merges the persisted config file with the flags of
// this invocation and fills in the runtime scan roots.
func (d *deps) loadRuntimeConfig(cmd *cobra.Command) (*core.Config, error) {
	cfg, err := d.config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if paths, _ := cmd.Flags().GetStringArray("path"); len(paths) > 0 {
		cfg.ExplicitPaths = append(cfg.ExplicitPaths, paths...)
	}
	if remotes, _ := cmd.Flags().GetStringArray("remote"); len(remotes) > 0 {
		cfg.Remotes = append(cfg.Remotes, remotes...)
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		cfg.Mode = core.ModeStrict
	}
	if depth, _ := cmd.Flags().GetInt("max-depth"); depth > 0 {
		cfg.MaxDepth = depth
	}
	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		cfg.CacheRoot = dir
	}
	if noUpdate, _ := cmd.Flags().GetBool("no-update"); noUpdate {
		off := false
		cfg.AutoUpdate = &off
	}

	cfg.CacheRoot = d.config.CacheRoot(cfg)

	if cwd, err := os.Getwd(); err == nil {
		cfg.ProjectDir = cwd
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.UserHome = home
	}
	return cfg, nil
}

// newResolver builds the resolver stack for one invocation.
func newResolver(cfg *core.Config) *core.Resolver {
	cache := core.NewGitCache(cfg.CacheRoot, cfg.AutoUpdateEnabled(), cfg.TTL())
	return core.NewResolver(cache, core.NewScanner(cfg.MaxDepth))
}

// resolveView runs discovery and wraps the catalog in a View. Resolver
// warnings are printed to stderr so stdout stays machine-readable.
func resolveView(ctx context.Context, cfg *core.Config) (*core.View, error) {
	catalog, err := newResolver(cfg).Resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	printWarnings(catalog.Warnings)
	return core.NewView(catalog), nil
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, warnStyle.Render("warning: ")+w)
	}
}

// qualifiedName renders a resource as module/name when it has a module.
func qualifiedName(r core.Resource) string {
	if r.Module != "" {
		return r.Module + "/" + r.Name
	}
	return r.Name
}
