package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the git clone cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached clones with their keys and freshness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, _, err := newCache(cmd)
		if err != nil {
			return err
		}
		entries, err := cache.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Cache is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, headerStyle.Render("KEY")+"\t"+headerStyle.Render("REMOTE")+"\t"+headerStyle.Render("REF")+"\t"+headerStyle.Render("FETCHED")+"\t"+headerStyle.Render("SIZE"))
		for _, e := range entries {
			ref := e.Remote.Ref
			if ref == "" {
				ref = e.ResolvedRef + " (default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Remote.CacheKey(),
				e.Remote.CloneURL(),
				ref,
				e.LastFetchedAt.Format("2006-01-02 15:04"),
				humanSize(e.SizeOnDisk))
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Remove one cached clone by key, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, _, err := newCache(cmd)
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")

		switch {
		case all && len(args) > 0:
			return fmt.Errorf("--all cannot be combined with a key")
		case all:
			if err := cache.EvictAll(); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
		case len(args) == 1:
			if err := cache.Evict(args[0]); err != nil {
				return err
			}
			fmt.Printf("Evicted %s.\n", args[0])
		default:
			return fmt.Errorf("specify a cache key or --all")
		}
		return nil
	},
}

var cacheUpdateCmd = &cobra.Command{
	Use:   "update [remote-spec]",
	Short: "Refresh cached clones now, ignoring the TTL",
	Long: `Force-fetch cached clones. With an argument, only that remote is
refreshed; otherwise every configured remote is. A refresh failure is
reported but the stale clone stays usable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, cfg, err := newCache(cmd)
		if err != nil {
			return err
		}

		raws := cfg.Remotes
		if len(args) == 1 {
			raws = args
		}
		if len(raws) == 0 {
			fmt.Println("No remotes configured.")
			return nil
		}

		for _, raw := range raws {
			spec, err := core.ParseRemoteSpec(raw)
			if err != nil {
				return err
			}
			entry, warns, err := cache.ForceUpdate(cmd.Context(), *spec)
			printWarnings(warns)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s at %s\n", okMark, spec.String(), entry.LastFetchedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// newCache builds the git cache for cache maintenance commands.
func newCache(cmd *cobra.Command) (*core.GitCache, *core.Config, error) {
	d, err := newDeps()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := d.loadRuntimeConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return core.NewGitCache(cfg.CacheRoot, cfg.AutoUpdateEnabled(), cfg.TTL()), cfg, nil
}

// humanSize renders a byte count for table output.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

func init() {
	cacheClearCmd.Flags().Bool("all", false, "Remove every cached clone")
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheUpdateCmd)
	rootCmd.AddCommand(cacheCmd)
}
