package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents from all installations in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, "agent", func(v *core.View) ([]core.Resource, error) {
			return v.ListAgents()
		})
	},
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List workflows from all installations in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, "workflow", func(v *core.View) ([]core.Resource, error) {
			return v.ListWorkflows()
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks from all installations in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, "task", func(v *core.View) ([]core.Resource, error) {
			return v.ListTasks()
		})
	},
}

// runList resolves the catalog and renders one resource kind as a table.
// Duplicate names are already collapsed: the row shown is the
// installation that actually serves the name.
func runList(cmd *cobra.Command, kind string, list func(*core.View) ([]core.Resource, error)) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	cfg, err := d.loadRuntimeConfig(cmd)
	if err != nil {
		return err
	}
	view, err := resolveView(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	resources, err := list(view)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		fmt.Printf("No %ss found.\n", kind)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, headerStyle.Render("NAME")+"\t"+headerStyle.Render("KIND")+"\t"+headerStyle.Render("SOURCE")+"\t"+headerStyle.Render("INSTALLATION"))
	for _, r := range resources {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			qualifiedName(r),
			r.Installation.Kind,
			r.Installation.Source,
			dimStyle.Render(r.Installation.RootPath))
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(tasksCmd)
}
