package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the content of an agent, workflow, or task",
	Long: `Print the content of one resource resolved by logical name.

The first installation in priority order that provides the name wins.
A module-qualified name like "bmm/analyst" binds directly to that
module, bypassing priority resolution.

Markdown content is rendered for the terminal unless --raw is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		kind, _ := cmd.Flags().GetString("kind")
		raw, _ := cmd.Flags().GetBool("raw")

		var data []byte
		switch kind {
		case "workflow":
			data, _, err = view.ReadWorkflow(args[0])
		case "task":
			data, _, err = view.ReadTask(args[0])
		default:
			data, _, err = view.ReadAgent(args[0])
		}
		if err != nil {
			return err
		}

		content := string(data)
		if raw || !strings.HasSuffix(resourceExt(kind), ".md") {
			fmt.Print(content)
			if !strings.HasSuffix(content, "\n") {
				fmt.Println()
			}
			return nil
		}

		rendered, rerr := renderMarkdown(content)
		if rerr != nil {
			// Terminal rendering is cosmetic: fall back to raw output.
			fmt.Print(content)
			return nil
		}
		fmt.Print(rendered)
		return nil
	},
}

// resourceExt maps a resource kind to the file extension its content
// conventionally uses. Only markdown gets terminal rendering.
func resourceExt(kind string) string {
	switch kind {
	case "workflow":
		return ".yaml"
	default:
		return ".md"
	}
}

func renderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}

func init() {
	showCmd.Flags().String("kind", "agent", "Resource kind: agent, workflow, or task")
	showCmd.Flags().Bool("raw", false, "Print the file bytes without terminal rendering")
	rootCmd.AddCommand(showCmd)
}
