package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// catalogSource rebuilds the resolved catalog for one request. The
// catalog is deliberately not cached in memory: every tool call sees
// the current filesystem and cache state, and only the git clones
// behind it persist between calls.
type catalogSource struct {
	cfg      *core.Config
	resolver *core.Resolver
	log      *logrus.Logger
}

func (cs *catalogSource) view(ctx context.Context) (*core.View, error) {
	catalog, err := cs.resolver.Resolve(ctx, cs.cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range catalog.Warnings {
		cs.log.WithField("tool", "resolve").Warn(w)
	}
	return core.NewView(catalog), nil
}

// ListTool handles bmad_list_agents, bmad_list_workflows, and
// bmad_list_tasks: one tool instance per resource kind.
type ListTool struct {
	src  *catalogSource
	kind string // "agent", "workflow", or "task"
}

// NewListTool creates a listing tool for one resource kind.
func NewListTool(src *catalogSource, kind string) *ListTool {
	return &ListTool{src: src, kind: kind}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("bmad_list_"+t.kind+"s",
		mcp.WithDescription(
			"List every "+t.kind+" available across all configured BMAD installations, "+
				"in priority order with duplicates resolved. Each entry names the "+
				"installation that provides it.",
		),
	)
}

// Handle processes the list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.src.view(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resources, err := t.listByKind(view)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(resources) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %ss found in any installation.", t.kind)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Available %ss (%d)\n\n", t.kind, len(resources))
	for _, r := range resources {
		name := r.Name
		if r.Module != "" {
			name = r.Module + "/" + r.Name
		}
		fmt.Fprintf(&sb, "- **%s** — %s %s installation at %s\n",
			name, r.Installation.Source, r.Installation.Kind, r.Installation.RootPath)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *ListTool) listByKind(view *core.View) ([]core.Resource, error) {
	switch t.kind {
	case "agent":
		return view.ListAgents()
	case "workflow":
		return view.ListWorkflows()
	default:
		return view.ListTasks()
	}
}

// ReadResourceTool handles bmad_read_resource: it resolves a logical
// name through priority resolution (or a module-qualified bypass) and
// returns the backing file's content.
type ReadResourceTool struct {
	src *catalogSource
}

// NewReadResourceTool creates the read tool.
func NewReadResourceTool(src *catalogSource) *ReadResourceTool {
	return &ReadResourceTool{src: src}
}

// Definition returns the MCP tool definition for registration.
func (t *ReadResourceTool) Definition() mcp.Tool {
	return mcp.NewTool("bmad_read_resource",
		mcp.WithDescription(
			"Read the content of one agent, workflow, or task by logical name. "+
				"The first installation in priority order that provides the name wins. "+
				"A module-qualified name like 'bmm/analyst' binds directly to that "+
				"module, bypassing priority resolution.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Logical resource name, optionally module-qualified as 'module/name'."),
		),
		mcp.WithString("kind",
			mcp.Description("Resource kind to resolve. Defaults to 'agent'."),
			mcp.Enum("agent", "workflow", "task"),
		),
	)
}

// Handle processes the bmad_read_resource tool call.
func (t *ReadResourceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	kind := req.GetString("kind", "agent")

	view, err := t.src.view(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		data []byte
		res  *core.Resource
	)
	switch kind {
	case "workflow":
		data, res, err = view.ReadWorkflow(name)
	case "task":
		data, res, err = view.ReadTask(name)
	default:
		data, res, err = view.ReadAgent(name)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.src.log.WithFields(logrus.Fields{
		"tool": "bmad_read_resource",
		"kind": kind,
		"name": name,
		"root": res.Installation.RootPath,
	}).Info("resource served")

	return mcp.NewToolResultText(string(data)), nil
}

// DiagnosticsTool handles bmad_diagnostics: the full discovery trace,
// installation list, and accumulated warnings for troubleshooting.
type DiagnosticsTool struct {
	src *catalogSource
}

// NewDiagnosticsTool creates the diagnostics tool.
func NewDiagnosticsTool(src *catalogSource) *DiagnosticsTool {
	return &DiagnosticsTool{src: src}
}

// Definition returns the MCP tool definition for registration.
func (t *DiagnosticsTool) Definition() mcp.Tool {
	return mcp.NewTool("bmad_diagnostics",
		mcp.WithDescription(
			"Explain how installations were discovered: every path checked per "+
				"source with its accept/reject reason, the resulting priority order, "+
				"and any warnings (stale caches, unreadable manifests).",
		),
	)
}

// Handle processes the bmad_diagnostics tool call.
func (t *DiagnosticsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := t.src.resolver.Resolve(ctx, t.src.cfg)
	if catalog == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(RenderDiagnostics(catalog, err)), nil
}

// RenderDiagnostics formats a catalog's discovery story as markdown.
// Shared by the MCP tool and the doctor command.
func RenderDiagnostics(catalog *core.Catalog, resolveErr error) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Installations (%d)\n\n", len(catalog.Installations))
	for i, inst := range catalog.Installations {
		version := "unknown"
		if inst.Version != nil {
			version = inst.Version.String()
		}
		fmt.Fprintf(&sb, "%d. [%s] %s kind=%s version=%s depth=%d\n",
			i+1, inst.Source, inst.RootPath, inst.Kind, version, inst.Depth)
	}

	sb.WriteString("\n# Paths checked\n\n")
	for _, tr := range catalog.Traces {
		mark := "✗"
		if tr.Accepted {
			mark = "✓"
		}
		fmt.Fprintf(&sb, "%s [%s] %s: %s\n", mark, tr.Source, tr.Path, tr.Reason)
	}

	if len(catalog.Warnings) > 0 {
		sb.WriteString("\n# Warnings\n\n")
		for _, w := range catalog.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if resolveErr != nil {
		fmt.Fprintf(&sb, "\n# Error\n\n%v\n", resolveErr)
	}
	return sb.String()
}
