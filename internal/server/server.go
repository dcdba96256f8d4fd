// Package server wires the resolution core into an MCP server over
// stdio. It is the composition root: concrete dependencies are created
// here and injected into the tools. No resolution logic lives here.
package server

import (
	"github.com/bmadkit/bmadkit/internal/core"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// New creates the MCP server with every tool registered. The caller
// provides a fully resolved Config (cache root, scan roots, remotes).
func New(cfg *core.Config, version string, log *logrus.Logger) *server.MCPServer {
	cache := core.NewGitCache(cfg.CacheRoot, cfg.AutoUpdateEnabled(), cfg.TTL())
	resolver := core.NewResolver(cache, core.NewScanner(cfg.MaxDepth))
	src := &catalogSource{cfg: cfg, resolver: resolver, log: log}

	s := server.NewMCPServer(
		"bmadkit",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	for _, kind := range []string{"agent", "workflow", "task"} {
		t := NewListTool(src, kind)
		s.AddTool(t.Definition(), t.Handle)
	}

	readTool := NewReadResourceTool(src)
	s.AddTool(readTool.Definition(), readTool.Handle)

	diagTool := NewDiagnosticsTool(src)
	s.AddTool(diagTool.Definition(), diagTool.Handle)

	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func serverInstructions() string {
	return "bmadkit serves BMAD methodology content (agents, workflows, tasks) " +
		"resolved from local installations and cached git remotes. " +
		"Use bmad_list_* to discover what is available, bmad_read_resource to " +
		"fetch content by logical name, and bmad_diagnostics when a name is " +
		"missing or resolution looks wrong."
}
