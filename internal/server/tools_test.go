package server

import (
	"strings"
	"testing"

	"github.com/bmadkit/bmadkit/internal/core"
)

func TestRenderDiagnostics(t *testing.T) {
	catalog := &core.Catalog{
		Installations: []core.Installation{
			{RootPath: "/work/bmad", Kind: core.KindV6, Source: core.SourceProject, Depth: 1},
		},
		Traces: []core.PathTrace{
			{Path: "/work", Source: core.SourceProject, Reason: "no installation markers"},
			{Path: "/work/bmad", Source: core.SourceProject, Accepted: true, Reason: "v6 installation"},
		},
		Warnings: []string{"update failed for https://example.test/acme/pack.git: timeout"},
	}

	out := RenderDiagnostics(catalog, nil)
	for _, want := range []string{
		"Installations (1)",
		"[project] /work/bmad kind=v6",
		"✓ [project] /work/bmad: v6 installation",
		"✗ [project] /work: no installation markers",
		"update failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderDiagnostics() missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderDiagnostics_WithError(t *testing.T) {
	catalog := &core.Catalog{}
	err := &core.NoInstallationFoundError{}
	out := RenderDiagnostics(catalog, err)
	if !strings.Contains(out, "no BMAD installation found") {
		t.Errorf("RenderDiagnostics() should include the resolve error, got:\n%s", out)
	}
}
