package core

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeV6Installation lays out a minimal v6 installation at dir.
func writeV6Installation(t *testing.T, dir, version string) {
	t.Helper()
	cfgDir := filepath.Join(dir, configDirMarker)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "version: \"" + version + "\"\n"
	if err := os.WriteFile(filepath.Join(cfgDir, v6ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeV4Installation lays out a minimal v4 installation at dir.
func writeV4Installation(t *testing.T, dir, version string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "version: \"" + version + "\"\n"
	if err := os.WriteFile(filepath.Join(dir, v4ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeCustomInstallation lays out a bare agents/ directory with one agent.
func writeCustomInstallation(t *testing.T, dir string, agents ...string) {
	t.Helper()
	agentsDir := filepath.Join(dir, agentsDirName)
	if err := os.MkdirAll(agentsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range agents {
		if err := os.WriteFile(filepath.Join(agentsDir, name+".md"), []byte("# "+name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScan_V6AtRoot(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, dir, "6.0.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	inst := res.Installations[0]
	if inst.Kind != KindV6 {
		t.Errorf("Kind = %v, want v6", inst.Kind)
	}
	if inst.Depth != 0 {
		t.Errorf("Depth = %d, want 0", inst.Depth)
	}
	if inst.Version == nil || inst.Version.String() != "6.0.0" {
		t.Errorf("Version = %v, want 6.0.0", inst.Version)
	}
	if len(inst.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", inst.Warnings)
	}
}

func TestScan_V6InMarkerSubdir(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, filepath.Join(dir, "bmad"), "6.0.0-alpha.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	inst := res.Installations[0]
	if inst.RootPath != filepath.Join(dir, "bmad") {
		t.Errorf("RootPath = %q, want the bmad subdir", inst.RootPath)
	}
	if inst.Depth != 1 {
		t.Errorf("Depth = %d, want 1", inst.Depth)
	}
	if inst.Version == nil || inst.Version.String() != "6.0.0-alpha.0" {
		t.Errorf("Version = %v, want 6.0.0-alpha.0", inst.Version)
	}
}

func TestScan_V4Hidden(t *testing.T) {
	dir := t.TempDir()
	writeV4Installation(t, filepath.Join(dir, ".bmad"), "4.36.2")

	res := NewScanner(0).Scan(dir, SourceUser)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	if res.Installations[0].Kind != KindV4 {
		t.Errorf("Kind = %v, want v4", res.Installations[0].Kind)
	}
}

func TestScan_HiddenWithoutMarkerSkipped(t *testing.T) {
	dir := t.TempDir()
	writeV4Installation(t, filepath.Join(dir, ".config"), "4.0.0")

	res := NewScanner(0).Scan(dir, SourceUser)
	if len(res.Installations) != 0 {
		t.Fatalf("hidden dir without marker was scanned: %+v", res.Installations)
	}
}

func TestScan_V4ConfigVersionOverride(t *testing.T) {
	dir := t.TempDir()
	writeV4Installation(t, dir, "4.0.0")
	if err := os.WriteFile(filepath.Join(dir, v4ConfigFile), []byte("version: \"4.36.2\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	inst := res.Installations[0]
	if inst.Version == nil || inst.Version.String() != "4.36.2" {
		t.Errorf("Version = %v, want config.yaml override 4.36.2", inst.Version)
	}
}

func TestScan_CustomLayout(t *testing.T) {
	dir := t.TempDir()
	writeCustomInstallation(t, dir, "helper")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	inst := res.Installations[0]
	if inst.Kind != KindCustom {
		t.Errorf("Kind = %v, want custom", inst.Kind)
	}
	if inst.Version != nil {
		t.Errorf("Version = %v, want nil for custom layout", inst.Version)
	}
}

func TestScan_V6BeatsV4WhenBothPresent(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, dir, "6.0.0")
	writeV4Installation(t, dir, "4.0.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	if res.Installations[0].Kind != KindV6 {
		t.Errorf("Kind = %v, want v6 (classification precedence)", res.Installations[0].Kind)
	}
}

func TestScan_InvalidVersionIsWarningNotRejection(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, dir, "not-a-version")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
	inst := res.Installations[0]
	if inst.Version != nil {
		t.Errorf("Version = %v, want nil", inst.Version)
	}
	if len(inst.Warnings) == 0 {
		t.Error("expected a version warning on the installation")
	}
}

func TestScan_NoNestedInstallations(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, dir, "6.0.0")
	writeV4Installation(t, filepath.Join(dir, "bmad-nested"), "4.0.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1 (no descent below a classified root)", len(res.Installations))
	}
	if res.Installations[0].RootPath != dir {
		t.Errorf("RootPath = %q, want scan root", res.Installations[0].RootPath)
	}
}

func TestScan_DepthBound(t *testing.T) {
	dir := t.TempDir()
	// Installation at depth 4; every intermediate dir carries the marker
	// so only the depth bound decides visibility.
	deep := filepath.Join(dir, "bmad-a", "bmad-b", "bmad-c", "bmad-d")
	writeV6Installation(t, deep, "6.0.0")

	if res := NewScanner(3).Scan(dir, SourceProject); len(res.Installations) != 0 {
		t.Fatalf("maxDepth=3 found installation at depth 4: %+v", res.Installations)
	}
	if res := NewScanner(4).Scan(dir, SourceProject); len(res.Installations) != 1 {
		t.Fatalf("maxDepth=4 missed installation at depth 4")
	}
}

func TestScan_MarkerGateBelowDepthOne(t *testing.T) {
	dir := t.TempDir()
	// Depth-2 directory without marker or structural name: not visited.
	writeV6Installation(t, filepath.Join(dir, "tools", "stuff"), "6.0.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 0 {
		t.Fatalf("unmarked depth-2 dir was scanned: %+v", res.Installations)
	}
}

func TestScan_MissingRootTraced(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")

	res := NewScanner(0).Scan(dir, SourceExplicit)
	if len(res.Installations) != 0 {
		t.Fatalf("len(installations) = %d, want 0", len(res.Installations))
	}
	if len(res.Traces) != 1 {
		t.Fatalf("len(traces) = %d, want 1", len(res.Traces))
	}
	if res.Traces[0].Accepted {
		t.Error("missing root must be a rejection trace")
	}
}

func TestScan_SymlinkCycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	writeCustomInstallation(t, filepath.Join(dir, "bmad-pack"), "helper")
	// Cycle through a non-installation marker dir: bmad-extra/bmad-loop -> dir
	extra := filepath.Join(dir, "bmad-extra")
	if err := os.MkdirAll(extra, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(dir, filepath.Join(extra, "bmad-loop")); err != nil {
		t.Fatal(err)
	}

	// Must terminate and find the installation exactly once.
	res := NewScanner(0).Scan(dir, SourceProject)
	if len(res.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(res.Installations))
	}
}

func TestScan_AcceptedTraceRecorded(t *testing.T) {
	dir := t.TempDir()
	writeV6Installation(t, dir, "6.0.0")

	res := NewScanner(0).Scan(dir, SourceProject)
	found := false
	for _, tr := range res.Traces {
		if tr.Accepted && tr.Path == dir {
			found = true
		}
	}
	if !found {
		t.Error("accepted installation missing from trace")
	}
}
