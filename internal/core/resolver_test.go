package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// newTestResolver builds a resolver whose git cache lives in a temp dir.
func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	cache := NewGitCache(filepath.Join(t.TempDir(), "cache"), false, 0)
	return NewResolver(cache, NewScanner(0))
}

func TestResolve_ScenarioProjectAndUser(t *testing.T) {
	// Project dir holds bmad/_cfg/manifest.yaml with no agents; user home
	// holds ~/.bmad (v4) with agent "debug". Normal mode: both in the
	// catalog, project first; the agent list comes from the user install.
	project := t.TempDir()
	writeV6Installation(t, filepath.Join(project, "bmad"), "6.0.0-alpha.0")

	home := t.TempDir()
	userInstall := filepath.Join(home, ".bmad")
	writeV4Installation(t, userInstall, "4.36.2")
	writeCustomInstallation(t, userInstall, "debug")

	cfg := &Config{ProjectDir: project, UserHome: home}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 2 {
		t.Fatalf("len(installations) = %d, want 2", len(catalog.Installations))
	}
	if catalog.Installations[0].Source != SourceProject {
		t.Errorf("first installation source = %v, want project", catalog.Installations[0].Source)
	}
	if catalog.Installations[1].Source != SourceUser {
		t.Errorf("second installation source = %v, want user", catalog.Installations[1].Source)
	}

	agents, err := NewView(catalog).ListAgents()
	if err != nil {
		t.Fatalf("ListAgents() error: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "debug" {
		t.Fatalf("agents = %+v, want [debug]", agents)
	}
	if agents[0].Installation.Source != SourceUser {
		t.Errorf("debug served from %v, want user installation", agents[0].Installation.Source)
	}
}

func TestResolve_ExplicitBeatsProject(t *testing.T) {
	explicit := t.TempDir()
	writeCustomInstallation(t, explicit, "x")
	project := t.TempDir()
	writeV6Installation(t, project, "6.0.0")

	cfg := &Config{ExplicitPaths: []string{explicit}, ProjectDir: project}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if catalog.Installations[0].Source != SourceExplicit {
		t.Errorf("first source = %v, want explicit (explicit custom beats project v6)", catalog.Installations[0].Source)
	}
}

func TestResolve_WithinSourceOrdering(t *testing.T) {
	project := t.TempDir()
	// Two installs at depth 1: v4 and v6. Kind rank must put v6 first.
	writeV4Installation(t, filepath.Join(project, "bmad-old"), "4.0.0")
	writeV6Installation(t, filepath.Join(project, "bmad-new"), "6.0.0")

	cfg := &Config{ProjectDir: project}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 2 {
		t.Fatalf("len(installations) = %d, want 2", len(catalog.Installations))
	}
	if catalog.Installations[0].Kind != KindV6 {
		t.Errorf("first kind = %v, want v6", catalog.Installations[0].Kind)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	project := t.TempDir()
	writeV6Installation(t, filepath.Join(project, "bmad-a"), "6.0.0")
	writeV4Installation(t, filepath.Join(project, "bmad-b"), "4.0.0")
	writeCustomInstallation(t, filepath.Join(project, "bmad-c"), "x")

	cfg := &Config{ProjectDir: project}
	r := newTestResolver(t)

	first, err := r.Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		var a, b []string
		for _, inst := range first.Installations {
			a = append(a, inst.RootPath)
		}
		for _, inst := range again.Installations {
			b = append(b, inst.RootPath)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("ordering changed between calls: %v vs %v", a, b)
		}
	}
}

func TestResolve_StrictSkipsProjectAndUser(t *testing.T) {
	project := t.TempDir()
	writeV6Installation(t, project, "6.0.0")
	home := t.TempDir()
	writeV4Installation(t, filepath.Join(home, ".bmad"), "4.0.0")

	explicit := t.TempDir()
	writeCustomInstallation(t, explicit, "x")

	cfg := &Config{
		Mode:          ModeStrict,
		ExplicitPaths: []string{explicit},
		ProjectDir:    project,
		UserHome:      home,
	}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1 (explicit only)", len(catalog.Installations))
	}
	if catalog.Installations[0].Source != SourceExplicit {
		t.Errorf("source = %v, want explicit", catalog.Installations[0].Source)
	}
}

func TestResolve_NoInstallationFound(t *testing.T) {
	cfg := &Config{
		ExplicitPaths: []string{filepath.Join(t.TempDir(), "missing")},
		ProjectDir:    t.TempDir(),
	}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected NoInstallationFoundError")
	}
	var notFound *NoInstallationFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error type = %T, want *NoInstallationFoundError", err)
	}
	if len(notFound.Traces) == 0 {
		t.Error("error carries no traces; diagnostics need every path checked")
	}
	if catalog == nil {
		t.Error("catalog must still be returned for diagnostics")
	}
}

func TestResolve_MalformedRemoteIsFatal(t *testing.T) {
	cfg := &Config{Remotes: []string{"not-a-remote"}}
	_, err := newTestResolver(t).Resolve(context.Background(), cfg)
	var malformed *MalformedRemoteSpecError
	if !errors.As(err, &malformed) {
		t.Fatalf("error type = %T, want *MalformedRemoteSpecError", err)
	}
}

func TestResolve_DedupesSameRealPath(t *testing.T) {
	dir := t.TempDir()
	install := filepath.Join(dir, "bmad")
	writeV6Installation(t, install, "6.0.0")

	// The same physical installation reachable as explicit path and
	// through the project scan must appear once.
	cfg := &Config{ExplicitPaths: []string{install}, ProjectDir: dir}
	catalog, err := newTestResolver(t).Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1 after dedup", len(catalog.Installations))
	}
	if catalog.Installations[0].Source != SourceExplicit {
		t.Errorf("kept source = %v, want the higher-priority explicit entry", catalog.Installations[0].Source)
	}
}

func TestResolve_GitSourceStrict(t *testing.T) {
	f := newFixtureRepo(t, "packed")
	cache := newTestCache(t, f, false, 0)
	r := NewResolver(cache, NewScanner(0))

	cfg := &Config{
		Mode:    ModeStrict,
		Remotes: []string{"git+https://example.test/acme/pack.git#master"},
	}
	catalog, err := r.Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(catalog.Installations))
	}
	if catalog.Installations[0].Source != SourceGit {
		t.Errorf("source = %v, want git", catalog.Installations[0].Source)
	}

	view := NewView(catalog)
	agents, err := view.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents() error: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "packed" {
		t.Fatalf("agents = %+v, want [packed]", agents)
	}
	data, _, err := view.ReadAgent("packed")
	if err != nil {
		t.Fatalf("ReadAgent() error: %v", err)
	}
	if len(data) == 0 {
		t.Error("agent content is empty")
	}
}

func TestResolve_GitSourceSubpath(t *testing.T) {
	f := newFixtureRepo(t)
	f.writeFile(t, filepath.Join("packs", "core", agentsDirName, "nested.md"), "# nested\n")
	f.commit(t, "add nested pack")

	cache := newTestCache(t, f, false, 0)
	r := NewResolver(cache, NewScanner(0))

	cfg := &Config{
		Mode:    ModeStrict,
		Remotes: []string{"git+https://example.test/acme/pack.git#master:/packs/core"},
	}
	catalog, err := r.Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(catalog.Installations))
	}
	agents, err := NewView(catalog).ListAgents()
	if err != nil {
		t.Fatalf("ListAgents() error: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "nested" {
		t.Fatalf("agents = %+v, want [nested]", agents)
	}
}

func TestResolve_StaleCacheWarningInDiagnostics(t *testing.T) {
	f := newFixtureRepo(t, "packed")
	cache := newTestCache(t, f, true, time.Nanosecond)
	r := NewResolver(cache, NewScanner(0))
	cfg := &Config{
		Mode:    ModeStrict,
		Remotes: []string{"git+https://example.test/acme/pack.git#master"},
	}

	if _, err := r.Resolve(context.Background(), cfg); err != nil {
		t.Fatalf("initial Resolve() error: %v", err)
	}

	// Origin vanishes; the expired TTL forces a refresh attempt that
	// must degrade to a warning, not a failure.
	if err := os.RemoveAll(filepath.Join(f.dir, ".git")); err != nil {
		t.Fatal(err)
	}
	catalog, err := r.Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("stale resolve must succeed, got: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1 from the stale clone", len(catalog.Installations))
	}
	found := false
	for _, w := range catalog.Warnings {
		if strings.Contains(w, "update failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("catalog warnings = %v, want an update-failure entry", catalog.Warnings)
	}
}

func TestResolve_CloneFailureIsFatal(t *testing.T) {
	cache := NewGitCache(filepath.Join(t.TempDir(), "cache"), false, 0)
	cache.cloneURL = func(RemoteSpec) string { return filepath.Join(t.TempDir(), "unreachable") }
	r := NewResolver(cache, NewScanner(0))

	cfg := &Config{Remotes: []string{"git+https://example.test/acme/pack.git#main"}}
	_, err := r.Resolve(context.Background(), cfg)
	var cloneErr *CloneError
	if !errors.As(err, &cloneErr) {
		t.Fatalf("error type = %T, want *CloneError", err)
	}
}

func TestResolve_UnreadableDirIsWarningNotFatal(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	project := t.TempDir()
	writeV6Installation(t, filepath.Join(project, "bmad"), "6.0.0")
	blocked := filepath.Join(project, "bmad-blocked")
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	catalog, err := newTestResolver(t).Resolve(context.Background(), &Config{ProjectDir: project})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(catalog.Installations) != 1 {
		t.Fatalf("len(installations) = %d, want 1", len(catalog.Installations))
	}
}
