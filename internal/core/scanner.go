package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// defaultMaxDepth bounds discovery below each scan root.
const defaultMaxDepth = 3

// markerSubstring gates descent past depth 1: directories deeper than
// that are only visited when their name contains this marker
// (case-insensitive) or exactly matches a structural name.
const markerSubstring = "bmad"

// structuralNames is the small fixed set of directory names always worth
// visiting regardless of depth.
var structuralNames = map[string]bool{
	agentsDirName:    true,
	workflowsDirName: true,
	tasksDirName:     true,
	configDirMarker:  true,
}

// Scanner discovers installations beneath a root without unconstrained
// full-tree traversal. It is read-only and race-free by construction.
type Scanner struct {
	maxDepth int
}

// NewScanner creates a Scanner with the given depth bound. A bound of
// zero or less falls back to the default.
func NewScanner(maxDepth int) *Scanner {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Scanner{maxDepth: maxDepth}
}

// ScanResult is one scan pass over a root: the installations found plus
// the per-path trace feeding diagnostics.
type ScanResult struct {
	Installations []Installation
	Traces        []PathTrace
}

// queueItem is one directory pending a visit in the breadth-first walk.
type queueItem struct {
	path  string
	depth int
}

// Scan walks the tree below root breadth-first, classifying each visited
// directory. Depth 0-1 directories are visited unconditionally; deeper
// directories only when their name carries the marker substring or
// matches a structural name. A classified installation root is not
// scanned further beneath it. Symlink cycles are broken via a
// visited-real-path set; unreadable directories downgrade to warnings.
func (s *Scanner) Scan(root string, source Source) ScanResult {
	var res ScanResult

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		res.Traces = append(res.Traces, PathTrace{Path: root, Source: source, Reason: fmt.Sprintf("unresolvable path: %v", err)})
		return res
	}
	info, err := os.Stat(rootAbs)
	if err != nil {
		res.Traces = append(res.Traces, PathTrace{Path: rootAbs, Source: source, Reason: "does not exist"})
		return res
	}
	if !info.IsDir() {
		res.Traces = append(res.Traces, PathTrace{Path: rootAbs, Source: source, Reason: "not a directory"})
		return res
	}

	visited := make(map[string]bool)
	queue := []queueItem{{path: rootAbs, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		real, err := filepath.EvalSymlinks(item.path)
		if err != nil {
			res.Traces = append(res.Traces, PathTrace{Path: item.path, Source: source, Reason: fmt.Sprintf("skipped: %v", err)})
			continue
		}
		if visited[real] {
			continue
		}
		visited[real] = true

		inst, ok := classifyDir(item.path, item.depth, source)
		if ok {
			res.Installations = append(res.Installations, inst)
			res.Traces = append(res.Traces, PathTrace{
				Path:     item.path,
				Source:   source,
				Accepted: true,
				Reason:   fmt.Sprintf("%s installation", inst.Kind),
			})
			// No nested-installation detection beneath a classified root.
			continue
		}
		res.Traces = append(res.Traces, PathTrace{Path: item.path, Source: source, Reason: "no installation markers"})

		if item.depth >= s.maxDepth {
			continue
		}

		entries, err := os.ReadDir(item.path)
		if err != nil {
			res.Traces = append(res.Traces, PathTrace{Path: item.path, Source: source, Reason: fmt.Sprintf("skipped: %v", err)})
			continue
		}
		for _, de := range entries {
			if !de.IsDir() {
				continue
			}
			name := de.Name()
			childDepth := item.depth + 1
			if !shouldVisit(name, childDepth) {
				continue
			}
			queue = append(queue, queueItem{path: filepath.Join(item.path, name), depth: childDepth})
		}
	}

	return res
}

// shouldVisit applies the descent gates: hidden directories need the
// marker, and past depth 1 everything needs the marker or a structural
// name.
func shouldVisit(name string, depth int) bool {
	lower := strings.ToLower(name)
	hasMarker := strings.Contains(lower, markerSubstring)

	if strings.HasPrefix(name, ".") {
		return hasMarker
	}
	if depth <= 1 {
		return true
	}
	return hasMarker || structuralNames[name]
}

// classifyDir applies the ordered structural predicates of the closed
// kind set. Precedence: v6 config-directory manifest, then v4 dotfolder
// manifest, then bare agents/workflows layout.
func classifyDir(dir string, depth int, source Source) (Installation, bool) {
	inst := Installation{RootPath: dir, Depth: depth, Source: source}

	// (1) _cfg/manifest.yaml directly beneath -> v6.
	v6Path := filepath.Join(dir, configDirMarker, v6ManifestFile)
	if fileExists(v6Path) {
		inst.Kind = KindV6
		inst.ManifestPaths = append(inst.ManifestPaths, v6Path)
		for _, name := range []string{agentManifestCSV, workflowManifestCSV, taskManifestCSV} {
			if p := filepath.Join(dir, configDirMarker, name); fileExists(p) {
				inst.ManifestPaths = append(inst.ManifestPaths, p)
			}
		}
		applyVersion(&inst, v6Path, "")
		return inst, true
	}

	// (2) dotfolder-style install manifest directly beneath -> v4.
	// A config.yaml version field takes precedence when both exist.
	v4Path := filepath.Join(dir, v4ManifestFile)
	if fileExists(v4Path) {
		inst.Kind = KindV4
		inst.ManifestPaths = append(inst.ManifestPaths, v4Path)
		override := ""
		cfgPath := filepath.Join(dir, v4ConfigFile)
		if fileExists(cfgPath) {
			inst.ManifestPaths = append(inst.ManifestPaths, cfgPath)
			if v, err := readVersionField(cfgPath); err == nil {
				override = v
			}
		}
		applyVersion(&inst, v4Path, override)
		return inst, true
	}

	// (3) bare agents/ or workflows/ directory -> custom, version unknown.
	if dirExists(filepath.Join(dir, agentsDirName)) || dirExists(filepath.Join(dir, workflowsDirName)) {
		inst.Kind = KindCustom
		return inst, true
	}

	return Installation{}, false
}

// applyVersion validates the manifest version against semantic-version
// shape. An invalid or missing version demotes the installation to a
// warning-carrying result rather than rejecting it.
func applyVersion(inst *Installation, manifestPath, override string) {
	raw := override
	if raw == "" {
		v, err := readVersionField(manifestPath)
		if err != nil {
			inst.Warnings = append(inst.Warnings, fmt.Sprintf("unreadable manifest %s: %v", manifestPath, err))
			return
		}
		raw = v
	}
	if raw == "" {
		inst.Warnings = append(inst.Warnings, fmt.Sprintf("missing version in %s", manifestPath))
		return
	}
	ver, err := semver.StrictNewVersion(raw)
	if err != nil {
		inst.Warnings = append(inst.Warnings, fmt.Sprintf("invalid version %q in %s", raw, manifestPath))
		return
	}
	inst.Version = ver
}
