package core

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest and layout file names recognized during classification.
const (
	configDirMarker     = "_cfg"
	v6ManifestFile      = "manifest.yaml"
	v4ManifestFile      = "install-manifest.yaml"
	v4ConfigFile        = "config.yaml"
	agentManifestCSV    = "agent-manifest.csv"
	workflowManifestCSV = "workflow-manifest.csv"
	taskManifestCSV     = "task-manifest.csv"
	agentsDirName       = "agents"
	workflowsDirName    = "workflows"
	tasksDirName        = "tasks"
	workflowFileName    = "workflow.yaml"
)

// ManifestEntry is one row of a discovery manifest: a logical name and
// where its content lives within the installation. Manifests are used
// only for discovery — the referenced files are opaque bytes.
type ManifestEntry struct {
	Name        string
	DisplayName string
	Title       string
	Description string
	Module      string
	Path        string // installation-relative
}

// versionManifest is the subset of manifest.yaml / install-manifest.yaml /
// config.yaml that classification cares about.
type versionManifest struct {
	Version string `yaml:"version"`
}

// readVersionField parses the version field from a small YAML manifest.
// Returns an empty string when the field is absent.
func readVersionField(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	var m versionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return strings.TrimSpace(m.Version), nil
}

// loadCSVManifest reads a discovery CSV with a header row into entries.
// Completely empty rows are dropped; rows are otherwise taken as-is.
func loadCSVManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []ManifestEntry
	for _, row := range records[1:] {
		empty := true
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		entries = append(entries, ManifestEntry{
			Name:        field(row, "name"),
			DisplayName: field(row, "displayName"),
			Title:       field(row, "title"),
			Description: field(row, "description"),
			Module:      field(row, "module"),
			Path:        field(row, "path"),
		})
	}
	return entries, nil
}

// listKind enumerates the resource categories an installation can serve.
type listKind int

const (
	listAgents listKind = iota
	listWorkflows
	listTasks
)

func (k listKind) csvName() string {
	switch k {
	case listAgents:
		return agentManifestCSV
	case listWorkflows:
		return workflowManifestCSV
	default:
		return taskManifestCSV
	}
}

func (k listKind) label() string {
	switch k {
	case listAgents:
		return "agent"
	case listWorkflows:
		return "workflow"
	default:
		return "task"
	}
}

// installationEntries lists the manifest entries of one kind for an
// installation. v6 installations read their CSV manifests; v4 and custom
// installations enumerate the filesystem layout directly.
func installationEntries(inst *Installation, kind listKind) ([]ManifestEntry, error) {
	if inst.Kind == KindV6 {
		csvPath := filepath.Join(inst.RootPath, configDirMarker, kind.csvName())
		if _, err := os.Stat(csvPath); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		return loadCSVManifest(csvPath)
	}

	switch kind {
	case listAgents:
		return enumerateAgents(inst.RootPath)
	case listWorkflows:
		return enumerateWorkflows(inst.RootPath)
	default:
		return enumerateMarkdownDir(inst.RootPath, tasksDirName)
	}
}

// enumerateAgents lists agents/*.md files of a v4/custom installation.
func enumerateAgents(root string) ([]ManifestEntry, error) {
	return enumerateMarkdownDir(root, agentsDirName)
}

func enumerateMarkdownDir(root, dir string) ([]ManifestEntry, error) {
	full := filepath.Join(root, dir)
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", full, err)
	}

	var entries []ManifestEntry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(de.Name(), ".md")
		entries = append(entries, ManifestEntry{
			Name: name,
			Path: filepath.ToSlash(filepath.Join(dir, de.Name())),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// enumerateWorkflows lists workflows of a v4/custom installation:
// either workflows/<name>/workflow.yaml or workflows/<name>.yaml.
func enumerateWorkflows(root string) ([]ManifestEntry, error) {
	full := filepath.Join(root, workflowsDirName)
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", full, err)
	}

	var entries []ManifestEntry
	for _, de := range dirEntries {
		if de.IsDir() {
			nested := filepath.Join(full, de.Name(), workflowFileName)
			if fileExists(nested) {
				entries = append(entries, ManifestEntry{
					Name: de.Name(),
					Path: filepath.ToSlash(filepath.Join(workflowsDirName, de.Name(), workflowFileName)),
				})
			}
			continue
		}
		if strings.HasSuffix(de.Name(), ".yaml") || strings.HasSuffix(de.Name(), ".yml") {
			name := strings.TrimSuffix(strings.TrimSuffix(de.Name(), ".yaml"), ".yml")
			entries = append(entries, ManifestEntry{
				Name: name,
				Path: filepath.ToSlash(filepath.Join(workflowsDirName, de.Name())),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
