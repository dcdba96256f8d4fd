package core

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// resourceNamePattern is the shape of a valid logical resource name.
var resourceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,48}[a-z0-9]$`)

// View resolves logical names against a catalog. Lookups walk the
// catalog's priority order and the first installation containing a name
// wins outright; later installations are never consulted for it.
// Content is read lazily, never held in the catalog.
type View struct {
	catalog *Catalog
}

// NewView creates a View over a resolved catalog.
func NewView(catalog *Catalog) *View {
	return &View{catalog: catalog}
}

// Catalog returns the underlying catalog.
func (v *View) Catalog() *Catalog { return v.catalog }

// ListAgents returns the de-duplicated agent list in priority order.
func (v *View) ListAgents() ([]Resource, error) { return v.list(listAgents) }

// ListWorkflows returns the de-duplicated workflow list in priority order.
func (v *View) ListWorkflows() ([]Resource, error) { return v.list(listWorkflows) }

// ListTasks returns the de-duplicated task list in priority order.
func (v *View) ListTasks() ([]Resource, error) { return v.list(listTasks) }

// list walks the catalog in order, collecting entries of one kind and
// skipping names already claimed by a higher-priority installation.
func (v *View) list(kind listKind) ([]Resource, error) {
	seen := make(map[string]bool)
	var out []Resource
	for i := range v.catalog.Installations {
		inst := &v.catalog.Installations[i]
		entries, err := installationEntries(inst, kind)
		if err != nil {
			// Unreadable manifests degrade this installation, not the listing.
			v.catalog.Warnings = append(v.catalog.Warnings, fmt.Sprintf("listing %ss in %s: %v", kind.label(), inst.RootPath, err))
			continue
		}
		for _, e := range entries {
			if e.Name == "" || seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			out = append(out, Resource{
				Name:         e.Name,
				Module:       e.Module,
				RelativePath: e.Path,
				Installation: inst,
			})
		}
	}
	return out, nil
}

// FindAgent resolves a logical agent name to its winning resource.
func (v *View) FindAgent(name string) (*Resource, error) { return v.find(listAgents, name) }

// FindWorkflow resolves a logical workflow name to its winning resource.
func (v *View) FindWorkflow(name string) (*Resource, error) { return v.find(listWorkflows, name) }

// FindTask resolves a logical task name to its winning resource.
func (v *View) FindTask(name string) (*Resource, error) { return v.find(listTasks, name) }

// ReadAgent resolves and reads an agent's content.
func (v *View) ReadAgent(name string) ([]byte, *Resource, error) { return v.read(listAgents, name) }

// ReadWorkflow resolves and reads a workflow's content.
func (v *View) ReadWorkflow(name string) ([]byte, *Resource, error) {
	return v.read(listWorkflows, name)
}

// ReadTask resolves and reads a task's content.
func (v *View) ReadTask(name string) ([]byte, *Resource, error) { return v.read(listTasks, name) }

func (v *View) read(kind listKind, name string) ([]byte, *Resource, error) {
	res, err := v.find(kind, name)
	if err != nil {
		return nil, nil, err
	}
	data, err := v.ReadFile(res.Installation, res.RelativePath)
	if err != nil {
		return nil, nil, err
	}
	return data, res, nil
}

// find resolves one logical name. A "module/name" form bypasses
// priority resolution and binds directly to the matching
// installation/module pair.
func (v *View) find(kind listKind, logical string) (*Resource, error) {
	logical = strings.TrimSpace(logical)
	if module, name, qualified := strings.Cut(logical, "/"); qualified {
		return v.findQualified(kind, module, name)
	}
	if err := validateResourceName(logical); err != nil {
		return nil, err
	}

	var checked []string
	var candidates []string
	for i := range v.catalog.Installations {
		inst := &v.catalog.Installations[i]
		entries, err := installationEntries(inst, kind)
		if err != nil {
			continue
		}
		checked = append(checked, inst.RootPath)
		for _, e := range entries {
			if e.Name == logical {
				return &Resource{
					Name:         e.Name,
					Module:       e.Module,
					RelativePath: e.Path,
					Installation: inst,
				}, nil
			}
			candidates = append(candidates, e.Name)
		}
	}

	return nil, &ResourceNotFoundError{
		Name:       logical,
		Kind:       kind.label(),
		Checked:    checked,
		Suggestion: suggestName(logical, candidates),
	}
}

// findQualified resolves a module-qualified name directly against the
// installation that provides that module.
func (v *View) findQualified(kind listKind, module, name string) (*Resource, error) {
	if module == "" || name == "" {
		return nil, &ModuleNotFoundError{Module: module, Name: name}
	}
	for i := range v.catalog.Installations {
		inst := &v.catalog.Installations[i]
		entries, err := installationEntries(inst, kind)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Module != module {
				continue
			}
			if e.Name == name {
				return &Resource{
					Name:         e.Name,
					Module:       e.Module,
					RelativePath: e.Path,
					Installation: inst,
				}, nil
			}
		}
	}
	return nil, &ModuleNotFoundError{Module: module, Name: name}
}

// ReadFile reads a file relative to an installation root. Any path that
// escapes the root after normalization is rejected; the rejection is
// local to this lookup and never invalidates the catalog.
func (v *View) ReadFile(inst *Installation, relativePath string) ([]byte, error) {
	root, err := filepath.Abs(inst.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving installation root: %w", err)
	}

	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, &PathTraversalError{Path: relativePath, Root: root}
	}

	full := filepath.Join(root, clean)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return nil, &PathTraversalError{Path: relativePath, Root: root}
	}

	// The lexical check above cannot see symlinks, and cloned
	// installations carry remote-controlled content. Resolve links on
	// both sides and re-check containment against the real root.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolving installation root: %w", err)
	}
	realFull, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ResourceNotFoundError{Name: relativePath, Kind: "file", Checked: []string{root}}
		}
		return nil, fmt.Errorf("resolving %s: %w", full, err)
	}
	if realFull != realRoot && !strings.HasPrefix(realFull, realRoot+string(filepath.Separator)) {
		return nil, &PathTraversalError{Path: relativePath, Root: root}
	}

	data, err := os.ReadFile(realFull)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ResourceNotFoundError{Name: relativePath, Kind: "file", Checked: []string{root}}
		}
		return nil, fmt.Errorf("reading %s: %w", full, err)
	}
	return data, nil
}

// validateResourceName enforces the logical-name shape: lowercase
// letters, digits, and hyphens, 2-50 characters, no leading or trailing
// hyphen.
func validateResourceName(name string) error {
	if resourceNamePattern.MatchString(name) {
		return nil
	}
	if lowered := strings.ToLower(name); lowered != name && resourceNamePattern.MatchString(lowered) {
		return fmt.Errorf("invalid resource name %q: names are lowercase (did you mean %q?)", name, lowered)
	}
	return fmt.Errorf("invalid resource name %q: use 2-50 lowercase letters, digits, and hyphens", name)
}

// suggestName picks a near-miss for a failed lookup: a case-insensitive
// match first, then a prefix relationship either way.
func suggestName(target string, candidates []string) string {
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if strings.ToLower(c) == lower {
			return c
		}
	}
	for _, c := range candidates {
		cl := strings.ToLower(c)
		if strings.HasPrefix(cl, lower) || strings.HasPrefix(lower, cl) {
			return c
		}
	}
	return ""
}
