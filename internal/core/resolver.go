package core

import (
	"context"
	"path/filepath"
	"sort"
)

// Resolver merges installation scans from every configured source into
// one ordered, de-duplicated catalog. The catalog is rebuilt on every
// call; only the git clones behind it persist between calls.
type Resolver struct {
	cache   *GitCache
	scanner *Scanner
}

// NewResolver creates a Resolver over the given git cache and scanner.
func NewResolver(cache *GitCache, scanner *Scanner) *Resolver {
	return &Resolver{cache: cache, scanner: scanner}
}

// Resolve produces the catalog for the given configuration.
//
// Sources are consulted in fixed precedence: explicit paths, then the
// project directory, then git remotes, then the user home. Strict mode
// drops the project and user sources entirely. Within a source,
// installations order by depth ascending, kind rank descending
// (v6 > v4 > custom), then root path.
//
// A malformed remote specifier and a failed first-time clone are fatal.
// Everything else (missing paths, unreadable directories, failed cache
// refreshes) lands in the catalog's traces and warnings. When every
// source comes up empty the catalog is still returned alongside a
// NoInstallationFoundError carrying the full trace.
func (r *Resolver) Resolve(ctx context.Context, cfg *Config) (*Catalog, error) {
	catalog := &Catalog{}

	merge := func(res ScanResult) {
		catalog.Installations = append(catalog.Installations, res.Installations...)
		catalog.Traces = append(catalog.Traces, res.Traces...)
	}

	for _, path := range cfg.ExplicitPaths {
		merge(r.scanner.Scan(path, SourceExplicit))
	}

	if !cfg.Strict() && cfg.ProjectDir != "" {
		merge(r.scanner.Scan(cfg.ProjectDir, SourceProject))
	}

	for _, raw := range cfg.Remotes {
		spec, err := ParseRemoteSpec(raw)
		if err != nil {
			return nil, err
		}
		entry, warns, err := r.resolveRemote(ctx, cfg, *spec)
		catalog.Warnings = append(catalog.Warnings, warns...)
		if err != nil {
			return nil, err
		}
		scanRoot := entry.LocalPath
		if spec.Subpath != "" {
			scanRoot = filepath.Join(entry.LocalPath, filepath.FromSlash(spec.Subpath))
		}
		merge(r.scanner.Scan(scanRoot, SourceGit))
	}

	if !cfg.Strict() && cfg.UserHome != "" {
		merge(r.scanner.Scan(cfg.UserHome, SourceUser))
	}

	sortInstallations(catalog.Installations)
	catalog.Installations = dedupeInstallations(catalog.Installations)

	for _, inst := range catalog.Installations {
		catalog.Warnings = append(catalog.Warnings, inst.Warnings...)
	}

	if len(catalog.Installations) == 0 {
		return catalog, &NoInstallationFoundError{Traces: catalog.Traces}
	}
	return catalog, nil
}

// resolveRemote maps one remote through the cache under the configured
// network timeout.
func (r *Resolver) resolveRemote(ctx context.Context, cfg *Config, spec RemoteSpec) (*CacheEntry, []string, error) {
	opCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	return r.cache.Resolve(opCtx, spec)
}

// sortInstallations applies the catalog's deterministic total order.
func sortInstallations(insts []Installation) {
	sort.SliceStable(insts, func(i, j int) bool {
		a, b := insts[i], insts[j]
		if pa, pb := a.Source.precedence(), b.Source.precedence(); pa != pb {
			return pa < pb
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if ra, rb := a.Kind.rank(), b.Kind.rank(); ra != rb {
			return ra > rb
		}
		return a.RootPath < b.RootPath
	})
}

// dedupeInstallations drops later entries whose real path was already
// claimed by a higher-priority installation, so the same physical
// directory reachable from two sources appears once.
func dedupeInstallations(insts []Installation) []Installation {
	seen := make(map[string]bool, len(insts))
	out := insts[:0]
	for _, inst := range insts {
		key := inst.RootPath
		if real, err := filepath.EvalSymlinks(inst.RootPath); err == nil {
			key = real
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inst)
	}
	return out
}
