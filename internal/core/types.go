// Package core provides the resolution and caching logic for bmadkit.
// It has zero UI and zero protocol dependencies and is independently testable.
package core

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// Protocol is the transport used to reach a remote git repository.
type Protocol string

const (
	ProtocolHTTPS Protocol = "https"
	ProtocolSSH   Protocol = "ssh"
)

// RemoteSpec is the parsed identity of a git-hosted installation source.
// Equality of (Host, Org, Repo, Ref) defines cache-key identity; Subpath
// never participates in the key so multiple subpaths share one clone.
type RemoteSpec struct {
	Protocol Protocol `json:"protocol"`
	Host     string   `json:"host"`
	Org      string   `json:"org"`
	Repo     string   `json:"repo"`
	Ref      string   `json:"ref,omitempty"`     // branch, tag, or commit; empty = remote default branch
	Subpath  string   `json:"subpath,omitempty"` // resolved relative to the clone root at read time
}

// CacheEntry is the sidecar record persisted beside a clone. It is
// exclusively owned by GitCache and survives process restarts.
type CacheEntry struct {
	Remote          RemoteSpec `json:"remote"`
	ResolvedRef     string     `json:"resolvedRef,omitempty"` // branch HEAD pointed at when Ref was empty
	LastFetchedAt   time.Time  `json:"lastFetchedAt"`
	LastValidatedAt time.Time  `json:"lastValidatedAt"`
	SizeOnDisk      int64      `json:"sizeOnDisk"`

	// LocalPath is the working-tree directory backing this entry.
	// Derived from the cache key, not persisted.
	LocalPath string `json:"-"`
}

// InstallKind is the closed set of recognized installation layouts.
type InstallKind int

const (
	KindUnknown InstallKind = iota
	KindCustom
	KindV4
	KindV6
)

// String returns the layout label used in manifests and diagnostics.
func (k InstallKind) String() string {
	switch k {
	case KindV6:
		return "v6"
	case KindV4:
		return "v4"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// rank orders kinds for priority resolution: v6 > v4 > custom.
func (k InstallKind) rank() int {
	switch k {
	case KindV6:
		return 3
	case KindV4:
		return 2
	case KindCustom:
		return 1
	default:
		return 0
	}
}

// Source identifies where an installation was discovered.
type Source int

const (
	SourceExplicit Source = iota
	SourceProject
	SourceGit
	SourceUser
)

// String returns the source label used in diagnostics.
func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceProject:
		return "project"
	case SourceGit:
		return "git"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// precedence orders sources for priority resolution: lower wins.
func (s Source) precedence() int {
	switch s {
	case SourceExplicit:
		return 0
	case SourceProject:
		return 1
	case SourceGit:
		return 2
	case SourceUser:
		return 3
	default:
		return 4
	}
}

// Installation is a directory tree recognized as holding agent/workflow
// content. Immutable once produced by a scan pass.
type Installation struct {
	RootPath      string
	Kind          InstallKind
	Version       *semver.Version // nil when missing or invalid
	Depth         int             // path components below the scan root
	Source        Source
	ManifestPaths []string
	Warnings      []string
}

// PathTrace records one path checked during discovery with the
// accept/reject reason. Traces make NoInstallationFound actionable
// without re-running discovery.
type PathTrace struct {
	Path     string
	Source   Source
	Accepted bool
	Reason   string
}

// Catalog is the ordered, de-duplicated view over all discovered
// installations. It is rebuilt on every top-level request; only the git
// clones behind it are cached on disk.
type Catalog struct {
	Installations []Installation
	Traces        []PathTrace
	Warnings      []string
}

// Resource is a logical name resolved against one installation.
// Content is read lazily, never stored in the catalog.
type Resource struct {
	Name         string
	Module       string
	RelativePath string
	Installation *Installation
}
