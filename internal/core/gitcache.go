package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gofrs/flock"
)

const (
	// repoSubdir holds the cloned working tree inside a key directory.
	repoSubdir = "repo"
	// entryFileName is the sidecar metadata record beside each clone.
	entryFileName = "cache-entry.json"
	// lockRetryDelay paces advisory-lock acquisition attempts.
	lockRetryDelay = 50 * time.Millisecond
	// defaultUpdateTTL is how long a fetched clone stays fresh.
	defaultUpdateTTL = 24 * time.Hour
)

// commitPattern matches a full commit hash ref.
var commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// GitCache maps RemoteSpecs to usable local directories, performing
// network work only when necessary. The cache root is an external store:
// all clone/update operations are serialized per cache key via an
// advisory file lock, so concurrent processes (and goroutines) never
// race to clone into the same directory. Different keys proceed fully
// independently.
type GitCache struct {
	root       string
	autoUpdate bool
	ttl        time.Duration

	// cloneURL maps a spec to its transport URL. Tests point it at
	// local fixture repositories.
	cloneURL func(RemoteSpec) string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGitCache creates a cache rooted at the given directory. A TTL of
// zero or less falls back to the default.
func NewGitCache(root string, autoUpdate bool, ttl time.Duration) *GitCache {
	if ttl <= 0 {
		ttl = defaultUpdateTTL
	}
	return &GitCache{
		root:       root,
		autoUpdate: autoUpdate,
		ttl:        ttl,
		cloneURL:   RemoteSpec.CloneURL,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Root returns the cache root directory.
func (g *GitCache) Root() string { return g.root }

func (g *GitCache) keyDir(key string) string    { return filepath.Join(g.root, key) }
func (g *GitCache) repoDir(key string) string   { return filepath.Join(g.root, key, repoSubdir) }
func (g *GitCache) entryPath(key string) string { return filepath.Join(g.root, key, entryFileName) }
func (g *GitCache) lockPath(key string) string  { return filepath.Join(g.root, key+".lock") }

// keyMutex returns the in-process mutex for a cache key.
func (g *GitCache) keyMutex(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.locks[key]
	if !ok {
		m = &sync.Mutex{}
		g.locks[key] = m
	}
	return m
}

// Resolve maps a RemoteSpec to its local working tree, cloning or
// updating as needed. Non-fatal problems (a failed refresh, a corrupt
// entry that was re-cloned) are returned as warnings; the error is
// non-nil only when no usable content could be produced.
func (g *GitCache) Resolve(ctx context.Context, spec RemoteSpec) (*CacheEntry, []string, error) {
	return g.resolve(ctx, spec, false)
}

// ForceUpdate refreshes a clone regardless of TTL, cloning first if the
// key was never cached.
func (g *GitCache) ForceUpdate(ctx context.Context, spec RemoteSpec) (*CacheEntry, []string, error) {
	return g.resolve(ctx, spec, true)
}

func (g *GitCache) resolve(ctx context.Context, spec RemoteSpec, force bool) (*CacheEntry, []string, error) {
	if err := os.MkdirAll(g.root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating cache root: %w", err)
	}

	key := spec.CacheKey()

	// Serialize per key: in-process mutex first, then the advisory file
	// lock shared with other processes. Unrelated keys run in parallel.
	km := g.keyMutex(key)
	km.Lock()
	defer km.Unlock()

	fl := flock.New(g.lockPath(key))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, nil, classifyCloneError(spec, fmt.Errorf("acquiring cache lock: %w", err))
	}
	if !locked {
		return nil, nil, classifyCloneError(spec, errors.New("acquiring cache lock: lock unavailable"))
	}
	defer func() { _ = fl.Unlock() }()

	var warnings []string

	entry, err := g.readEntry(key)
	switch {
	case err == nil && !entry.Remote.SameClone(spec):
		// Sidecar disagrees with the requested identity: invalidate.
		warnings = append(warnings, fmt.Sprintf("cache entry %s held %s, re-cloning as %s", key, entry.Remote.String(), spec.String()))
		if err := os.RemoveAll(g.keyDir(key)); err != nil {
			return nil, warnings, fmt.Errorf("evicting mismatched cache entry: %w", err)
		}
		entry = nil
	case err != nil && dirExists(g.keyDir(key)):
		// Directory exists but the sidecar is unreadable: corrupt.
		warnings = append(warnings, (&CacheCorruptError{Path: g.keyDir(key), Reason: err.Error()}).Error())
		if err := os.RemoveAll(g.keyDir(key)); err != nil {
			return nil, warnings, fmt.Errorf("evicting corrupt cache entry: %w", err)
		}
		entry = nil
	case err != nil:
		entry = nil
	}

	if entry != nil {
		// Validate that the target still is a repository.
		if _, err := git.PlainOpen(g.repoDir(key)); err != nil {
			warnings = append(warnings, (&CacheCorruptError{Path: g.repoDir(key), Reason: err.Error()}).Error())
			if err := os.RemoveAll(g.keyDir(key)); err != nil {
				return nil, warnings, fmt.Errorf("evicting corrupt cache entry: %w", err)
			}
			entry = nil
		}
	}

	if entry == nil {
		fresh, err := g.clone(ctx, spec, key)
		if err != nil {
			return nil, warnings, err
		}
		fresh.LocalPath = g.repoDir(key)
		return fresh, warnings, nil
	}

	entry.LocalPath = g.repoDir(key)

	if force || (g.autoUpdate && time.Since(entry.LastFetchedAt) > g.ttl) {
		if err := g.update(ctx, spec, entry); err != nil {
			// Stale beats gone: keep serving the existing clone.
			warnings = append(warnings, (&UpdateError{Remote: spec, Err: err}).Error())
		} else {
			entry.LastFetchedAt = time.Now().UTC()
			entry.SizeOnDisk = dirSize(g.repoDir(key))
		}
	}

	entry.LastValidatedAt = time.Now().UTC()
	if err := g.writeEntry(key, entry); err != nil {
		warnings = append(warnings, fmt.Sprintf("persisting cache entry: %v", err))
	}

	return entry, warnings, nil
}

// clone performs a full clone into a temporary sibling directory and
// renames it into place on success only, so a timeout or crash never
// leaves partial state behind the key.
func (g *GitCache) clone(ctx context.Context, spec RemoteSpec, key string) (*CacheEntry, error) {
	tmp, err := os.MkdirTemp(g.root, ".tmp-"+key+"-")
	if err != nil {
		return nil, classifyCloneError(spec, fmt.Errorf("creating staging dir: %w", err))
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	repoPath := filepath.Join(tmp, repoSubdir)
	resolvedRef, err := cloneRepo(ctx, g.cloneURL(spec), spec.Ref, repoPath)
	if err != nil {
		return nil, classifyCloneError(spec, err)
	}

	now := time.Now().UTC()
	entry := &CacheEntry{
		Remote:          spec,
		ResolvedRef:     resolvedRef,
		LastFetchedAt:   now,
		LastValidatedAt: now,
		SizeOnDisk:      dirSize(repoPath),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, classifyCloneError(spec, fmt.Errorf("encoding cache entry: %w", err))
	}
	if err := os.WriteFile(filepath.Join(tmp, entryFileName), data, 0o644); err != nil {
		return nil, classifyCloneError(spec, fmt.Errorf("writing cache entry: %w", err))
	}

	if err := os.Rename(tmp, g.keyDir(key)); err != nil {
		return nil, classifyCloneError(spec, fmt.Errorf("committing clone: %w", err))
	}
	return entry, nil
}

// cloneRepo clones the url into path and leaves the requested ref
// checked out. It returns the branch name HEAD landed on when the ref
// was empty, so later updates can track the default branch.
func cloneRepo(ctx context.Context, url, ref, path string) (string, error) {
	if ref == "" {
		repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: url})
		if err != nil {
			return "", err
		}
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("reading HEAD after clone: %w", err)
		}
		return head.Name().Short(), nil
	}

	if commitPattern.MatchString(ref) {
		return "", cloneAtCommit(ctx, url, ref, path)
	}

	// Branch first, then tag. A missing reference is retried as a
	// commit-ish revision before giving up.
	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
		SingleBranch:  true,
	})
	if err == nil {
		return "", nil
	}
	if !isRefNotFound(err) {
		return "", err
	}
	_ = os.RemoveAll(path)

	_, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewTagReferenceName(ref),
		SingleBranch:  true,
	})
	if err == nil {
		return "", nil
	}
	if !isRefNotFound(err) {
		return "", err
	}
	_ = os.RemoveAll(path)

	return "", cloneAtCommit(ctx, url, ref, path)
}

// cloneAtCommit clones the full history and checks out a specific
// revision, for refs that are neither branch nor tag.
func cloneAtCommit(ctx context.Context, url, rev, path string) error {
	repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: url})
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return fmt.Errorf("reference not found: %q: %w", rev, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", rev, err)
	}
	return nil
}

// update fetches and fast-forwards an existing clone in place. Diverged
// history is an error; the caller downgrades it to a warning and keeps
// serving the stale content.
func (g *GitCache) update(ctx context.Context, spec RemoteSpec, entry *CacheEntry) error {
	ref := spec.Ref
	if ref == "" {
		ref = entry.ResolvedRef
	}
	if commitPattern.MatchString(ref) {
		// Pinned to a commit: nothing to refresh.
		return nil
	}

	repo, err := git.PlainOpen(entry.LocalPath)
	if err != nil {
		return fmt.Errorf("opening repo: %w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Force: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching origin: %w", err)
	}

	var target plumbing.Hash
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true)
	if err == nil {
		target = remoteRef.Hash()
	} else {
		hash, rerr := repo.ResolveRevision(plumbing.Revision("refs/tags/" + ref))
		if rerr != nil {
			return fmt.Errorf("resolving ref %q: %w", ref, err)
		}
		target = *hash
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Hash() == target {
		return nil
	}

	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("reading HEAD commit: %w", err)
	}
	targetCommit, err := repo.CommitObject(target)
	if err != nil {
		return fmt.Errorf("reading target commit: %w", err)
	}
	ff, err := headCommit.IsAncestor(targetCommit)
	if err != nil {
		return fmt.Errorf("checking ancestry: %w", err)
	}
	if !ff {
		return fmt.Errorf("history diverged: local %s is not an ancestor of remote %s", head.Hash(), target)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: target}); err != nil {
		return fmt.Errorf("fast-forwarding: %w", err)
	}
	return nil
}

// readEntry loads the sidecar record for a key.
func (g *GitCache) readEntry(key string) (*CacheEntry, error) {
	data, err := os.ReadFile(g.entryPath(key))
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache entry: %w", err)
	}
	return &entry, nil
}

// writeEntry persists the sidecar record atomically.
func (g *GitCache) writeEntry(key string, entry *CacheEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := g.entryPath(key) + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, g.entryPath(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Entries lists every sidecar record under the cache root, sorted by
// key for deterministic output.
func (g *GitCache) Entries() ([]CacheEntry, error) {
	dirEntries, err := os.ReadDir(g.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache root: %w", err)
	}

	var keys []string
	for _, de := range dirEntries {
		if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
			keys = append(keys, de.Name())
		}
	}
	sort.Strings(keys)

	var entries []CacheEntry
	for _, key := range keys {
		entry, err := g.readEntry(key)
		if err != nil {
			continue // corrupt entries surface on next Resolve
		}
		entry.LocalPath = g.repoDir(key)
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Evict removes one cached clone by key.
func (g *GitCache) Evict(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	if !dirExists(g.keyDir(key)) {
		return fmt.Errorf("cache entry %q not found", key)
	}
	if err := os.RemoveAll(g.keyDir(key)); err != nil {
		return fmt.Errorf("evicting %s: %w", key, err)
	}
	_ = os.Remove(g.lockPath(key))
	return nil
}

// EvictAll clears the entire cache root.
func (g *GitCache) EvictAll() error {
	if err := os.RemoveAll(g.root); err != nil {
		return fmt.Errorf("clearing cache root: %w", err)
	}
	return os.MkdirAll(g.root, 0o755)
}

// isRefNotFound reports whether a clone failure means the requested
// reference does not exist on the remote.
func isRefNotFound(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "reference not found") || strings.Contains(msg, "couldn't find remote ref")
}

// dirSize sums the file sizes below a directory. Best effort: errors
// count as zero.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
