package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// MalformedRemoteSpecError is returned when a remote specifier string
// cannot be parsed. No I/O is attempted before it is raised.
type MalformedRemoteSpecError struct {
	Input     string // the full specifier as given
	Offending string // the substring that failed validation
	Reason    string
}

// Error implements the error interface.
func (e *MalformedRemoteSpecError) Error() string {
	if e.Offending != "" && e.Offending != e.Input {
		return fmt.Sprintf("malformed remote spec %q: %s (at %q)", e.Input, e.Reason, e.Offending)
	}
	return fmt.Sprintf("malformed remote spec %q: %s", e.Input, e.Reason)
}

// NoInstallationFoundError is the terminal error when discovery finds
// zero installations across all sources. It carries every path checked
// and why each was rejected.
type NoInstallationFoundError struct {
	Traces []PathTrace
}

// Error implements the error interface.
func (e *NoInstallationFoundError) Error() string {
	var sb strings.Builder
	sb.WriteString("no BMAD installation found")
	if len(e.Traces) > 0 {
		sb.WriteString("; checked:")
		for _, tr := range e.Traces {
			fmt.Fprintf(&sb, "\n  [%s] %s: %s", tr.Source, tr.Path, tr.Reason)
		}
	}
	return sb.String()
}

// CloneErrorKind classifies why a clone failed.
type CloneErrorKind int

const (
	// CloneErrUnknown is an unclassified clone failure.
	CloneErrUnknown CloneErrorKind = iota
	// CloneErrAuth means authentication failed (credentials missing or rejected).
	CloneErrAuth
	// CloneErrRepoNotFound means the repository does not exist or is not visible.
	CloneErrRepoNotFound
	// CloneErrRefNotFound means the requested branch/tag/commit does not exist.
	CloneErrRefNotFound
	// CloneErrNetwork means the host could not be reached.
	CloneErrNetwork
	// CloneErrTimeout means the caller-supplied timeout expired.
	CloneErrTimeout
)

// String returns a human-readable label for the error kind.
func (k CloneErrorKind) String() string {
	switch k {
	case CloneErrAuth:
		return "authentication required"
	case CloneErrRepoNotFound:
		return "repository not found"
	case CloneErrRefNotFound:
		return "ref not found"
	case CloneErrNetwork:
		return "network error"
	case CloneErrTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// CloneError is returned when a never-before-cached remote cannot be
// cloned. It is fatal for the remote in question.
type CloneError struct {
	Remote RemoteSpec
	Kind   CloneErrorKind
	Err    error
}

// Error implements the error interface.
func (e *CloneError) Error() string {
	return fmt.Sprintf("clone failed for %s (%s): %v", e.Remote.CloneURL(), e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *CloneError) Unwrap() error { return e.Err }

// UpdateError is returned when refreshing an existing clone fails.
// It is non-fatal by design: the stale-but-valid cache is still served
// and the failure is downgraded to a diagnostic warning.
type UpdateError struct {
	Remote RemoteSpec
	Err    error
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	return fmt.Sprintf("update failed for %s: %v", e.Remote.CloneURL(), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *UpdateError) Unwrap() error { return e.Err }

// CacheCorruptError means a cache directory exists for a key but does
// not hold a valid repository. It triggers a forced re-clone.
type CacheCorruptError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *CacheCorruptError) Error() string {
	return fmt.Sprintf("cache corrupt at %s: %s", e.Path, e.Reason)
}

// PathTraversalError is returned when a read escapes an installation
// root after normalization. It is local to one lookup and never
// invalidates the catalog.
type PathTraversalError struct {
	Path string
	Root string
}

// Error implements the error interface.
func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path traversal rejected: %q escapes installation root %s", e.Path, e.Root)
}

// ResourceNotFoundError is returned when no installation in the catalog
// provides the requested logical name.
type ResourceNotFoundError struct {
	Name       string
	Kind       string // "agent", "workflow", "task", or "file"
	Checked    []string
	Suggestion string // near-miss, empty when none
}

// Error implements the error interface.
func (e *ResourceNotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	if len(e.Checked) > 0 {
		msg += fmt.Sprintf("; checked %d installation(s)", len(e.Checked))
	}
	return msg
}

// ModuleNotFoundError is returned when a module-qualified lookup names
// a module/name pair no installation provides.
type ModuleNotFoundError struct {
	Module string
	Name   string
}

// Error implements the error interface.
func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %q has no entry named %q", e.Module, e.Name)
}

// classifyCloneError wraps a raw go-git failure in a CloneError with a
// classified kind so callers can present actionable diagnostics.
func classifyCloneError(spec RemoteSpec, err error) *CloneError {
	kind := CloneErrUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		kind = CloneErrTimeout
	case errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed):
		kind = CloneErrAuth
	case errors.Is(err, transport.ErrRepositoryNotFound):
		kind = CloneErrRepoNotFound
	default:
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "reference not found") || strings.Contains(msg, "couldn't find remote ref"):
			kind = CloneErrRefNotFound
		case strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "i/o timeout"):
			kind = CloneErrNetwork
		}
	}
	return &CloneError{Remote: spec, Kind: kind, Err: err}
}
