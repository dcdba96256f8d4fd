package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern constrains host/org/repo segments of a remote spec.
var segmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// refPattern constrains branch/tag/commit refs. Slashes are allowed for
// branch names like "release/1.2".
var refPattern = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

// keySanitizeRegexp normalizes cache-key components to directory-safe runes.
var keySanitizeRegexp = regexp.MustCompile(`[^a-z0-9-]`)

// ParseRemoteSpec parses a compound remote specifier into a RemoteSpec.
//
// Supported form:
//
//	git+<protocol>://<host>/<org>/<repo>.git[#<ref>][:/<subpath>]
//
// The "git+" prefix and the protocol are optional; protocol defaults to
// https. The ref may be a branch, tag, or commit — the parser does not
// distinguish them, resolution is deferred to the clone step. An absent
// ref resolves lazily to the remote's default branch. The subpath must
// not contain ".." segments.
func ParseRemoteSpec(input string) (*RemoteSpec, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, &MalformedRemoteSpecError{Input: input, Reason: "empty specifier"}
	}

	s = strings.TrimPrefix(s, "git+")

	proto := ProtocolHTTPS
	if idx := strings.Index(s, "://"); idx >= 0 {
		switch s[:idx] {
		case "https":
			proto = ProtocolHTTPS
		case "ssh":
			proto = ProtocolSSH
		default:
			return nil, &MalformedRemoteSpecError{Input: input, Offending: s[:idx], Reason: "protocol must be https or ssh"}
		}
		s = s[idx+3:]
	}

	// Split the [#ref][:/subpath] tail off first so a repository whose
	// name contains ".git" as a substring (".github", "my.gitops") parses.
	// Segments never contain "#" or ":", so the earliest marker wins.
	cut := len(s)
	if idx := strings.Index(s, "#"); idx >= 0 && idx < cut {
		cut = idx
	}
	if idx := strings.Index(s, ":/"); idx >= 0 && idx < cut {
		cut = idx
	}
	repoPath, tail := s[:cut], s[cut:]
	if !strings.HasSuffix(repoPath, ".git") {
		return nil, &MalformedRemoteSpecError{Input: input, Offending: repoPath, Reason: "missing .git suffix"}
	}
	repoPath = strings.TrimSuffix(repoPath, ".git")

	segments := strings.Split(repoPath, "/")
	if len(segments) != 3 {
		return nil, &MalformedRemoteSpecError{Input: input, Offending: repoPath, Reason: "expected host/org/repo before .git"}
	}
	for _, seg := range segments {
		if seg == "" || !segmentPattern.MatchString(seg) {
			return nil, &MalformedRemoteSpecError{Input: input, Offending: seg, Reason: "disallowed characters in path segment"}
		}
	}

	spec := &RemoteSpec{
		Protocol: proto,
		Host:     segments[0],
		Org:      segments[1],
		Repo:     segments[2],
	}

	// Tail grammar: [#ref][:/subpath]
	if strings.HasPrefix(tail, "#") {
		rest := tail[1:]
		if idx := strings.Index(rest, ":/"); idx >= 0 {
			spec.Ref = rest[:idx]
			tail = rest[idx:]
		} else {
			spec.Ref = rest
			tail = ""
		}
		if spec.Ref == "" || !refPattern.MatchString(spec.Ref) {
			return nil, &MalformedRemoteSpecError{Input: input, Offending: spec.Ref, Reason: "invalid ref"}
		}
	}
	if strings.HasPrefix(tail, ":/") {
		sub := tail[2:]
		if sub == "" {
			return nil, &MalformedRemoteSpecError{Input: input, Offending: tail, Reason: "empty subpath"}
		}
		for _, seg := range strings.Split(sub, "/") {
			if seg == ".." {
				return nil, &MalformedRemoteSpecError{Input: input, Offending: sub, Reason: "subpath must not contain .. segments"}
			}
		}
		spec.Subpath = strings.Trim(sub, "/")
		tail = ""
	}
	if tail != "" {
		return nil, &MalformedRemoteSpecError{Input: input, Offending: tail, Reason: "unexpected trailing characters"}
	}

	return spec, nil
}

// CloneURL returns the URL passed to the git transport.
func (r RemoteSpec) CloneURL() string {
	if r.Protocol == ProtocolSSH {
		return fmt.Sprintf("ssh://git@%s/%s/%s.git", r.Host, r.Org, r.Repo)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", r.Host, r.Org, r.Repo)
}

// String renders the spec back in its canonical compound form.
func (r RemoteSpec) String() string {
	s := fmt.Sprintf("git+%s://%s/%s/%s.git", r.Protocol, r.Host, r.Org, r.Repo)
	if r.Ref != "" {
		s += "#" + r.Ref
	}
	if r.Subpath != "" {
		s += ":/" + r.Subpath
	}
	return s
}

// SameClone reports whether two specs share one clone, i.e. agree on
// everything that participates in the cache key.
func (r RemoteSpec) SameClone(o RemoteSpec) bool {
	return r.Host == o.Host && r.Org == o.Org && r.Repo == o.Repo && r.Ref == o.Ref
}

// CacheKey derives the deterministic, filesystem-safe directory name for
// this spec's clone. The key is a readable host-org-repo-ref prefix plus
// a short hash of the unsanitized tuple for uniqueness. Subpath is
// deliberately excluded.
func (r RemoteSpec) CacheKey() string {
	ref := r.Ref
	if ref == "" {
		ref = "default"
	}
	tuple := fmt.Sprintf("%s/%s/%s@%s", r.Host, r.Org, r.Repo, ref)

	readable := strings.ToLower(fmt.Sprintf("%s-%s-%s-%s", r.Host, r.Org, r.Repo, ref))
	readable = keySanitizeRegexp.ReplaceAllString(readable, "-")
	readable = strings.Trim(readable, "-")
	if len(readable) > 200 {
		readable = readable[:200]
	}

	h := sha256.Sum256([]byte(tuple))
	shortHash := hex.EncodeToString(h[:4])

	if readable == "" {
		return shortHash
	}
	return readable + "-" + shortHash
}
