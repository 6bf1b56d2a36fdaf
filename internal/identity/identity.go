// Package identity derives deterministic container identities.
//
// An identity captures everything that distinguishes one sandbox from
// another: the workspace path (as a readable slug plus a hash), the extra
// mount set, and a non-default auth method. The rendered name is the
// engine-level primary key for the container, so resolution must be
// reproducible: the same workspace, mounts, and auth always produce the
// same identity.
package identity

import (
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/devadev/deva/internal/config"
)

// NamePrefix is the fixed first component of every container name.
const NamePrefix = "deva"

// ErrInvalidWorkspace is returned for empty, relative, or root workspace paths.
var ErrInvalidWorkspace = errors.New("invalid workspace path")

// Identity names a container deterministically.
type Identity struct {
	// Slug is the human-readable part, derived from the last path segments.
	Slug string
	// WorkspaceHash digests the canonical workspace path. It goes into
	// labels and records always, and into the name only when the base name
	// is owned by another workspace.
	WorkspaceHash string
	// VolumeHash digests the extra mount set; empty when there is none.
	VolumeHash string
	// AuthSuffix marks a non-default auth method; empty for the default.
	AuthSuffix string
	// Ephemeral identities name single-use containers.
	Ephemeral bool
	// PID disambiguates concurrent ephemeral containers of one workspace.
	PID int

	workspace string
}

// Input is everything Resolve needs. Workspace must already be canonical
// (absolute, symlinks resolved); mount sources should be absolute.
type Input struct {
	Workspace      string
	Mounts         []*config.Mount
	Method         string
	DefaultMethod  string
	CredentialFile string
	Ephemeral      bool
	PID            int
}

// Resolve derives the identity for the given input.
func Resolve(in Input) (*Identity, error) {
	ws := filepath.Clean(in.Workspace)
	if ws == "" || !filepath.IsAbs(ws) {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidWorkspace, in.Workspace)
	}
	if ws == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: refusing to use the filesystem root", ErrInvalidWorkspace)
	}
	if in.Ephemeral && in.PID <= 0 {
		return nil, errors.New("ephemeral identity requires a process id")
	}

	id := &Identity{
		Slug:          SlugFor(ws),
		WorkspaceHash: HashPath(ws),
		Ephemeral:     in.Ephemeral,
		PID:           in.PID,
		workspace:     ws,
	}

	if len(in.Mounts) > 0 {
		id.VolumeHash = HashMounts(in.Mounts)
	}

	if in.Method != "" && in.Method != in.DefaultMethod {
		suffix := sanitizeSegment(in.Method)
		if in.CredentialFile != "" {
			suffix += "-" + hashString(filepath.Clean(in.CredentialFile))
		}
		id.AuthSuffix = suffix
	}

	return id, nil
}

// Workspace returns the canonical workspace path the identity was resolved from.
func (id *Identity) Workspace() string {
	return id.workspace
}

// BaseName renders the container name without the workspace hash.
// This is the preferred name; the hash variant exists only to split slug
// collisions between different workspaces.
func (id *Identity) BaseName() string {
	return id.render(false)
}

// DisambiguatedName renders the container name with the workspace hash.
func (id *Identity) DisambiguatedName() string {
	return id.render(true)
}

func (id *Identity) render(withHash bool) string {
	parts := []string{NamePrefix, id.Slug}
	if withHash {
		parts = append(parts, "w"+id.WorkspaceHash)
	}
	if id.VolumeHash != "" {
		parts = append(parts, "v"+id.VolumeHash)
	}
	if id.AuthSuffix != "" {
		parts = append(parts, id.AuthSuffix)
	}
	name := strings.Join(parts, "-")
	if id.Ephemeral {
		name += "-" + strconv.Itoa(id.PID)
	}
	return name
}

// genericParents are directory names too generic to identify a project.
// When the workspace's parent matches, the slug walks up to the nearest
// non-generic ancestor instead. Curated, not configurable.
var genericParents = map[string]bool{
	"src":        true,
	"work":       true,
	"code":       true,
	"codes":      true,
	"sources":    true,
	"project":    true,
	"projects":   true,
	"repo":       true,
	"repos":      true,
	"dev":        true,
	"devel":      true,
	"home":       true,
	"git":        true,
	"tmp":        true,
	"workspace":  true,
	"workspaces": true,

	// forge checkout layouts like ~/go/src/github.com/owner/repo
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
	"codeberg.org":  true,
	"sr.ht":         true,
}

// SlugFor derives the readable slug for a workspace path: the project
// directory joined with its nearest non-generic parent. Readability wins
// over uniqueness; the hashes carry uniqueness.
func SlugFor(workspace string) string {
	segs := splitSegments(workspace)
	if len(segs) == 0 {
		return ""
	}

	project := segs[len(segs)-1]
	parent := project
	if len(segs) > 1 {
		parent = segs[len(segs)-2]
		// Skip generic parents in favor of an ancestor. If every ancestor
		// is generic too, keep the immediate parent rather than nothing.
		if generic(parent) {
			chosen := parent
			for i := len(segs) - 3; i >= 0; i-- {
				if !generic(segs[i]) {
					chosen = segs[i]
					break
				}
			}
			parent = chosen
		}
	}

	p := sanitizeSegment(project)
	q := sanitizeSegment(parent)
	if p == "" {
		return q
	}
	if q == "" {
		return p
	}
	// "work-myapp" inside work/ would otherwise become "work-work-myapp".
	if len(q) > 3 && strings.Contains(strings.ToLower(p), strings.ToLower(q)) {
		return p
	}
	return q + "-" + p
}

func generic(segment string) bool {
	return genericParents[strings.ToLower(segment)]
}

func splitSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// sanitizeSegment reduces a path segment to [a-zA-Z0-9-], collapsing runs
// of other characters into single dashes and trimming the ends.
func sanitizeSegment(raw string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if b.Len() == 0 || lastDash {
				continue
			}
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// HashPath digests a canonical path to a short fixed-width hex string.
// FNV-1a: the hash guards against accidental path reuse, not adversaries,
// and identical inputs on one host must always agree.
func HashPath(path string) string {
	return hashString(filepath.Clean(path))
}

// HashMounts digests a mount set order-independently: each entry is
// normalized to absolute-source:target:mode, the entries sorted, then
// hashed as one string. Changing a source, target, or mode changes the
// hash; reordering does not.
func HashMounts(mounts []*config.Mount) string {
	entries := make([]string, 0, len(mounts))
	for _, m := range mounts {
		src := m.Source
		if abs, err := filepath.Abs(src); err == nil {
			src = abs
		}
		entries = append(entries, src+":"+m.Target+":"+m.Mode())
	}
	sort.Strings(entries)
	return hashString(strings.Join(entries, "\n"))
}

func hashString(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
