// Package mounts composes the bind mount set for a container launch.
//
// The composer's contract is exclusion: a credential file belonging to an
// inactive auth method is never mounted, not even transitively through a
// parent directory mount. For the agent's default method credential roots
// are mounted wholesale; for any other method the composer walks each root
// and mounts entries individually, skipping excluded names and splitting
// directories that contain one.
package mounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
)

// ContainerHome is the sandbox user's home directory. Credential roots
// under the host home are remapped beneath it so agents find their config
// where they expect it.
const ContainerHome = "/home/deva"

// ErrRootNotAllowed is returned when a credential root escapes the
// allow-listed base directories.
var ErrRootNotAllowed = errors.New("credential root outside allowed directories")

// Options are the inputs to Compose.
type Options struct {
	// Agent supplies the per-method credential table.
	Agent agent.Agent
	// Method is the validated auth method for this launch.
	Method string
	// Workspace is the canonical workspace path, mounted read-write at
	// the same path inside the container.
	Workspace string
	// Extra are user-supplied volume mounts (--volume flags and config),
	// appended after the credential mounts.
	Extra []*config.Mount
	// GitDir, when non-empty, is a linked worktree's main .git directory,
	// mounted read-only at the same path so in-container git resolves.
	GitDir string
}

// Compose builds the full mount list for a launch: credential mounts per
// the method's table, then the workspace, then extra volumes, then the
// worktree git dir. The result is assembled once and never mutated by
// downstream components.
func Compose(opts Options) ([]engine.Mount, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	creds, err := opts.Agent.Credentials(opts.Method)
	if err != nil {
		return nil, err
	}

	var plan []engine.Mount
	isDefault := opts.Method == opts.Agent.DefaultMethod()
	for _, root := range creds.Roots {
		if err := validateRoot(root.Path, home); err != nil {
			return nil, err
		}
		entries, err := composeRoot(home, root, creds.Excluded, isDefault)
		if err != nil {
			return nil, err
		}
		plan = append(plan, entries...)
	}

	plan = append(plan, engine.Mount{Source: opts.Workspace, Target: opts.Workspace})

	for _, m := range opts.Extra {
		src := m.Source
		if abs, err := filepath.Abs(src); err == nil {
			src = abs
		}
		plan = append(plan, engine.Mount{Source: src, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	if opts.GitDir != "" {
		plan = append(plan, engine.Mount{Source: opts.GitDir, Target: opts.GitDir, ReadOnly: true})
	}

	return plan, nil
}

// composeRoot turns one credential root into mounts. Missing roots are
// skipped silently: a user who never logged in with a method simply has no
// files for it.
func composeRoot(home string, root agent.Root, excluded []string, isDefault bool) ([]engine.Mount, error) {
	fi, err := os.Stat(root.Path)
	if err != nil {
		return nil, nil
	}

	target := targetFor(home, root.Path)

	if !fi.IsDir() {
		if !isDefault && excludedName(filepath.Base(root.Path), excluded) {
			return nil, nil
		}
		return []engine.Mount{{Source: root.Path, Target: target, ReadOnly: root.ReadOnly}}, nil
	}

	// Default credentials are the ones meant to be visible; mount the
	// directory wholesale.
	if isDefault || len(excluded) == 0 {
		return []engine.Mount{{Source: root.Path, Target: target, ReadOnly: root.ReadOnly}}, nil
	}

	return walkRoot(root.Path, target, root.ReadOnly, excluded, true)
}

// walkRoot mounts a directory's immediate entries individually, skipping
// excluded names. A subdirectory holding an excluded file is split one
// level deeper instead of being mounted whole, because a directory mount
// would re-expose the sibling secret. recurse limits the split to one level.
func walkRoot(dir, target string, readOnly bool, excluded []string, recurse bool) ([]engine.Mount, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading credential directory %s: %w", dir, err)
	}

	var plan []engine.Mount
	for _, e := range entries {
		if excludedName(e.Name(), excluded) {
			// Excluded directories are skipped entirely, never recursed into.
			continue
		}
		src := filepath.Join(dir, e.Name())
		dst := target + "/" + e.Name()
		if recurse && e.IsDir() && containsExcluded(src, excluded) {
			sub, err := walkRoot(src, dst, readOnly, excluded, false)
			if err != nil {
				return nil, err
			}
			plan = append(plan, sub...)
			continue
		}
		plan = append(plan, engine.Mount{Source: src, Target: dst, ReadOnly: readOnly})
	}
	return plan, nil
}

func containsExcluded(dir string, excluded []string) bool {
	for _, name := range excluded {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func excludedName(name string, excluded []string) bool {
	for _, ex := range excluded {
		if name == ex {
			return true
		}
	}
	return false
}

// validateRoot rejects credential roots that are relative or escape the
// allow-listed bases (home, XDG config home, the temp prefix). Roots come
// from agent tables and user config; an unchecked root would let a config
// edit mount arbitrary host paths.
func validateRoot(root, home string) error {
	if !filepath.IsAbs(root) {
		return fmt.Errorf("%w: %s is not absolute", ErrRootNotAllowed, root)
	}
	clean := filepath.Clean(root)

	allowed := []string{home, os.TempDir()}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		allowed = append(allowed, xdg)
	}
	for _, base := range allowed {
		if base == "" {
			continue
		}
		base = filepath.Clean(base)
		if clean == base || strings.HasPrefix(clean, base+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRootNotAllowed, root)
}

// targetFor maps a host credential path to its in-container location:
// paths under the host home move under ContainerHome, everything else
// keeps its absolute path.
func targetFor(home, hostPath string) string {
	rel, err := filepath.Rel(home, hostPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return hostPath
	}
	return ContainerHome + "/" + filepath.ToSlash(rel)
}
