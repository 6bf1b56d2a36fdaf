// Package gitinfo inspects the git context of a workspace.
//
// Two outputs matter to a launch: the current branch (recorded as a
// container label) and, for linked worktrees, the main repository's .git
// directory, which must be bind-mounted into the container at the same
// path or in-container git stops resolving objects. Non-repositories
// produce a zero Info.
package gitinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/devadev/deva/internal/log"
)

// Info describes the git context of a workspace.
type Info struct {
	// Branch is the short branch name, or a short commit hash when HEAD
	// is detached. Empty for non-repositories and unborn branches.
	Branch string
	// MainGitDir is the main repository's .git directory when the
	// workspace is a linked worktree, empty otherwise.
	MainGitDir string
}

// Detect inspects workspace. A workspace that is not a git repository is
// not an error.
func Detect(workspace string) (Info, error) {
	var info Info

	mainDir, err := linkedWorktreeGitDir(workspace)
	if err != nil {
		return Info{}, err
	}
	info.MainGitDir = mainDir

	repo, err := git.PlainOpenWithOptions(workspace, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		// The branch label is informational; a repository go-git cannot
		// open is treated like no repository at all.
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			log.Debug("could not open repository", "workspace", workspace, "error", err)
		}
		return info, nil
	}

	head, err := repo.Head()
	if err != nil {
		// Unborn branch (fresh init) or other HEAD oddity; the branch
		// label is informational, so leave it empty.
		log.Debug("could not resolve HEAD", "workspace", workspace, "error", err)
		return info, nil
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	} else {
		info.Branch = head.Hash().String()[:7]
	}
	return info, nil
}

// linkedWorktreeGitDir returns the main repository's .git directory when
// workspace/.git is a gitdir pointer file, empty when it is a regular
// repository or not a repository at all.
func linkedWorktreeGitDir(workspace string) (string, error) {
	dotGit := filepath.Join(workspace, ".git")
	fi, err := os.Stat(dotGit)
	if err != nil || fi.IsDir() {
		return "", nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("reading gitdir pointer: %w", err)
	}
	line := strings.TrimSpace(string(data))
	gitdir, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok {
		return "", nil
	}
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(workspace, gitdir)
	}
	gitdir = filepath.Clean(gitdir)

	// The worktree's private dir carries a commondir file pointing at the
	// main .git directory, usually "../..".
	common, err := os.ReadFile(filepath.Join(gitdir, "commondir"))
	if err == nil {
		rel := strings.TrimSpace(string(common))
		if !filepath.IsAbs(rel) {
			rel = filepath.Join(gitdir, rel)
		}
		return filepath.Clean(rel), nil
	}

	// No commondir; fall back to the <main>/.git/worktrees/<name> layout.
	parent := filepath.Dir(gitdir)
	if filepath.Base(parent) == "worktrees" {
		return filepath.Dir(parent), nil
	}
	return "", nil
}
