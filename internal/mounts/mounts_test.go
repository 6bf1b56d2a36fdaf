package mounts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
)

// stubAgent serves a fixed credential table.
type stubAgent struct {
	roots    []agent.Root
	excluded []string
}

func (s *stubAgent) Name() string          { return "stub" }
func (s *stubAgent) Aliases() []string     { return nil }
func (s *stubAgent) Description() string   { return "stub agent" }
func (s *stubAgent) DefaultMethod() string { return "oauth" }
func (s *stubAgent) Methods() []string     { return []string{"oauth", "api-key"} }

func (s *stubAgent) Credentials(method string) (agent.Credentials, error) {
	creds := agent.Credentials{Roots: s.roots}
	if method != s.DefaultMethod() {
		creds.Excluded = s.excluded
	}
	return creds, nil
}

func (s *stubAgent) PrepareLaunch(ctx context.Context, args []string, opts agent.Options) (*agent.Launch, *agent.AuthContext, error) {
	return &agent.Launch{}, &agent.AuthContext{}, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
}

func sources(plan []engine.Mount) []string {
	var out []string
	for _, m := range plan {
		out = append(out, m.Source)
	}
	return out
}

func TestCompose_DefaultMountsWholesale(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := filepath.Join(home, ".stub")
	writeFile(t, filepath.Join(root, "session.json"))
	writeFile(t, filepath.Join(root, "settings.json"))

	plan, err := Compose(Options{
		Agent: &stubAgent{
			roots:    []agent.Root{{Path: root}},
			excluded: []string{"session.json"},
		},
		Method:    "oauth",
		Workspace: "/work/app",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(plan) != 2 {
		t.Fatalf("expected root + workspace mounts, got %v", sources(plan))
	}
	if plan[0].Source != root {
		t.Errorf("default method should mount the root wholesale, got %s", plan[0].Source)
	}
	if plan[0].Target != ContainerHome+"/.stub" {
		t.Errorf("root target = %s", plan[0].Target)
	}
	if plan[1].Source != "/work/app" || plan[1].Target != "/work/app" || plan[1].ReadOnly {
		t.Errorf("workspace mount wrong: %+v", plan[1])
	}
}

func TestCompose_NonDefaultExcludesSecret(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := filepath.Join(home, ".stub")
	writeFile(t, filepath.Join(root, "session.json"))
	writeFile(t, filepath.Join(root, "settings.json"))
	writeFile(t, filepath.Join(root, "history"))

	plan, err := Compose(Options{
		Agent: &stubAgent{
			roots:    []agent.Root{{Path: root}},
			excluded: []string{"session.json"},
		},
		Method:    "api-key",
		Workspace: "/work/app",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range plan {
		if strings.Contains(m.Source, "session.json") {
			t.Errorf("excluded file mounted: %s", m.Source)
		}
		if m.Source == root {
			t.Errorf("shared root mounted wholesale for non-default method")
		}
	}
	// The two non-excluded entries plus the workspace.
	if len(plan) != 3 {
		t.Errorf("expected 3 mounts, got %v", sources(plan))
	}
}

func TestCompose_SplitsDirectoryHoldingSecret(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := filepath.Join(home, ".stub")
	// A subdirectory whose mount would re-expose the secret.
	writeFile(t, filepath.Join(root, "cache", "session.json"))
	writeFile(t, filepath.Join(root, "cache", "index.json"))
	writeFile(t, filepath.Join(root, "settings.json"))

	plan, err := Compose(Options{
		Agent: &stubAgent{
			roots:    []agent.Root{{Path: root}},
			excluded: []string{"session.json"},
		},
		Method:    "api-key",
		Workspace: "/work/app",
	})
	if err != nil {
		t.Fatal(err)
	}

	var sawIndex, sawCacheDir bool
	for _, m := range plan {
		if strings.HasSuffix(m.Source, "session.json") {
			t.Errorf("excluded file mounted via directory split: %s", m.Source)
		}
		if m.Source == filepath.Join(root, "cache") {
			sawCacheDir = true
		}
		if m.Source == filepath.Join(root, "cache", "index.json") {
			sawIndex = true
		}
	}
	if sawCacheDir {
		t.Error("directory containing a secret must be split, not mounted whole")
	}
	if !sawIndex {
		t.Errorf("non-excluded child not mounted, plan: %v", sources(plan))
	}
}

func TestCompose_ExcludedDirectorySkippedEntirely(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := filepath.Join(home, ".stub")
	writeFile(t, filepath.Join(root, "secrets", "token"))
	writeFile(t, filepath.Join(root, "settings.json"))

	plan, err := Compose(Options{
		Agent: &stubAgent{
			roots:    []agent.Root{{Path: root}},
			excluded: []string{"secrets"},
		},
		Method:    "api-key",
		Workspace: "/work/app",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range plan {
		if strings.Contains(m.Source, "secrets") {
			t.Errorf("excluded directory leaked into plan: %s", m.Source)
		}
	}
}

func TestCompose_MissingRootSkipped(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	plan, err := Compose(Options{
		Agent: &stubAgent{
			roots: []agent.Root{{Path: filepath.Join(home, ".absent")}},
		},
		Method:    "oauth",
		Workspace: "/work/app",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 1 || plan[0].Source != "/work/app" {
		t.Errorf("missing root should leave only the workspace mount, got %v", sources(plan))
	}
}

func TestCompose_RejectsRootOutsideAllowedBases(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	_, err := Compose(Options{
		Agent: &stubAgent{
			roots: []agent.Root{{Path: "/etc/shadow-dir"}},
		},
		Method:    "oauth",
		Workspace: "/work/app",
	})
	if !errors.Is(err, ErrRootNotAllowed) {
		t.Fatalf("expected ErrRootNotAllowed, got %v", err)
	}

	_, err = Compose(Options{
		Agent: &stubAgent{
			roots: []agent.Root{{Path: "relative/.stub"}},
		},
		Method:    "oauth",
		Workspace: "/work/app",
	})
	if !errors.Is(err, ErrRootNotAllowed) {
		t.Fatalf("expected ErrRootNotAllowed for relative root, got %v", err)
	}
}

func TestCompose_ExtraAndGitDirAppended(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	plan, err := Compose(Options{
		Agent:     &stubAgent{},
		Method:    "oauth",
		Workspace: "/work/app",
		Extra: []*config.Mount{
			{Source: "/home/dev/keys", Target: "/home/deva/keys", ReadOnly: true},
		},
		GitDir: "/work/main/.git",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(plan) != 3 {
		t.Fatalf("expected workspace + extra + gitdir, got %v", sources(plan))
	}
	extra := plan[1]
	if extra.Source != "/home/dev/keys" || !extra.ReadOnly {
		t.Errorf("extra mount wrong: %+v", extra)
	}
	gd := plan[2]
	if gd.Source != "/work/main/.git" || gd.Target != "/work/main/.git" || !gd.ReadOnly {
		t.Errorf("git dir mount wrong: %+v", gd)
	}
}

func TestTargetFor(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"/home/u/.claude", ContainerHome + "/.claude"},
		{"/home/u/.config/gcloud", ContainerHome + "/.config/gcloud"},
		{"/tmp/scratch", "/tmp/scratch"},
	}
	for _, tt := range tests {
		if got := targetFor("/home/u", tt.host); got != tt.want {
			t.Errorf("targetFor(%s) = %s, want %s", tt.host, got, tt.want)
		}
	}
}
