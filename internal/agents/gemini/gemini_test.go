package gemini

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/devadev/deva/internal/agent"
)

func TestCredentials(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	a := &Agent{}

	def, err := a.Credentials(methodGemini)
	if err != nil {
		t.Fatal(err)
	}
	if len(def.Excluded) != 0 {
		t.Errorf("default method should exclude nothing, got %v", def.Excluded)
	}
	if def.Roots[0].Path != filepath.Join(home, ".gemini") {
		t.Errorf("root = %s", def.Roots[0].Path)
	}

	apiKey, err := a.Credentials(methodAPIKey)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"oauth_creds.json": false, "google_accounts.json": false}
	for _, ex := range apiKey.Excluded {
		want[ex] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("api-key method must exclude %s, got %v", name, apiKey.Excluded)
		}
	}
}

func TestPrepareLaunch_Default(t *testing.T) {
	launch, auth, err := (&Agent{}).PrepareLaunch(context.Background(), []string{"-p", "hi"}, agent.Options{Method: methodGemini})
	if err != nil {
		t.Fatal(err)
	}
	if launch.Argv[0] != "gemini" || len(launch.Argv) != 3 {
		t.Errorf("argv = %v", launch.Argv)
	}
	if auth.Method != methodGemini || len(launch.Env) != 0 {
		t.Errorf("default launch wrong: %+v %+v", launch, auth)
	}
}

func TestPrepareLaunch_APIKeyFromEnv(t *testing.T) {
	t.Setenv("DEVA_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "AIza-test")

	launch, _, err := (&Agent{}).PrepareLaunch(context.Background(), nil, agent.Options{Method: methodAPIKey})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range launch.Env {
		if e == "GEMINI_API_KEY=AIza-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("key not injected, env = %v", launch.Env)
	}
}
