package credential

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DEVA_HOME", dir)
	// Isolated service name so a real keychain on the host never collides
	// with developer entries.
	t.Setenv("DEVA_KEYRING_SERVICE", "deva-test-"+filepath.Base(dir))
	return dir
}

func TestAPIKey_CredentialFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("sk-from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	key, origin, err := APIKey("claude", []string{"DEVA_TEST_KEY_A"}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-from-file" {
		t.Errorf("expected trimmed file contents, got %q", key)
	}
	if origin != OriginFile {
		t.Errorf("expected file origin, got %q", origin)
	}
}

func TestAPIKey_CredentialFileBeatsEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("sk-from-file"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEVA_TEST_KEY_A", "sk-from-env")

	key, origin, err := APIKey("claude", []string{"DEVA_TEST_KEY_A"}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-from-file" || origin != OriginFile {
		t.Errorf("credential file should win over env, got %q from %q", key, origin)
	}
}

func TestAPIKey_CredentialFileMissing(t *testing.T) {
	isolate(t)
	t.Setenv("DEVA_TEST_KEY_A", "sk-from-env")

	_, _, err := APIKey("claude", []string{"DEVA_TEST_KEY_A"}, "/nonexistent/key.txt")
	if err == nil {
		t.Fatal("expected error for missing credential file, not an env fallthrough")
	}
	if !strings.Contains(err.Error(), "reading credential file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAPIKey_CredentialFileEmpty(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := APIKey("claude", nil, path); err == nil {
		t.Fatal("expected error for empty credential file")
	}
}

func TestAPIKey_EnvOrder(t *testing.T) {
	isolate(t)
	t.Setenv("DEVA_TEST_KEY_B", "sk-second")

	key, origin, err := APIKey("claude", []string{"DEVA_TEST_KEY_A", "DEVA_TEST_KEY_B"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-second" || origin != OriginEnv {
		t.Errorf("expected first non-empty env var, got %q from %q", key, origin)
	}
}

func TestAPIKey_NotFound(t *testing.T) {
	isolate(t)

	_, _, err := APIKey("claude", []string{"DEVA_TEST_KEY_A"}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "deva auth set-key claude") {
		t.Errorf("error should point at the auth command: %v", err)
	}
}
