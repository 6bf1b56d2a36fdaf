package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/log"
)

// ErrInsecurePermissions is returned when a fallback key file is readable
// by group or others.
var ErrInsecurePermissions = errors.New("key file has insecure permissions")

// backend is one place a stored key can live.
type backend interface {
	Get(agent string) (string, error)
	Set(agent, key string) error
	Delete(agent string) error
	Name() string
}

type keychainBackend struct{}

func (keychainBackend) Get(agent string) (string, error) {
	key, err := keyring.Get(serviceName(), agent)
	if err != nil {
		return "", fmt.Errorf("keychain get: %w", err)
	}
	return key, nil
}

func (keychainBackend) Set(agent, key string) error {
	if err := keyring.Set(serviceName(), agent, key); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

func (keychainBackend) Delete(agent string) error {
	if err := keyring.Delete(serviceName(), agent); err != nil {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

func (keychainBackend) Name() string { return "system keychain" }

// fileBackend stores keys under <state dir>/keys with 0600 permissions.
type fileBackend struct {
	dir string
}

func (f fileBackend) path(agent string) string {
	return filepath.Join(f.dir, agent+".key")
}

func (f fileBackend) Get(agent string) (string, error) {
	path := f.path(agent)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	// Refuse keys that group or others can read. If the mode was loosened
	// the key may have leaked; the fix is chmod 600 and a rotation.
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return "", fmt.Errorf("%w: %s has mode %04o, expected 0600", ErrInsecurePermissions, path, perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f fileBackend) Set(agent, key string) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(f.path(agent), []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

func (f fileBackend) Delete(agent string) error {
	if err := os.Remove(f.path(agent)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting key file: %w", err)
	}
	return nil
}

func (f fileBackend) Name() string { return "file (" + f.dir + ")" }

func backends() (primary, fallback backend) {
	return keychainBackend{}, fileBackend{dir: filepath.Join(config.Dir(), "keys")}
}

// StoredKey reads a key previously saved with SetKey, keychain first.
func StoredKey(agent string) (string, error) {
	primary, fallback := backends()
	if key, err := primary.Get(agent); err == nil && key != "" {
		return key, nil
	}
	key, err := fallback.Get(agent)
	if err != nil || key == "" {
		return "", ErrNotFound
	}
	return key, nil
}

// SetKey stores an API key for an agent. The keychain is preferred; when
// it is unavailable the key goes to a 0600 file under the state directory.
func SetKey(agent, key string) error {
	primary, fallback := backends()
	err := primary.Set(agent, key)
	if err == nil {
		return nil
	}
	log.Debug("keychain unavailable, storing key in file", "agent", agent, "error", err)
	if err := fallback.Set(agent, key); err != nil {
		return fmt.Errorf("storing key for %s: %w", agent, err)
	}
	return nil
}

// DeleteKey removes a stored key from every backend. One backend
// succeeding is enough; only a total failure is reported.
func DeleteKey(agent string) error {
	primary, fallback := backends()
	primaryErr := primary.Delete(agent)
	fallbackErr := fallback.Delete(agent)
	if primaryErr != nil && fallbackErr != nil {
		return fmt.Errorf("deleting key for %s: %w", agent, errors.Join(primaryErr, fallbackErr))
	}
	return nil
}
