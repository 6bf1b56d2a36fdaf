// Package credential resolves agent API keys.
//
// Resolution order: an explicit credential file, then the agent's own
// environment variables, then a key stored via "deva auth set-key". Stored
// keys live in the system keychain when one is available and fall back to
// a 0600 file under the deva state directory otherwise (headless hosts,
// CI).
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ServiceName is the keyring service identifier. DEVA_KEYRING_SERVICE
// overrides it for test isolation.
const ServiceName = "deva"

// Origin identifies where an API key was found.
type Origin string

const (
	OriginFile    Origin = "file"
	OriginEnv     Origin = "env"
	OriginKeyring Origin = "keyring"
)

// ErrNotFound means no backend had a key for the agent.
var ErrNotFound = errors.New("no API key found")

func serviceName() string {
	if name := os.Getenv("DEVA_KEYRING_SERVICE"); name != "" {
		return name
	}
	return ServiceName
}

// APIKey resolves the API key for an agent. A non-empty credentialFile
// wins outright; a missing file is an error rather than a fallthrough, so
// a typo in --credential-file never silently picks up a different key.
func APIKey(agent string, envVars []string, credentialFile string) (string, Origin, error) {
	if credentialFile != "" {
		data, err := os.ReadFile(credentialFile)
		if err != nil {
			return "", "", fmt.Errorf("reading credential file: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", "", fmt.Errorf("credential file %s is empty", credentialFile)
		}
		return key, OriginFile, nil
	}

	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v, OriginEnv, nil
		}
	}

	if key, err := StoredKey(agent); err == nil {
		return key, OriginKeyring, nil
	}

	hint := "set one of " + strings.Join(envVars, ", ")
	if len(envVars) == 0 {
		hint = "pass --credential-file"
	}
	return "", "", fmt.Errorf("%w for %s: %s, or run 'deva auth set-key %s'",
		ErrNotFound, agent, hint, agent)
}
