package config

import (
	"fmt"
	"strings"
)

// Mount represents a volume mount.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ParseMount parses a mount string like "./data:/data:ro".
// The mode suffix is optional and defaults to rw.
func ParseMount(s string) (*Mount, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid mount %q (expected source:target[:ro|rw])", s)
	}
	if parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid mount %q: source and target must not be empty", s)
	}

	m := &Mount{
		Source: parts[0],
		Target: parts[1],
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return nil, fmt.Errorf("invalid mount mode %q in %q (expected ro or rw)", parts[2], s)
		}
	}

	return m, nil
}

// Mode returns "ro" or "rw".
func (m *Mount) Mode() string {
	if m.ReadOnly {
		return "ro"
	}
	return "rw"
}

// String renders the canonical source:target:mode form.
func (m *Mount) String() string {
	return m.Source + ":" + m.Target + ":" + m.Mode()
}
