package agent

import (
	"sort"
	"sync"
)

var (
	mu      sync.RWMutex
	agents  = make(map[string]Agent)
	aliases = make(map[string]string) // alias -> canonical name
)

// Register adds an agent to the registry, along with its aliases. Called
// from init() in each agent package.
func Register(a Agent) {
	mu.Lock()
	defer mu.Unlock()
	agents[a.Name()] = a
	for _, alias := range a.Aliases() {
		aliases[alias] = a.Name()
	}
}

// Get returns an agent by name or alias, or nil when unknown.
func Get(name string) Agent {
	mu.RLock()
	defer mu.RUnlock()
	if a, ok := agents[name]; ok {
		return a
	}
	if canonical, ok := aliases[name]; ok {
		return agents[canonical]
	}
	return nil
}

// All returns the registered agents sorted by name.
func All() []Agent {
	mu.RLock()
	defer mu.RUnlock()
	result := make([]Agent, 0, len(agents))
	for _, a := range agents {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Names returns the canonical agent names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear empties the registry. For testing only.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	agents = make(map[string]Agent)
	aliases = make(map[string]string)
}
