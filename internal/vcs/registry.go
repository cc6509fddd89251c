package vcs

import (
	"fmt"
	"sync"
)

// VCSConstructor creates a VCS instance for a repository root, driving
// the VCS binary through runner.
// Implementations register themselves with the registry using Register().
type VCSConstructor func(repoRoot string, runner *Runner) (VCS, error)

// registry maps VCS types to their constructors
var (
	registry      = make(map[Type]VCSConstructor)
	registryMutex sync.RWMutex
)

// Register registers a VCS implementation constructor.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    vcs.Register(vcs.TypeGit, New)
//	}
func Register(t Type, constructor VCSConstructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}

	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}

	registry[t] = constructor
}

// getConstructor retrieves the constructor for a VCS type.
// Returns nil if the type is not registered.
func getConstructor(t Type) VCSConstructor {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registry[t]
}

// IsRegistered returns true if a constructor is registered for the given type.
func IsRegistered(t Type) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[t]
	return exists
}

// RegisteredTypes returns all registered VCS types.
func RegisteredTypes() []Type {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}

// Open creates a VCS instance of type t for repoRoot.
func Open(t Type, repoRoot string, runner *Runner) (VCS, error) {
	constructor := getConstructor(t)
	if constructor == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return constructor(repoRoot, runner)
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[Type]VCSConstructor)
}
