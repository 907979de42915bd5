// Package kvstore provides the string-keyed persistence port used for
// credentials, cached summaries and translation tables.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownDriver is returned when no backend is registered under a driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// Store is a key-value store with get/set/delete by string key.
type Store interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string // "sqlite", "redis" or "memory"

	// SQLite
	Path string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// Factory opens a Store from configuration.
type Factory func(cfg Config) (Store, error)

// DriverInfo describes a registered backend.
type DriverInfo struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry manages the available store backends.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]*DriverInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]*DriverInfo)}
}

// Register adds a backend to the registry.
func (r *Registry) Register(name string, info *DriverInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[name]; exists {
		return fmt.Errorf("store driver %s is already registered", name)
	}

	r.drivers[name] = info
	return nil
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a store using the backend named by cfg.Driver.
func (r *Registry) Open(cfg Config) (Store, error) {
	r.mu.RLock()
	info, exists := r.drivers[cfg.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	return info.Factory(cfg)
}

// DefaultRegistry holds the built-in backends.
var DefaultRegistry = NewRegistry()

func register(name string, info *DriverInfo) {
	if err := DefaultRegistry.Register(name, info); err != nil {
		slog.Warn("Failed to register store driver", "driver", name, "error", err)
	}
}

// Open is a convenience wrapper around DefaultRegistry.Open.
func Open(cfg Config) (Store, error) {
	return DefaultRegistry.Open(cfg)
}
