package capability

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Catalog maps capability names to implementations. Registration happens
// during startup; lookups are safe for concurrent use.
type Catalog struct {
	entries map[string]Capability
	mu      sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Capability)}
}

// Register adds a capability under name.
// Returns ErrAlreadyExists if the name is taken; use Replace to swap one.
func (c *Catalog) Register(name string, capability Capability) error {
	if name == "" {
		return ErrEmptyName
	}
	if capability == nil {
		return fmt.Errorf("%w: %s", ErrNilCapability, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	c.entries[name] = capability
	return nil
}

// RegisterFunc registers a plain function.
func (c *Catalog) RegisterFunc(name string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilCapability, name)
	}
	return c.Register(name, fn)
}

// Replace swaps the implementation of an existing capability.
// Returns ErrNotFound if name is not registered.
func (c *Catalog) Replace(name string, capability Capability) error {
	if name == "" {
		return ErrEmptyName
	}
	if capability == nil {
		return fmt.Errorf("%w: %s", ErrNilCapability, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	c.entries[name] = capability
	return nil
}

// Lookup returns the capability registered under name.
func (c *Catalog) Lookup(name string) (Capability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	capability, ok := c.entries[name]
	return capability, ok
}

// Names returns every registered name in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.entries))
}
