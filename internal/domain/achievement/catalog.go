package achievement

import (
	"fmt"
	"iter"
	"sync"

	"github.com/artloop/progression-engine/internal/domain/shared"
)

// Catalog is the registry of achievement definitions. It is filled at engine
// construction and sealed afterwards; a sealed catalog is safe for concurrent
// reads without further coordination.
type Catalog struct {
	mu       sync.RWMutex
	sealed   bool
	byID     map[string]int
	ordered  []Definition
	category map[Category][]int
}

// NewCatalog creates a catalog holding the given definitions in order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		byID:     make(map[string]int),
		category: make(map[Category][]int),
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on error. For static tables only.
func MustCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register adds a definition. Fails if the id is already present, the
// definition is invalid, or the catalog has been sealed.
func (c *Catalog) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return shared.ErrCatalogSealed
	}
	if _, exists := c.byID[def.ID]; exists {
		return shared.WrapError("achievement", "Register", shared.ErrValidation,
			fmt.Sprintf("duplicate id %q", def.ID), shared.ErrDuplicateDefinition)
	}

	idx := len(c.ordered)
	c.ordered = append(c.ordered, def)
	c.byID[def.ID] = idx
	c.category[def.Category] = append(c.category[def.Category], idx)
	return nil
}

// Seal makes the catalog read-only.
func (c *Catalog) Seal() *Catalog {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
	return c
}

// Sealed reports whether Register is still allowed.
func (c *Catalog) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.ordered[idx], true
}

// ListByCategory yields the definitions of a category in registration order.
// The sequence is lazy: each step reads the catalog under the read lock.
func (c *Catalog) ListByCategory(cat Category) iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for i := 0; ; i++ {
			def, ok := c.categoryAt(cat, i)
			if !ok || !yield(def) {
				return
			}
		}
	}
}

func (c *Catalog) categoryAt(cat Category, i int) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	indexes := c.category[cat]
	if i >= len(indexes) {
		return Definition{}, false
	}
	return c.ordered[indexes[i]], true
}

// All yields every definition in registration order.
func (c *Catalog) All() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for i := 0; ; i++ {
			c.mu.RLock()
			if i >= len(c.ordered) {
				c.mu.RUnlock()
				return
			}
			def := c.ordered[i]
			c.mu.RUnlock()
			if !yield(def) {
				return
			}
		}
	}
}

// Len returns the number of registered definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ordered)
}

// CountByCategory returns the number of definitions in a category.
func (c *Catalog) CountByCategory(cat Category) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.category[cat])
}
