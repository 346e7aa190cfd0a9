// Package catalog holds the static description of every entity type the pipeline moves: how to
// search and fetch it remotely, where its raw rows land and how they project into staging.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

//go:embed entities.yaml
var defaultEntities []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// UnknownEntityError is a configuration error raised before any remote call is made.
type UnknownEntityError struct {
	Name string
}

func (e UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Name)
}

// IsUnknownEntity reports whether err was caused by an entity name missing from the catalog.
func IsUnknownEntity(err error) bool {
	var u UnknownEntityError
	return errors.As(err, &u)
}

// Catalog is an immutable, ordered set of entity descriptors.
type Catalog struct {
	entities []Entity
	byName   map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := Parse(defaultEntities)
		if err != nil {
			panic(errors.Wrap(err, "embedded entity catalog is invalid"))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load reads a catalog from a YAML file; it replaces the embedded one.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading entity catalog %v", path)
	}
	return Parse(b)
}

// Parse builds a catalog from YAML, validating every entry.
func Parse(b []byte) (*Catalog, error) {
	var entities []Entity
	if err := yaml.Unmarshal(b, &entities); err != nil {
		return nil, errors.Wrap(err, "error parsing entity catalog")
	}
	c := &Catalog{entities: make([]Entity, 0, len(entities)), byName: make(map[string]int, len(entities))}
	for _, e := range entities {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %v in catalog", e.Name)
		}
		if e.DateFields == nil {
			e.DateFields = []string{}
		}
		c.byName[e.Name] = len(c.entities)
		c.entities = append(c.entities, e)
	}
	return c, nil
}

// Get returns the descriptor for name or an UnknownEntityError.
func (c *Catalog) Get(name string) (Entity, error) {
	idx, ok := c.byName[name]
	if !ok {
		return Entity{}, UnknownEntityError{Name: name}
	}
	return c.entities[idx], nil
}

// Names lists entity names in catalog order.
func (c *Catalog) Names() []string {
	retval := make([]string, len(c.entities))
	for idx, e := range c.entities {
		retval[idx] = e.Name
	}
	return retval
}

// Entities returns a copy of all descriptors in catalog order.
func (c *Catalog) Entities() []Entity {
	retval := make([]Entity, len(c.entities))
	copy(retval, c.entities)
	return retval
}

// Global returns the entities extracted from a single tenant.
func (c *Catalog) Global() []Entity {
	return c.filter(false)
}

// TenantScoped returns the entities extracted from every tenant.
func (c *Catalog) TenantScoped() []Entity {
	return c.filter(true)
}

// Select resolves names to descriptors, keeping the caller's order.
// No names means every entity. The first unknown name fails the whole selection.
func (c *Catalog) Select(names []string) ([]Entity, error) {
	if len(names) == 0 {
		return c.Entities(), nil
	}
	retval := make([]Entity, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		e, err := c.Get(n)
		if err != nil {
			return nil, err
		}
		seen[n] = true
		retval = append(retval, e)
	}
	return retval, nil
}

func (c *Catalog) filter(tenantScoped bool) []Entity {
	retval := make([]Entity, 0)
	for _, e := range c.entities {
		if e.TenantScoped == tenantScoped {
			retval = append(retval, e)
		}
	}
	return retval
}
