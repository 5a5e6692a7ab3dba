package values

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// CatalogEntry describes one known value dimension
type CatalogEntry struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description,omitempty"`
}

// Catalog is the externally supplied set of known value dimensions.
// Profiles and preference overrides are validated against it; dimensions are
// never inferred at runtime.
type Catalog struct {
	entries map[string]CatalogEntry
}

type catalogFile struct {
	Dimensions []CatalogEntry `toml:"dimension"`
}

// LoadCatalog reads the dimension catalog from a TOML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file '%s': %w", path, err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file '%s': %w", path, err)
	}

	return NewCatalog(file.Dimensions)
}

// NewCatalog builds a catalog from entries, rejecting duplicates
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]CatalogEntry, len(entries))}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry missing id (name: %q)", e.Name)
		}
		if _, ok := c.entries[e.ID]; ok {
			return nil, fmt.Errorf("duplicate catalog dimension: %s", e.ID)
		}
		c.entries[e.ID] = e
	}
	return c, nil
}

// Has reports whether a dimension id is in the catalog
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[id]
	return ok
}

// Entry returns the catalog entry for a dimension id
func (c *Catalog) Entry(id string) (CatalogEntry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Entries returns all catalog entries sorted by id
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of known dimensions
func (c *Catalog) Len() int {
	return len(c.entries)
}
