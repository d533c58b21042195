// Package targets holds the catalog of entities a user can exempt from
// blurring and the ordered selection made from it.
package targets

import (
	"errors"
	"fmt"
	"strings"
)

// Target is an entity the service must leave unblurred when selected.
type Target struct {
	ID   string `yaml:"id" mapstructure:"id"`
	Name string `yaml:"name" mapstructure:"name"`
}

// Defaults returns the catalog shipped with the service's model.
func Defaults() []Target {
	return []Target{
		{ID: "brand1", Name: "cristalline"},
		{ID: "brand2", Name: "eau_vive"},
	}
}

// ErrDuplicateID is returned when two catalog entries share an id.
var ErrDuplicateID = errors.New("duplicate target id")

// Catalog is an immutable set of targets keyed by id.
type Catalog struct {
	list []Target
	byID map[string]Target
}

// NewCatalog validates ts and builds a catalog preserving their order.
func NewCatalog(ts []Target) (*Catalog, error) {
	c := &Catalog{
		list: make([]Target, 0, len(ts)),
		byID: make(map[string]Target, len(ts)),
	}
	for i, t := range ts {
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("target %d: id and name are required", i)
		}
		if _, exists := c.byID[t.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		c.byID[t.ID] = t
		c.list = append(c.list, t)
	}
	return c, nil
}

// Lookup returns the target with the given id.
func (c *Catalog) Lookup(id string) (Target, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// All returns a copy of the catalog in declaration order.
func (c *Catalog) All() []Target {
	out := make([]Target, len(c.list))
	copy(out, c.list)
	return out
}

// Search returns targets whose name contains term, case-insensitively.
func (c *Catalog) Search(term string) []Target {
	term = strings.ToLower(term)
	var out []Target
	for _, t := range c.list {
		if strings.Contains(strings.ToLower(t.Name), term) {
			out = append(out, t)
		}
	}
	return out
}

// Selection is an ordered set of target ids. The zero value is empty and
// ready to use. It is not safe for concurrent use.
type Selection struct {
	ids []string
}

// NewSelection creates a selection from ids, dropping duplicates.
func NewSelection(ids ...string) *Selection {
	s := &Selection{}
	s.Set(ids)
	return s
}

// Toggle adds id if absent and removes it otherwise. It reports whether id
// is selected afterwards.
func (s *Selection) Toggle(id string) bool {
	for i, cur := range s.ids {
		if cur == id {
			s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
			return false
		}
	}
	s.ids = append(s.ids, id)
	return true
}

// Set replaces the selection with ids, keeping first occurrences.
func (s *Selection) Set(ids []string) {
	s.ids = nil
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s.ids = append(s.ids, id)
	}
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	for _, cur := range s.ids {
		if cur == id {
			return true
		}
	}
	return false
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Names resolves the selection against c and returns lowercase names in
// selection order. Ids missing from the catalog are skipped.
func (s *Selection) Names(c *Catalog) []string {
	names := make([]string, 0, len(s.ids))
	for _, id := range s.ids {
		if t, ok := c.Lookup(id); ok {
			names = append(names, strings.ToLower(t.Name))
		}
	}
	return names
}
