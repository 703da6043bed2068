// pkg/registry/registry.go

// Package registry loads the source catalogue: which listing sources exist,
// whether they are enabled and in what priority order the orchestrator
// should treat them. The catalogue is plain JSON, schema-checked on load so
// a malformed deployment fails at startup rather than mid-run.
package registry

import (
	"fmt"
	"os"
	"sort"
)

// Kind tells the wiring layer which adapter family serves an entry.
const (
	KindHTTP          = "http"
	KindElasticsearch = "elasticsearch"
)

// Entry describes one listing source in the catalogue.
type Entry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Kind        string `json:"kind"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
}

// Registry is the parsed, validated source catalogue.
type Registry struct {
	entries []Entry
	byID    map[string]Entry
}

// Load reads and validates the catalogue file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	return Parse(data)
}

// Get returns the entry with the given id.
func (r *Registry) Get(id string) (Entry, bool) {
	entry, ok := r.byID[id]
	return entry, ok
}

// Enabled returns the enabled entries ordered by ascending priority, then id
// for stability.
func (r *Registry) Enabled() []Entry {
	enabled := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled {
			enabled = append(enabled, e)
		}
	}
	sort.Slice(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].ID < enabled[j].ID
	})
	return enabled
}

// All returns every entry, enabled or not, in file order.
func (r *Registry) All() []Entry {
	return r.entries
}
