// Package configsource loads network, monitor and trigger records from
// either a flat-file directory or a Postgres backend, normalizing both into
// the shapes the external monitor consumes.
package configsource

import (
	"context"
	"fmt"

	"github.com/igwedaniel/blockwatcher/internal/types"
)

// Source loads network configurations, optionally narrowed to a set of
// slugs. An empty selection loads every active network.
type Source interface {
	LoadNetworks(ctx context.Context, slugs []string) (map[string]types.NetworkConfig, error)
}

// NotFoundError reports that no networks matched the requested selection,
// or that no networks exist at all.
type NotFoundError struct {
	Requested []string
}

func (e *NotFoundError) Error() string {
	if len(e.Requested) > 0 {
		return fmt.Sprintf("no matching networks found for: %v", e.Requested)
	}
	return "no network configurations found"
}

// TriggerSet holds resolved trigger records behind two explicit indices, so
// a monitor reference resolves whether it names the trigger's stable id or
// its human slug. Ids and slugs never collide in one shared map.
type TriggerSet struct {
	records []*types.TriggerConfig
	byID    map[string]*types.TriggerConfig
	bySlug  map[string]*types.TriggerConfig
}

// NewTriggerSet creates an empty TriggerSet
func NewTriggerSet() *TriggerSet {
	return &TriggerSet{
		byID:   make(map[string]*types.TriggerConfig),
		bySlug: make(map[string]*types.TriggerConfig),
	}
}

// Add indexes a trigger by both id and slug
func (s *TriggerSet) Add(t *types.TriggerConfig) {
	s.records = append(s.records, t)
	if t.ID != "" {
		s.byID[t.ID] = t
	}
	if t.Slug != "" {
		s.bySlug[t.Slug] = t
	}
}

// Resolve looks a reference up by id first, then by slug
func (s *TriggerSet) Resolve(ref types.TriggerRef) (*types.TriggerConfig, bool) {
	if ref.ID != "" {
		t, ok := s.byID[ref.ID]
		return t, ok
	}
	t, ok := s.bySlug[ref.Slug]
	return t, ok
}

// Contains reports whether a raw id-or-slug key resolves
func (s *TriggerSet) Contains(key string) bool {
	if _, ok := s.byID[key]; ok {
		return true
	}
	_, ok := s.bySlug[key]
	return ok
}

// All returns the stored records in insertion order
func (s *TriggerSet) All() []*types.TriggerConfig {
	return s.records
}

// Len returns the number of stored records
func (s *TriggerSet) Len() int {
	return len(s.records)
}
