package catalog

import (
	"context"
	"errors"
	"fmt"
)

// MutationFull tells the catalog that the mutation carries every entity the
// location owns
const MutationFull = "full"

// LocationKey returns the key the catalog scopes a provider account's
// entities by
func LocationKey(provider, accountID string) string {
	return provider + ":" + accountID
}

// Mutation is a full replace of the entities owned by LocationKey.
// Entities registered under the same key but missing from Entities are
// removed by the catalog.
type Mutation struct {
	Type        string   `json:"type"`
	LocationKey string   `json:"locationKey"`
	Entities    []Entity `json:"entities"`
}

// NewFullMutation builds a full mutation. A nil entity slice is sent as an
// empty list so that the catalog removes everything under the key.
func NewFullMutation(locationKey string, entities []Entity) Mutation {
	if entities == nil {
		entities = []Entity{}
	}
	return Mutation{
		Type:        MutationFull,
		LocationKey: locationKey,
		Entities:    entities,
	}
}

// Validate checks the mutation envelope and that entity names are unique
func (m Mutation) Validate() error {
	if m.Type != MutationFull {
		return fmt.Errorf("unsupported mutation type %q", m.Type)
	}
	if m.LocationKey == "" {
		return errors.New("mutation has no location key")
	}

	seen := make(map[string]struct{}, len(m.Entities))
	for i := range m.Entities {
		name := m.Entities[i].Name()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("entity name %q appears more than once", name)
		}
		seen[name] = struct{}{}
	}

	return nil
}

// ApplyStats describes what a mutation changed in the catalog
type ApplyStats struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	// Rejected counts entities the catalog refused to store
	Rejected int `json:"rejected"`
}

// NoOp reports whether the mutation left the catalog untouched
func (s ApplyStats) NoOp() bool {
	return s.Added == 0 && s.Updated == 0 && s.Removed == 0
}

// Applier delivers a mutation to a catalog
type Applier interface {
	Apply(ctx context.Context, m Mutation) (ApplyStats, error)
}

// Reply is the response body of the HTTP and NATS catalog endpoints
type Reply struct {
	OK    bool       `json:"ok"`
	Error string     `json:"error,omitempty"`
	Stats ApplyStats `json:"stats"`
}
