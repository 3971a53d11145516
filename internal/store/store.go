// Package store persists the world: entities as structured records, the
// relationship ledger, the append-only event log, and per-turn snapshot
// files used by undo.
package store

import (
	"context"
	"errors"
	"time"

	"fableturn/pkg/entity"
)

// ErrNotFound is returned by operations that require an existing record.
var ErrNotFound = errors.New("store: not found")

// EventLogEntry is an immutable record of something observed. One entry is
// emitted per observer present when narration occurs.
type EventLogEntry struct {
	EventID    string         `json:"event_id"`
	TurnNumber int            `json:"turn_number"`
	LocationID string         `json:"location_id"`
	ObserverID string         `json:"observer_id"`
	ActionType string         `json:"action_type"`
	EventData  map[string]any `json:"event_data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RelationshipEdge is a directed edge in the ledger. Reading "how does X
// feel about Y" uses (To=X, From=Y); that convention is load-bearing and
// must not be inverted.
type RelationshipEdge struct {
	FromEntityID string   `json:"from_entity_id"`
	ToEntityID   string   `json:"to_entity_id"`
	Type         string   `json:"type,omitempty"`
	TrustLevel   string   `json:"trust_level,omitempty"`
	Status       string   `json:"status,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	History      []string `json:"history,omitempty"`
}

// Store is the world persistence interface consumed by the engine. All
// reads and writes for a session go through a single connection; the
// engine is the sole mutator.
type Store interface {
	// Entity operations
	CreateEntity(ctx context.Context, e *entity.Entity) error
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)
	UpdateEntity(ctx context.Context, id string, e *entity.Entity) error
	Exists(ctx context.Context, id string) (bool, error)
	EntitiesInLocation(ctx context.Context, locationID string) ([]*entity.Entity, error)
	EntitiesByType(ctx context.Context, t entity.Type) ([]*entity.Entity, error)
	FindByName(ctx context.Context, name string) ([]*entity.Entity, error)

	// Global key-value state (genre rules, session metadata)
	SetGlobal(ctx context.Context, key, value string) error
	GetGlobal(ctx context.Context, key string) (string, error)

	// Event log
	AppendEvent(ctx context.Context, e *EventLogEntry) error
	RecentNarratives(ctx context.Context, limit int) ([]string, error)
	RecentObservations(ctx context.Context, limit int) ([]EventLogEntry, error)
	EventsByObserver(ctx context.Context, observerID string, throughTurn int) ([]EventLogEntry, error)
	EventsByLocation(ctx context.Context, locationID string) ([]EventLogEntry, error)

	// Relationship ledger
	Relationship(ctx context.Context, fromID, toID string) (*RelationshipEdge, error)
	UpsertRelationship(ctx context.Context, edge *RelationshipEdge) error

	// Snapshot writes a full copy of the store for (gameID, turn),
	// overwriting any existing snapshot for that key, and returns its path.
	Snapshot(gameID string, turn int) (string, error)

	// ClearWorld removes all entities, events and relationships.
	ClearWorld(ctx context.Context) error

	// Path returns the live database file path.
	Path() string

	Close() error
}
