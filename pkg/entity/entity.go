package entity

import (
	"encoding/json"
	"strings"
)

// Type discriminates the entity union. Sentient types (player, npc,
// creature) carry goals, memories and relationships; objects and locations
// carry placement and adjacency.
type Type string

const (
	TypePlayer   Type = "player"
	TypeNPC      Type = "npc"
	TypeCreature Type = "creature"
	TypeObject   Type = "object"
	TypeLocation Type = "location"
)

// GeneratedDepth drives lazy enrichment of oracle-created entities.
type GeneratedDepth string

const (
	DepthMinimal  GeneratedDepth = "minimal"
	DepthBasic    GeneratedDepth = "basic"
	DepthDetailed GeneratedDepth = "detailed"
	DepthFull     GeneratedDepth = "full"
)

// Goal statuses. Only active goals participate in time simulation.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalFailed    = "failed"
	GoalAbandoned = "abandoned"
)

// GoalRevenge is the goal type attached by violence ripple effects.
const GoalRevenge = "REVENGE"

// Goal is a scheduled NPC objective. DurationEst is minutes; zero means the
// simulator default. StartedAt of zero means "started at the current clock".
type Goal struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Target      string `json:"target,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
	CreatedTurn int    `json:"created_turn,omitempty"`
	StartedAt   int    `json:"started_at,omitempty"`
	DurationEst int    `json:"duration_est,omitempty"`
	CompletedAt int    `json:"completed_at,omitempty"`
}

// CurrentAction is what an NPC is visibly doing, set by agency resolution.
type CurrentAction struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description"`
	TargetID    string `json:"target_id,omitempty"`
}

// Relationship is the inline edge cache on sentient entities. The
// relationship ledger in the store is canonical; these copies exist for
// prompt building only.
type Relationship struct {
	EntityID   string   `json:"entity_id"`
	Type       string   `json:"type,omitempty"`
	Trust      string   `json:"trust,omitempty"`
	Impression string   `json:"impression,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	History    []string `json:"history,omitempty"`
}

// Opportunity is an ambient hook the player may react to. Expiry is by
// world-clock minutes or turn count, whichever the record carries.
type Opportunity struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Description       string  `json:"description"`
	DramaticWeight    float64 `json:"dramatic_weight,omitempty"`
	SensoryDetails    string  `json:"sensory_details,omitempty"`
	Severity          string  `json:"severity,omitempty"`
	ExpirationMinutes int     `json:"expiration_minutes,omitempty"`
	CreatedAt         int     `json:"created_at"`
	CreatedTurn       int     `json:"created_turn"`
	ExpiresAt         int     `json:"expires_at,omitempty"`
	ExpiresTurn       int     `json:"expires_turn,omitempty"`
	Status            string  `json:"status"`
}

// State is the mutable runtime condition of an entity.
type State struct {
	CurrentLocationID string         `json:"current_location_id,omitempty"`
	HealthStatus      string         `json:"health_status,omitempty"`
	EmotionalState    string         `json:"emotional_state,omitempty"`
	CurrentAction     *CurrentAction `json:"current_action,omitempty"`
	Inventory         []string       `json:"inventory,omitempty"`
	Opportunities     []Opportunity  `json:"opportunities,omitempty"`
	Searchable        bool           `json:"searchable,omitempty"`
	Keywords          []string       `json:"keywords,omitempty"`
}

// Appearance is how a sentient entity presents.
type Appearance struct {
	Visuals    string `json:"visuals,omitempty"`
	Impression string `json:"impression,omitempty"`
}

// Entity is the tagged union over world objects. Oracle output is sloppy
// about shapes (names as strings or records, relationships as arrays or
// stringified JSON); the custom unmarshalers below resolve that once, at
// the store boundary, so the rest of the engine never re-sniffs.
type Entity struct {
	ID   string `json:"entity_id"`
	Type Type   `json:"entity_type"`
	Name Name   `json:"name"`

	Appearance  *Appearance `json:"appearance,omitempty"`
	Description string      `json:"description,omitempty"`
	State       State       `json:"state"`

	Relationships RelationshipList `json:"relationships,omitempty"`
	Goals         []Goal           `json:"goals,omitempty"`
	Memories      []string         `json:"memories,omitempty"`

	GeneratedDepth GeneratedDepth `json:"generated_depth,omitempty"`

	// Object fields.
	IsContainer bool `json:"is_container,omitempty"`
	IsLocked    bool `json:"is_locked,omitempty"`

	// Location fields. Connections are undirected by convention; both ends
	// are maintained.
	ParentLocationID     string   `json:"parent_location_id,omitempty"`
	ConnectedLocationIDs []string `json:"connected_location_ids,omitempty"`
}

// Name tolerates both the sentient record shape and the plain-string shape
// used for objects and locations.
type Name struct {
	First         string `json:"first,omitempty"`
	Display       string `json:"display"`
	KnownToPlayer bool   `json:"known_to_player,omitempty"`
}

func (n *Name) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Name{Display: s}
		return nil
	}
	type alias Name
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*n = Name(a)
	return nil
}

func (n Name) MarshalJSON() ([]byte, error) {
	if n.First == "" && !n.KnownToPlayer {
		return json.Marshal(n.Display)
	}
	type alias Name
	return json.Marshal(alias(n))
}

// RelationshipList tolerates the stringified-JSON shape some oracle
// responses use for relationship arrays.
type RelationshipList []Relationship

func (rl *RelationshipList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			*rl = nil
			return nil
		}
		data = []byte(s)
	}
	var rels []Relationship
	if err := json.Unmarshal(data, &rels); err != nil {
		// Unusable shape is dropped rather than failing the whole entity;
		// the ledger is canonical anyway.
		*rl = nil
		return nil
	}
	*rl = rels
	return nil
}

// IsSentient reports whether the entity participates in goals, agency and
// memory.
func (e *Entity) IsSentient() bool {
	return e.Type == TypePlayer || e.Type == TypeNPC || e.Type == TypeCreature
}

// DisplayName returns the best human-readable name for the entity.
func (e *Entity) DisplayName() string {
	if e.Name.Display != "" {
		return e.Name.Display
	}
	if e.Name.First != "" {
		return e.Name.First
	}
	return e.ID
}

// ActiveGoals returns the goals currently scheduled against the clock.
func (e *Entity) ActiveGoals() []Goal {
	var active []Goal
	for _, g := range e.Goals {
		if g.Status == GoalActive {
			active = append(active, g)
		}
	}
	return active
}

// HasActiveGoal reports whether an active goal of the given type against
// the given target exists. Used for duplicate-goal suppression.
func (e *Entity) HasActiveGoal(goalType, target string) bool {
	for _, g := range e.Goals {
		if g.Status == GoalActive && g.Type == goalType && g.Target == target {
			return true
		}
	}
	return false
}

// SetGoalStatus updates the status of the goal with the given id in place.
func (e *Entity) SetGoalStatus(goalID, status string, completedAt int) bool {
	for i := range e.Goals {
		if e.Goals[i].ID == goalID {
			e.Goals[i].Status = status
			if status == GoalCompleted {
				e.Goals[i].CompletedAt = completedAt
			}
			return true
		}
	}
	return false
}

// MatchesName reports a case-insensitive exact match on either name form.
func (e *Entity) MatchesName(name string) bool {
	lower := strings.ToLower(name)
	return strings.ToLower(e.Name.Display) == lower ||
		(e.Name.First != "" && strings.ToLower(e.Name.First) == lower)
}
