// Package outcome holds the wire types shared between the oracle-facing
// subsystems: weighted outcome candidates, selected consequences, NPC
// agency actions, and the per-turn result envelope.
package outcome

import (
	"encoding/json"
	"strconv"
)

// Outcome types as the oracle reports them. The engine treats these as
// opaque labels except where noted.
const (
	TypeSuccess = "SUCCESS"
	TypeFailure = "FAILURE"
)

// Ripple tags recognized by the propagator. Unknown tags are ignored.
const (
	TagViolence = "VIOLENCE"
	TagTheft    = "THEFT"
)

// NPCTrigger is a must-respond instruction attached to an outcome: the
// named NPC has to act this turn, for the stated reason.
type NPCTrigger struct {
	NPCID         string `json:"npc_id"`
	TriggerReason string `json:"trigger_reason"`
}

// NPCAction is one NPC's resolved behavior for the turn.
type NPCAction struct {
	NPCID        string `json:"npc_id"`
	NPCName      string `json:"npc_name"`
	ActionType   string `json:"action_type"` // REACTIVE | PROACTIVE | IDLE
	Description  string `json:"description"`
	Dialogue     string `json:"dialogue,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	GoalProgress string `json:"goal_progress,omitempty"`
}

// Outcome is a candidate (or selected) consequence of a player action.
// WorldStateChanges keys are entity ids or category names; the sanitizer
// owns their hygiene.
type Outcome struct {
	ID                string         `json:"id,omitempty"`
	OutcomeType       string         `json:"outcome_type"`
	NarrativeSummary  string         `json:"narrative_summary,omitempty"`
	Probability       *float64       `json:"probability,omitempty"`
	ImmediateEffects  []string       `json:"immediate_effects,omitempty"`
	WorldStateChanges map[string]any `json:"world_state_changes,omitempty"`
	DurationMinutes   int            `json:"duration_minutes,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	NPCTriggers       []NPCTrigger   `json:"npc_triggers,omitempty"`
	NPCActions        []NPCAction    `json:"npc_actions,omitempty"`
	AffectedEntities  []string       `json:"affected_entities,omitempty"`
	AudioCue          string         `json:"audio_cue,omitempty"`
}

// Weight returns the candidate's selection weight, or false if the
// candidate is malformed (missing type or non-numeric probability) and must
// be filtered before weighting.
func (o *Outcome) Weight() (float64, bool) {
	if o.OutcomeType == "" || o.Probability == nil || *o.Probability < 0 {
		return 0, false
	}
	return *o.Probability, true
}

// UnmarshalJSON tolerates the oracle's loose probability encodings: the
// field may be named probability or probability_weight, and may arrive as a
// number or a numeric string. Anything else leaves Probability nil so the
// resolver filters the candidate.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	type alias Outcome
	aux := struct {
		*alias
		Probability       any `json:"probability"`
		ProbabilityWeight any `json:"probability_weight"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.Probability = coerceNumber(aux.Probability)
	if o.Probability == nil {
		o.Probability = coerceNumber(aux.ProbabilityWeight)
	}
	return nil
}

func coerceNumber(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Analysis is the oracle's reasoning block accompanying a spectrum.
type Analysis struct {
	Reasoning  string `json:"reasoning,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Spectrum is the probability-weighted candidate set returned for an
// uncertain action.
type Spectrum struct {
	Analysis         Analysis  `json:"analysis"`
	PossibleOutcomes []Outcome `json:"possible_outcomes"`
}

// TurnResult is the turn I/O contract: what the caller of the engine gets
// back for one player input.
type TurnResult struct {
	Narrative       string         `json:"narrative"`
	Consequences    []Outcome      `json:"consequences"`
	WorldStateDelta map[string]any `json:"world_state_delta"`
	TokensUsed      int            `json:"tokens_used"`
}
