package engine

import (
	"fmt"
	"strings"

	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

// Prompt builders. These are deliberately plain: the engine's correctness
// never depends on prompt wording, only on tolerating whatever comes back.

func describeEntities(entities []*entity.Entity) string {
	if len(entities) == 0 {
		return "(nobody else present)"
	}
	var b strings.Builder
	for _, e := range entities {
		fmt.Fprintf(&b, "- %s (%s, id=%s)", e.DisplayName(), e.Type, e.ID)
		if e.State.EmotionalState != "" {
			fmt.Fprintf(&b, ", feeling %s", e.State.EmotionalState)
		}
		if e.State.CurrentAction != nil && e.State.CurrentAction.Description != "" {
			fmt.Fprintf(&b, ", currently %s", e.State.CurrentAction.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildInterpretPrompt(input string, location *entity.Entity, present []*entity.Entity) string {
	locName := "an unknown place"
	if location != nil {
		locName = location.DisplayName()
	}
	return fmt.Sprintf(`You interpret player commands for a text adventure. The player is at %s.
Entities present:
%s
Player input: %q

Respond with JSON only:
{
  "understanding": "CLEAR" | "AMBIGUOUS" | "GIBBERISH",
  "explanation": "only when not CLEAR",
  "normalized_input": "cleaned-up imperative form",
  "complexity": "TRIVIAL" | "NORMAL" | "COMPLEX",
  "referenced_entities": ["names or ids the input refers to"],
  "missing_entities": [{"name": "...", "entity_type": "npc|object|location"}],
  "travel_intent": true|false,
  "target_location": "destination name when travel_intent"
}
Mark simple movement and observation TRIVIAL. Mark missing_entities only for things the player plausibly expects to exist.`,
		locName, describeEntities(present), input)
}

func buildPlausibilityPrompt(input string, genre GenreRules, location *entity.Entity) string {
	locName := ""
	if location != nil {
		locName = location.DisplayName()
	}
	return fmt.Sprintf(`Genre: %s (%s). The player is at %s and attempts: %q.
Is this physically and generically possible to even attempt? Impossible means violating physics or the genre premise outright, not merely difficult.
Respond with JSON only: {"plausible": true|false, "reason": "shown to the player when false"}`,
		genre.ID, genre.Premise, locName, input)
}

func buildSpectrumPrompt(input string, player *entity.Entity, location *entity.Entity, present []*entity.Entity, genre GenreRules, recall []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Genre: %s. Tone: %s.\n", genre.ID, genre.Tone)
	if location != nil {
		fmt.Fprintf(&b, "Location: %s. %s\n", location.DisplayName(), location.Description)
	}
	fmt.Fprintf(&b, "Entities present:\n%s", describeEntities(present))
	if len(recall) > 0 {
		fmt.Fprintf(&b, "Relevant memories:\n- %s\n", strings.Join(recall, "\n- "))
	}
	fmt.Fprintf(&b, `Player action: %q

Produce a probability-weighted spectrum of outcomes. Respond with JSON only:
{
  "analysis": {"reasoning": "...", "difficulty": "..."},
  "possible_outcomes": [
    {
      "outcome_type": "SUCCESS|FAILURE|...",
      "narrative_summary": "...",
      "probability": 0.0-1.0,
      "immediate_effects": ["..."],
      "world_state_changes": {"entity_id_or_category": {...}},
      "duration_minutes": 0,
      "tags": ["VIOLENCE","THEFT"],
      "npc_triggers": [{"npc_id": "...", "trigger_reason": "..."}],
      "affected_entities": ["entity ids"]
    }
  ]
}
Probabilities should sum to roughly 1. Use only entity ids listed above in world_state_changes.`, input)
	return b.String()
}

func buildAgencyPrompt(npcs []*entity.Entity, input string, sel outcome.Outcome, triggers []outcome.NPCTrigger) string {
	var b strings.Builder
	b.WriteString("Resolve what each NPC does this turn. NPCs:\n")
	for _, n := range npcs {
		fmt.Fprintf(&b, "- %s (id=%s)", n.DisplayName(), n.ID)
		if goals := n.ActiveGoals(); len(goals) > 0 {
			fmt.Fprintf(&b, " goals: ")
			for _, g := range goals {
				fmt.Fprintf(&b, "[%s: %s] ", g.ID, g.Description)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Player action: %q\nOutcome: %s\n", input, sel.NarrativeSummary)
	if len(triggers) > 0 {
		b.WriteString("These NPCs MUST respond (not IDLE):\n")
		for _, tr := range triggers {
			fmt.Fprintf(&b, "- %s: %s\n", tr.NPCID, tr.TriggerReason)
		}
	}
	b.WriteString(`Respond with JSON only:
{"npc_actions": [{"npc_id": "...", "npc_name": "...", "action_type": "REACTIVE|PROACTIVE|IDLE", "description": "...", "dialogue": "", "target_id": "", "goal_progress": "goal id to mark completed, or empty"}]}`)
	return b.String()
}

type narrationRequest struct {
	Input        string
	Outcome      outcome.Outcome
	NPCActions   []outcome.NPCAction
	Location     *entity.Entity
	Present      []*entity.Entity
	Genre        GenreRules
	Recent       []string
	AmbientEvent string
}

func buildNarrationPrompt(req narrationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You narrate a text adventure in second person, present tense. Tone: %s.\n", req.Genre.Tone)
	if req.Location != nil {
		fmt.Fprintf(&b, "Location: %s. %s\n", req.Location.DisplayName(), req.Location.Description)
	}
	fmt.Fprintf(&b, "Cast present:\n%s", describeEntities(req.Present))
	if len(req.Recent) > 0 {
		fmt.Fprintf(&b, "Previous narration (do not repeat):\n%s\n", strings.Join(req.Recent, "\n"))
	}
	fmt.Fprintf(&b, "Player action: %q\nWhat happened: %s\n", req.Input, req.Outcome.NarrativeSummary)
	for _, a := range req.NPCActions {
		if a.ActionType == "IDLE" {
			continue
		}
		fmt.Fprintf(&b, "NPC action (must be depicted as ordered): %s %s", a.NPCName, a.Description)
		if a.Dialogue != "" {
			fmt.Fprintf(&b, " saying %q", a.Dialogue)
		}
		b.WriteString("\n")
	}
	if req.AmbientEvent != "" {
		fmt.Fprintf(&b, "Weave in, without overshadowing the action: %s\n", req.AmbientEvent)
	}
	b.WriteString("Write 2-4 paragraphs of prose. No headings, no lists, no meta commentary.")
	return b.String()
}

func buildContinuityPrompt(narrative string, present []*entity.Entity, recent []string) string {
	var b strings.Builder
	b.WriteString("You check narration for continuity errors. Flag ONLY CRITICAL or MAJOR problems: hallucinated objects, physically impossible actions, direct contradictions of the ordered NPC actions or prior narration. Added dialogue or gestures are MINOR and must pass.\n")
	fmt.Fprintf(&b, "Entities actually present:\n%s", describeEntities(present))
	if len(recent) > 0 {
		fmt.Fprintf(&b, "Prior narration:\n%s\n", strings.Join(recent, "\n"))
	}
	fmt.Fprintf(&b, "Narration to check:\n%s\n", narrative)
	b.WriteString(`Respond with JSON only: {"valid": true|false, "severity": "CRITICAL|MAJOR|MINOR", "issue": "...", "corrected_narration": "full corrected text, when fixable"}`)
	return b.String()
}

func buildPopulatePrompt(location *entity.Entity, genre GenreRules) string {
	return fmt.Sprintf(`Genre: %s. The player enters %s for the first time: %s
Invent 3-5 objects (and at most one NPC if it fits) for this place. Respond with JSON only:
{"entities": [{"name": "...", "entity_type": "object|npc", "description": "..."}]}`,
		genre.ID, location.DisplayName(), location.Description)
}

func buildLocationGenPrompt(name string, from *entity.Entity, genre GenreRules) string {
	fromDesc := ""
	if from != nil {
		fromDesc = fmt.Sprintf(" reachable from %s", from.DisplayName())
	}
	return fmt.Sprintf(`Genre: %s. Invent the location %q%s. Respond with JSON only:
{"name": "...", "description": "2-3 sentences", "entities": [{"name": "...", "entity_type": "object|npc", "description": "..."}]}`,
		genre.ID, name, fromDesc)
}

func buildExtractionPrompt(narrative string, knownNames []string, playerName string) string {
	return fmt.Sprintf(`Extract concrete new entities (people, creatures, notable objects) introduced by this narration. Already known (do not extract): %s. Never extract the player (%s).
Narration:
%s
Respond with JSON only: {"entities": [{"name": "...", "entity_type": "npc|creature|object", "description": "..."}]}. Empty list when nothing new.`,
		strings.Join(knownNames, ", "), playerName, narrative)
}

func buildSkeletonPrompt(name, entityType string, location *entity.Entity, genre GenreRules) string {
	locName := ""
	if location != nil {
		locName = location.DisplayName()
	}
	return fmt.Sprintf(`Genre: %s. The player referenced %q (%s) at %s, which plausibly exists but is not yet in the world. Invent it minimally. Respond with JSON only:
{"name": "...", "description": "1-2 sentences"}`,
		genre.ID, name, entityType, locName)
}

func buildOpportunityPrompt(location *entity.Entity, genre GenreRules, severity string) string {
	locName := ""
	if location != nil {
		locName = location.DisplayName()
	}
	return fmt.Sprintf(`Genre: %s. Invent one ambient event of %s severity happening near %s that the player could react to. Respond with JSON only:
{"type": "...", "description": "one sentence", "sensory_details": "...", "dramatic_weight": 0.0-1.0, "expiration_minutes": 30}`,
		genre.ID, severity, locName)
}
