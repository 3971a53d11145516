package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fableturn/internal/store"
	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

// Ripple derives relationship and goal mutations from tagged outcome side
// effects. Everything here is best-effort: store errors are logged and the
// turn proceeds.
type Ripple struct {
	store  store.Store
	logger *slog.Logger
}

func NewRipple(s store.Store, logger *slog.Logger) *Ripple {
	return &Ripple{store: s, logger: logger}
}

// Apply processes the selected outcome's tags against the actor, an
// optional target, and any witnesses. Unknown tags are ignored.
func (r *Ripple) Apply(ctx context.Context, sel outcome.Outcome, actorID, targetID string, witnesses []string, turn int) {
	for _, tag := range sel.Tags {
		switch tag {
		case outcome.TagViolence:
			r.applyViolence(ctx, sel, actorID, targetID, witnesses, turn)
		case outcome.TagTheft:
			r.applyTheft(ctx, actorID, targetID, turn)
		}
	}
}

func (r *Ripple) applyViolence(ctx context.Context, sel outcome.Outcome, actorID, targetID string, witnesses []string, turn int) {
	if targetID != "" {
		target, err := r.store.GetEntity(ctx, targetID)
		if err != nil {
			r.logger.Warn("Violence ripple target load failed", "target_id", targetID, "error", err)
		} else if target != nil && (target.Type == entity.TypeNPC || target.Type == entity.TypeCreature) {
			r.mutateEdge(ctx, actorID, targetID, "broken", "fearful",
				[]string{"witnessed_violence", "victim_of_violence"},
				fmt.Sprintf("[Turn %d] was attacked: %s", turn, sel.NarrativeSummary))
			r.attachRevengeGoal(ctx, target, actorID, turn)
		}
	}

	for _, witnessID := range witnesses {
		if witnessID == targetID || witnessID == actorID {
			continue
		}
		r.mutateEdge(ctx, actorID, witnessID, "distrustful", "",
			[]string{"witnessed_violence"},
			fmt.Sprintf("[Turn %d] witnessed violence: %s", turn, sel.NarrativeSummary))
	}
}

func (r *Ripple) applyTheft(ctx context.Context, actorID, targetID string, turn int) {
	if targetID == "" {
		return
	}
	r.mutateEdge(ctx, actorID, targetID, "suspicious", "",
		[]string{"victim_of_theft"},
		fmt.Sprintf("[Turn %d] was stolen from", turn))
}

// mutateEdge upserts the edge describing how the affected entity feels
// about the actor. Tags are unioned and history is appended; nothing is
// overwritten wholesale.
func (r *Ripple) mutateEdge(ctx context.Context, actorID, affectedID, trust, status string, tags []string, historyLine string) {
	edge, err := r.store.Relationship(ctx, actorID, affectedID)
	if err != nil {
		r.logger.Warn("Relationship load failed during ripple", "actor_id", actorID, "affected_id", affectedID, "error", err)
		return
	}
	if edge == nil {
		edge = &store.RelationshipEdge{FromEntityID: actorID, ToEntityID: affectedID}
	}
	if trust != "" {
		edge.TrustLevel = trust
	}
	if status != "" {
		edge.Status = status
	}
	edge.Tags = unionTags(edge.Tags, tags)
	edge.History = append(edge.History, historyLine)

	if err := r.store.UpsertRelationship(ctx, edge); err != nil {
		r.logger.Warn("Relationship upsert failed during ripple", "actor_id", actorID, "affected_id", affectedID, "error", err)
	}
}

// attachRevengeGoal adds a REVENGE goal against the actor unless an active
// one for that target already exists.
func (r *Ripple) attachRevengeGoal(ctx context.Context, target *entity.Entity, actorID string, turn int) {
	if target.HasActiveGoal(entity.GoalRevenge, actorID) {
		return
	}
	target.Goals = append(target.Goals, entity.Goal{
		ID:          uuid.NewString(),
		Type:        entity.GoalRevenge,
		Description: fmt.Sprintf("Get revenge on %s", actorID),
		Target:      actorID,
		Priority:    "high",
		Status:      entity.GoalActive,
		CreatedTurn: turn,
	})
	if err := r.store.UpdateEntity(ctx, target.ID, target); err != nil {
		r.logger.Warn("Revenge goal persist failed", "npc_id", target.ID, "error", err)
	}
}

func unionTags(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range added {
		if !seen[t] {
			existing = append(existing, t)
			seen[t] = true
		}
	}
	return existing
}
