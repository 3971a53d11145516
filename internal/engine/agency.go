package engine

import (
	"context"
	"log/slog"

	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

// Agency resolves all NPC behavior for a turn in one batch oracle call and
// applies the results (current actions, goal completions) to the store.
type Agency struct {
	oracle oracle.Oracle
	store  store.Store
	logger *slog.Logger
}

func NewAgency(o oracle.Oracle, s store.Store, logger *slog.Logger) *Agency {
	return &Agency{oracle: o, store: s, logger: logger}
}

type agencyResponse struct {
	NPCActions []outcome.NPCAction `json:"npc_actions"`
}

// Resolve determines what each present NPC does. Triggered NPCs are forced
// to respond: an IDLE answer for a triggered NPC is overridden to REACTIVE.
// Best-effort: oracle failure yields no actions and the turn proceeds.
func (a *Agency) Resolve(ctx context.Context, npcs []*entity.Entity, input string, sel outcome.Outcome, clock int) []outcome.NPCAction {
	if len(npcs) == 0 {
		return nil
	}

	resp, err := a.oracle.Generate(ctx, buildAgencyPrompt(npcs, input, sel, sel.NPCTriggers), oracle.RoleLogic, oracle.Options{
		Temperature:    0.6,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		a.logger.Warn("NPC agency call failed, skipping NPC actions", "error", err)
		return nil
	}

	var parsed agencyResponse
	if err := oracle.DecodeJSON(resp.Text, &parsed); err != nil {
		a.logger.Warn("NPC agency response unparseable, skipping NPC actions", "error", err)
		return nil
	}

	triggered := make(map[string]bool, len(sel.NPCTriggers))
	for _, tr := range sel.NPCTriggers {
		triggered[tr.NPCID] = true
	}

	byID := make(map[string]*entity.Entity, len(npcs))
	for _, n := range npcs {
		byID[n.ID] = n
	}

	var actions []outcome.NPCAction
	for _, act := range parsed.NPCActions {
		npc, ok := byID[act.NPCID]
		if !ok {
			a.logger.Warn("Agency named an absent NPC, dropping action", "npc_id", act.NPCID)
			continue
		}
		if triggered[act.NPCID] && act.ActionType == "IDLE" {
			act.ActionType = "REACTIVE"
		}
		if act.NPCName == "" {
			act.NPCName = npc.DisplayName()
		}
		a.apply(ctx, npc, act, clock)
		actions = append(actions, act)
	}
	return actions
}

func (a *Agency) apply(ctx context.Context, npc *entity.Entity, act outcome.NPCAction, clock int) {
	changed := false
	if act.ActionType != "IDLE" && act.Description != "" {
		npc.State.CurrentAction = &entity.CurrentAction{
			Type:        act.ActionType,
			Description: act.Description,
			TargetID:    act.TargetID,
		}
		changed = true
	}
	if act.GoalProgress != "" {
		if npc.SetGoalStatus(act.GoalProgress, entity.GoalCompleted, clock) {
			changed = true
		}
	}
	if changed {
		if err := a.store.UpdateEntity(ctx, npc.ID, npc); err != nil {
			a.logger.Warn("NPC action persist failed", "npc_id", npc.ID, "error", err)
		}
	}
}
