package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
)

// categoryKeys are the non-entity top-level keys a state-change payload may
// carry. Everything else must resolve to an entity id.
var categoryKeys = map[string]bool{
	"npc":           true,
	"location":      true,
	"item":          true,
	"object":        true,
	"time":          true,
	"opportunities": true,
}

// Sanitizer cleans and checks oracle state-change payloads and narration
// before anything is committed.
type Sanitizer struct {
	store  store.Store
	oracle oracle.Oracle
	logger *slog.Logger
}

func NewSanitizer(s store.Store, o oracle.Oracle, logger *slog.Logger) *Sanitizer {
	return &Sanitizer{store: s, oracle: o, logger: logger}
}

// Sanitize rewrites hallucinated entity-id keys to canonical ids where a
// fuzzy match against the turn's context entities succeeds, both at the top
// level and inside category maps. Unresolvable keys are left in place for
// structural validation to reject. Valid deltas pass through unchanged.
func (sz *Sanitizer) Sanitize(ctx context.Context, delta map[string]any, contextEntities []*entity.Entity) map[string]any {
	if len(delta) == 0 {
		return delta
	}
	cleaned := make(map[string]any, len(delta))
	for key, value := range delta {
		if categoryKeys[key] {
			if nested, ok := value.(map[string]any); ok {
				value = sz.reconcileCategory(ctx, nested, contextEntities)
			}
			cleaned[key] = value
			continue
		}
		cleaned[sz.reconcileKey(ctx, key, contextEntities)] = value
	}
	return cleaned
}

// reconcileKey returns the canonical id for key, or key unchanged when it
// already exists or no fuzzy match resolves it.
func (sz *Sanitizer) reconcileKey(ctx context.Context, key string, known []*entity.Entity) string {
	exists, err := sz.store.Exists(ctx, key)
	if err != nil {
		sz.logger.Warn("Entity existence check failed during sanitize", "key", key, "error", err)
		return key
	}
	if exists {
		return key
	}
	if canonical, ok := resolveFuzzy(key, known); ok {
		sz.logger.Debug("Reconciled hallucinated entity id", "from", key, "to", canonical)
		return canonical
	}
	return key
}

// reconcileCategory reconciles the underscore-bearing keys inside a category
// payload; plain keys are field names, not ids, and pass through.
func (sz *Sanitizer) reconcileCategory(ctx context.Context, nested map[string]any, known []*entity.Entity) map[string]any {
	cleaned := make(map[string]any, len(nested))
	for inner, v := range nested {
		if strings.Contains(inner, "_") {
			inner = sz.reconcileKey(ctx, inner, known)
		}
		cleaned[inner] = v
	}
	return cleaned
}

// resolveFuzzy matches a hallucinated id against known entities by
// substring containment in either direction on ids, or case-insensitive
// substring match on display/first names. First match wins.
func resolveFuzzy(key string, known []*entity.Entity) (string, bool) {
	lower := strings.ToLower(key)
	for _, e := range known {
		id := strings.ToLower(e.ID)
		if strings.Contains(id, lower) || strings.Contains(lower, id) {
			return e.ID, true
		}
		if d := strings.ToLower(e.Name.Display); d != "" && strings.Contains(lower, d) {
			return e.ID, true
		}
		if f := strings.ToLower(e.Name.First); f != "" && strings.Contains(lower, f) {
			return e.ID, true
		}
	}
	return "", false
}

// ValidateStructure is the hard gate before a delta commits. Every
// top-level key must be an existing entity id or a known category; inside a
// category, keys containing an underscore must be existing entity ids. The
// returned reason names the first offending key.
func (sz *Sanitizer) ValidateStructure(ctx context.Context, delta map[string]any) (bool, string) {
	for key, value := range delta {
		if categoryKeys[key] {
			nested, ok := value.(map[string]any)
			if !ok {
				continue
			}
			for inner := range nested {
				if !strings.Contains(inner, "_") {
					continue
				}
				exists, err := sz.store.Exists(ctx, inner)
				if err != nil || !exists {
					return false, fmt.Sprintf("category %q references unknown entity %q", key, inner)
				}
			}
			continue
		}
		exists, err := sz.store.Exists(ctx, key)
		if err != nil || !exists {
			return false, fmt.Sprintf("top-level key %q is neither a known entity id nor a valid category", key)
		}
	}
	return true, ""
}

// continuityVerdict is the validator oracle's response shape.
type continuityVerdict struct {
	Valid              bool   `json:"valid"`
	Severity           string `json:"severity,omitempty"`
	Issue              string `json:"issue,omitempty"`
	CorrectedNarration string `json:"corrected_narration,omitempty"`
}

// ValidateNarrative asks the logic oracle to check rendered prose against
// the present entities and recent narration, flagging CRITICAL/MAJOR issues
// only. A supplied correction replaces the text; everything else fails
// open. Returns the text to use.
func (sz *Sanitizer) ValidateNarrative(ctx context.Context, narrative string, present []*entity.Entity, recentNarratives []string) string {
	prompt := buildContinuityPrompt(narrative, present, recentNarratives)
	resp, err := sz.oracle.Generate(ctx, prompt, oracle.RoleLogic, oracle.Options{
		Temperature:    0.1,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		sz.logger.Warn("Continuity validation call failed, passing through", "error", err)
		return narrative
	}

	var verdict continuityVerdict
	if err := oracle.DecodeJSON(resp.Text, &verdict); err != nil {
		sz.logger.Warn("Continuity verdict unparseable, passing through", "error", err)
		return narrative
	}

	if verdict.Valid {
		return narrative
	}
	severity := strings.ToUpper(verdict.Severity)
	if severity != "CRITICAL" && severity != "MAJOR" {
		return narrative
	}
	if strings.TrimSpace(verdict.CorrectedNarration) == "" {
		sz.logger.Warn("Continuity issue without correction, passing through",
			"severity", severity, "issue", verdict.Issue)
		return narrative
	}
	sz.logger.Info("Applied narrative correction", "severity", severity, "issue", verdict.Issue)
	return verdict.CorrectedNarration
}

// CheckRetroactiveCausality inspects the recent look/move observation
// window for narration that contradicts an established absence. The check
// currently always passes; the window read stays so a stricter policy can
// slot in without changing call sites.
func (sz *Sanitizer) CheckRetroactiveCausality(ctx context.Context, narrative string) bool {
	if _, err := sz.store.RecentObservations(ctx, 5); err != nil {
		sz.logger.Warn("Observation window read failed", "error", err)
	}
	return true
}
