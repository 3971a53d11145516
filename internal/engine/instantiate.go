package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
)

// minExtractionLength skips extraction on narratives too short to plausibly
// introduce anything.
const minExtractionLength = 50

// Instantiator creates entities mid-session: skeletons for referenced but
// missing things, and post-narrative extraction of newly introduced ones.
type Instantiator struct {
	oracle oracle.Oracle
	store  store.Store
	logger *slog.Logger
}

func NewInstantiator(o oracle.Oracle, s store.Store, logger *slog.Logger) *Instantiator {
	return &Instantiator{oracle: o, store: s, logger: logger}
}

type generatedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"entity_type"`
	Description string `json:"description"`
}

func normalizeEntityType(t string) entity.Type {
	switch strings.ToLower(t) {
	case "npc", "person":
		return entity.TypeNPC
	case "creature", "animal":
		return entity.TypeCreature
	case "location", "place":
		return entity.TypeLocation
	default:
		return entity.TypeObject
	}
}

func entityIDFor(t entity.Type, name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "_")
	if slug == "" {
		slug = uuid.NewString()[:8]
	}
	prefix := map[entity.Type]string{
		entity.TypeNPC:      "npc",
		entity.TypeCreature: "creature",
		entity.TypeObject:   "obj",
		entity.TypeLocation: "loc",
	}[t]
	return fmt.Sprintf("%s_%s", prefix, slug)
}

// CreateSkeleton instantiates a minimal entity for a referenced-but-absent
// name so the turn can proceed. The oracle fleshes out a line of
// description; its failure still yields a usable skeleton.
func (inst *Instantiator) CreateSkeleton(ctx context.Context, name, entityType, locationID string, genre GenreRules) (*entity.Entity, error) {
	t := normalizeEntityType(entityType)

	desc := ""
	loc, _ := inst.store.GetEntity(ctx, locationID)
	resp, err := inst.oracle.Generate(ctx, buildSkeletonPrompt(name, entityType, loc, genre), oracle.RoleCreative, oracle.Options{
		Temperature:    0.8,
		ResponseFormat: oracle.FormatJSON,
	})
	if err == nil {
		var gen generatedEntity
		if derr := oracle.DecodeJSON(resp.Text, &gen); derr == nil {
			if gen.Name != "" {
				name = gen.Name
			}
			desc = gen.Description
		}
	} else {
		inst.logger.Warn("Skeleton generation call failed, using bare skeleton", "name", name, "error", err)
	}

	id := entityIDFor(t, name)
	if exists, err := inst.store.Exists(ctx, id); err == nil && exists {
		return inst.store.GetEntity(ctx, id)
	}

	e := &entity.Entity{
		ID:             id,
		Type:           t,
		Name:           entity.Name{Display: name},
		Description:    desc,
		GeneratedDepth: entity.DepthMinimal,
		State:          entity.State{CurrentLocationID: locationID},
	}
	if t == entity.TypeLocation {
		e.State = entity.State{}
	}
	if err := inst.store.CreateEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("creating skeleton %s: %w", id, err)
	}
	inst.logger.Info("Instantiated skeleton entity", "entity_id", id, "entity_type", t)
	return e, nil
}

type extractionResponse struct {
	Entities []generatedEntity `json:"entities"`
}

// ExtractNewEntities scans corrected narration for newly introduced
// entities and persists them at minimal depth. Names already known and the
// player's own name are never extracted. Best-effort.
func (inst *Instantiator) ExtractNewEntities(ctx context.Context, narrative, locationID string, knownNames []string, playerName string) []*entity.Entity {
	if len(narrative) < minExtractionLength {
		return nil
	}

	resp, err := inst.oracle.Generate(ctx, buildExtractionPrompt(narrative, knownNames, playerName), oracle.RoleLogic, oracle.Options{
		Temperature:    0.2,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		inst.logger.Warn("Entity extraction call failed", "error", err)
		return nil
	}
	var parsed extractionResponse
	if err := oracle.DecodeJSON(resp.Text, &parsed); err != nil {
		inst.logger.Warn("Entity extraction response unparseable", "error", err)
		return nil
	}

	known := make(map[string]bool, len(knownNames)+1)
	for _, n := range knownNames {
		known[strings.ToLower(n)] = true
	}
	known[strings.ToLower(playerName)] = true

	var created []*entity.Entity
	for _, gen := range parsed.Entities {
		name := strings.TrimSpace(gen.Name)
		if name == "" || known[strings.ToLower(name)] {
			continue
		}
		t := normalizeEntityType(gen.Type)
		if t == entity.TypeLocation {
			continue
		}
		id := entityIDFor(t, name)
		if exists, err := inst.store.Exists(ctx, id); err != nil || exists {
			continue
		}
		e := &entity.Entity{
			ID:             id,
			Type:           t,
			Name:           entity.Name{Display: name},
			Description:    gen.Description,
			GeneratedDepth: entity.DepthMinimal,
			State:          entity.State{CurrentLocationID: locationID},
		}
		if err := inst.store.CreateEntity(ctx, e); err != nil {
			inst.logger.Warn("Extracted entity persist failed", "entity_id", id, "error", err)
			continue
		}
		known[strings.ToLower(name)] = true
		created = append(created, e)
	}
	if len(created) > 0 {
		inst.logger.Info("Extracted new entities from narration", "count", len(created))
	}
	return created
}
