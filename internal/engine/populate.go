package engine

import (
	"context"
	"fmt"
	"strings"

	"fableturn/internal/oracle"
	"fableturn/pkg/entity"
)

type populateResponse struct {
	Entities []generatedEntity `json:"entities"`
}

// PopulateLocation lazily fills an empty destination with oracle-invented
// contents on first entry. Failure leaves the room empty rather than
// blocking movement.
func (inst *Instantiator) PopulateLocation(ctx context.Context, loc *entity.Entity, genre GenreRules) []*entity.Entity {
	occupants, err := inst.store.EntitiesInLocation(ctx, loc.ID)
	if err != nil {
		inst.logger.Warn("Occupancy check failed, skipping population", "location_id", loc.ID, "error", err)
		return nil
	}
	if len(occupants) > 0 {
		return nil
	}

	resp, err := inst.oracle.Generate(ctx, buildPopulatePrompt(loc, genre), oracle.RoleCreative, oracle.Options{
		Temperature:    0.8,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		inst.logger.Warn("Location population call failed", "location_id", loc.ID, "error", err)
		return nil
	}
	var parsed populateResponse
	if err := oracle.DecodeJSON(resp.Text, &parsed); err != nil {
		inst.logger.Warn("Location population response unparseable", "location_id", loc.ID, "error", err)
		return nil
	}

	var created []*entity.Entity
	for _, gen := range parsed.Entities {
		name := strings.TrimSpace(gen.Name)
		if name == "" {
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
			GeneratedDepth: entity.DepthBasic,
			State:          entity.State{CurrentLocationID: loc.ID},
		}
		if err := inst.store.CreateEntity(ctx, e); err != nil {
			inst.logger.Warn("Populated entity persist failed", "entity_id", id, "error", err)
			continue
		}
		created = append(created, e)
	}
	inst.logger.Debug("Populated location", "location_id", loc.ID, "count", len(created))
	return created
}

// GenerateLocation creates a brand-new location (plus its contents) for
// dynamic travel toward somewhere the map does not have yet. Both ends of
// the connection are maintained.
func (inst *Instantiator) GenerateLocation(ctx context.Context, name string, from *entity.Entity, genre GenreRules) (*entity.Entity, error) {
	gen := generatedEntity{Name: name}
	var contents []generatedEntity

	resp, err := inst.oracle.Generate(ctx, buildLocationGenPrompt(name, from, genre), oracle.RoleCreative, oracle.Options{
		Temperature:    0.8,
		ResponseFormat: oracle.FormatJSON,
	})
	if err == nil {
		var parsed struct {
			Name        string            `json:"name"`
			Description string            `json:"description"`
			Entities    []generatedEntity `json:"entities"`
		}
		if derr := oracle.DecodeJSON(resp.Text, &parsed); derr == nil {
			if parsed.Name != "" {
				gen.Name = parsed.Name
			}
			gen.Description = parsed.Description
			contents = parsed.Entities
		}
	} else {
		inst.logger.Warn("Location generation call failed, creating bare location", "name", name, "error", err)
	}

	id := entityIDFor(entity.TypeLocation, gen.Name)
	if exists, err := inst.store.Exists(ctx, id); err == nil && exists {
		return inst.store.GetEntity(ctx, id)
	}

	loc := &entity.Entity{
		ID:             id,
		Type:           entity.TypeLocation,
		Name:           entity.Name{Display: gen.Name},
		Description:    gen.Description,
		GeneratedDepth: entity.DepthBasic,
	}
	if from != nil {
		loc.ConnectedLocationIDs = []string{from.ID}
	}
	if err := inst.store.CreateEntity(ctx, loc); err != nil {
		return nil, fmt.Errorf("creating location %s: %w", id, err)
	}

	if from != nil {
		from.ConnectedLocationIDs = appendUnique(from.ConnectedLocationIDs, loc.ID)
		if err := inst.store.UpdateEntity(ctx, from.ID, from); err != nil {
			inst.logger.Warn("Back-connection persist failed", "location_id", from.ID, "error", err)
		}
	}

	for _, g := range contents {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		t := normalizeEntityType(g.Type)
		if t == entity.TypeLocation {
			continue
		}
		eid := entityIDFor(t, name)
		if exists, err := inst.store.Exists(ctx, eid); err != nil || exists {
			continue
		}
		e := &entity.Entity{
			ID:             eid,
			Type:           t,
			Name:           entity.Name{Display: name},
			Description:    g.Description,
			GeneratedDepth: entity.DepthBasic,
			State:          entity.State{CurrentLocationID: loc.ID},
		}
		if err := inst.store.CreateEntity(ctx, e); err != nil {
			inst.logger.Warn("Generated entity persist failed", "entity_id", eid, "error", err)
		}
	}

	inst.logger.Info("Generated new location", "location_id", id)
	return loc, nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
