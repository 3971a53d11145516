package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"fableturn/internal/oracle"
	"fableturn/pkg/entity"
)

// maxActiveOpportunities caps the ambient hooks the player carries.
const maxActiveOpportunities = 5

// ambientEventChance is the per-turn probability of an ambient event.
const ambientEventChance = 0.03

// Severity thresholds for the ambient roll.
const (
	severityModerateThreshold = 0.70
	severityMajorThreshold    = 0.95
)

const oppActive = "active"

// Opportunities manages the player's ambient hooks: dedup, cap, expiry,
// and the per-turn ambient event roll.
type Opportunities struct {
	oracle   oracle.Oracle
	resolver *Resolver
	logger   *slog.Logger
}

func NewOpportunities(o oracle.Oracle, r *Resolver, logger *slog.Logger) *Opportunities {
	return &Opportunities{oracle: o, resolver: r, logger: logger}
}

// Add attaches the opportunity to the player unless it duplicates an
// existing one or the cap is reached. Duplication is case-insensitive
// substring containment in either direction against active descriptions.
func (op *Opportunities) Add(player *entity.Entity, o entity.Opportunity, clock, turn int) bool {
	active := activeOpportunities(player)
	if len(active) >= maxActiveOpportunities {
		return false
	}
	lower := strings.ToLower(o.Description)
	for _, existing := range active {
		ed := strings.ToLower(existing.Description)
		if strings.Contains(ed, lower) || strings.Contains(lower, ed) {
			return false
		}
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Status = oppActive
	o.CreatedAt = clock
	o.CreatedTurn = turn
	if o.ExpirationMinutes > 0 {
		o.ExpiresAt = clock + o.ExpirationMinutes
	}
	player.State.Opportunities = append(player.State.Opportunities, o)
	return true
}

// ExpireStale marks opportunities past their minute or turn expiry, and
// reports how many expired.
func (op *Opportunities) ExpireStale(player *entity.Entity, clock, turn int) int {
	expired := 0
	for i := range player.State.Opportunities {
		o := &player.State.Opportunities[i]
		if o.Status != oppActive {
			continue
		}
		if (o.ExpiresAt > 0 && clock >= o.ExpiresAt) ||
			(o.ExpiresTurn > 0 && turn >= o.ExpiresTurn) {
			o.Status = "expired"
			expired++
		}
	}
	return expired
}

// AmbientTick rolls the per-turn ambient event. On a hit it asks the
// oracle for one event at a rolled severity and attaches it as an
// opportunity. Returns the event, or nil on no roll, dedup, or failure.
func (op *Opportunities) AmbientTick(ctx context.Context, player, location *entity.Entity, genre GenreRules, clock, turn int) *entity.Opportunity {
	if !op.resolver.Chance(ambientEventChance) {
		return nil
	}

	roll := op.resolver.float64()
	severity := "MINOR"
	switch {
	case roll >= severityMajorThreshold:
		severity = "MAJOR"
	case roll >= severityModerateThreshold:
		severity = "MODERATE"
	}

	resp, err := op.oracle.Generate(ctx, buildOpportunityPrompt(location, genre, severity), oracle.RoleCreative, oracle.Options{
		Temperature:    0.9,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		op.logger.Warn("Ambient event call failed", "error", err)
		return nil
	}

	var o entity.Opportunity
	if err := oracle.DecodeJSON(resp.Text, &o); err != nil {
		op.logger.Warn("Ambient event response unparseable", "error", err)
		return nil
	}
	if strings.TrimSpace(o.Description) == "" {
		return nil
	}
	o.Severity = severity

	if !op.Add(player, o, clock, turn) {
		return nil
	}
	op.logger.Info("Ambient event fired", "severity", severity, "description", o.Description)
	return &player.State.Opportunities[len(player.State.Opportunities)-1]
}

func activeOpportunities(player *entity.Entity) []entity.Opportunity {
	var active []entity.Opportunity
	for _, o := range player.State.Opportunities {
		if o.Status == oppActive {
			active = append(active, o)
		}
	}
	return active
}
