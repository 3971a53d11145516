package engine

import (
	"context"
	"log/slog"

	"fableturn/internal/oracle"
	"fableturn/pkg/entity"
)

// PlausibilityGate is the pre-check that can reject an action outright as
// physically or generically impossible before any resolution happens.
type PlausibilityGate struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

func NewPlausibilityGate(o oracle.Oracle, logger *slog.Logger) *PlausibilityGate {
	return &PlausibilityGate{oracle: o, logger: logger}
}

type plausibilityVerdict struct {
	Plausible bool   `json:"plausible"`
	Reason    string `json:"reason,omitempty"`
}

// Check returns whether the action may proceed and, when it may not, a
// refusal reason shown to the player. Gate failures fail open.
func (g *PlausibilityGate) Check(ctx context.Context, input string, genre GenreRules, location *entity.Entity) (bool, string) {
	resp, err := g.oracle.Generate(ctx, buildPlausibilityPrompt(input, genre, location), oracle.RoleLogic, oracle.Options{
		Temperature:    0.1,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		g.logger.Warn("Plausibility check failed, allowing action", "error", err)
		return true, ""
	}

	var verdict plausibilityVerdict
	if err := oracle.DecodeJSON(resp.Text, &verdict); err != nil {
		g.logger.Warn("Plausibility verdict unparseable, allowing action", "error", err)
		return true, ""
	}
	if verdict.Plausible {
		return true, ""
	}
	reason := verdict.Reason
	if reason == "" {
		reason = "That is not possible here."
	}
	return false, reason
}
