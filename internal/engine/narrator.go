package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fableturn/internal/oracle"
)

// Narrator renders the turn's selected outcome and NPC actions into prose
// with the creative oracle.
type Narrator struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

func NewNarrator(o oracle.Oracle, logger *slog.Logger) *Narrator {
	return &Narrator{oracle: o, logger: logger}
}

// Narrate returns the turn's prose and the tokens spent producing it. On
// oracle failure the outcome summary (or a generic line) stands in, so the
// player always gets narrative text.
func (n *Narrator) Narrate(ctx context.Context, req narrationRequest) (string, int) {
	resp, err := n.oracle.Generate(ctx, buildNarrationPrompt(req), oracle.RoleCreative, oracle.Options{
		Temperature:    0.9,
		ResponseFormat: oracle.FormatText,
	})
	if err != nil {
		n.logger.Warn("Narration call failed, using outcome summary", "error", err)
		return n.fallback(req), 0
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return n.fallback(req), resp.TokensUsed
	}
	return text, resp.TokensUsed
}

func (n *Narrator) fallback(req narrationRequest) string {
	if req.Outcome.NarrativeSummary != "" {
		return req.Outcome.NarrativeSummary
	}
	return fmt.Sprintf("You %s. Nothing remarkable happens.", strings.TrimSpace(req.Input))
}
