package engine

import (
	"context"
	"log/slog"
	"strings"

	"fableturn/internal/oracle"
	"fableturn/pkg/entity"
)

// Understanding classifications.
const (
	UnderstandingClear     = "CLEAR"
	UnderstandingAmbiguous = "AMBIGUOUS"
	UnderstandingGibberish = "GIBBERISH"
)

// Complexity classifications. TRIVIAL enables the movement fast-path.
const (
	ComplexityTrivial = "TRIVIAL"
	ComplexityNormal  = "NORMAL"
	ComplexityComplex = "COMPLEX"
)

// MissingEntity is a referenced-but-absent thing the interpreter believes
// plausibly exists, triggering skeleton instantiation.
type MissingEntity struct {
	Name string `json:"name"`
	Type string `json:"entity_type"`
}

// ActionInterpretation is the interpreter's reading of one player input.
type ActionInterpretation struct {
	Understanding      string          `json:"understanding"`
	Explanation        string          `json:"explanation,omitempty"`
	NormalizedInput    string          `json:"normalized_input"`
	Complexity         string          `json:"complexity"`
	ReferencedEntities []string        `json:"referenced_entities,omitempty"`
	MissingEntities    []MissingEntity `json:"missing_entities,omitempty"`
	TravelIntent       bool            `json:"travel_intent,omitempty"`
	TargetLocation     string          `json:"target_location,omitempty"`
}

// Interpreter classifies raw player input via the logic oracle.
type Interpreter struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

func NewInterpreter(o oracle.Oracle, logger *slog.Logger) *Interpreter {
	return &Interpreter{oracle: o, logger: logger}
}

// Interpret asks the oracle to classify the input. Oracle failures degrade
// to a CLEAR/NORMAL reading of the raw input so the turn proceeds through
// the full resolution path rather than erroring out.
func (in *Interpreter) Interpret(ctx context.Context, input string, location *entity.Entity, present []*entity.Entity) *ActionInterpretation {
	fallback := &ActionInterpretation{
		Understanding:   UnderstandingClear,
		NormalizedInput: strings.TrimSpace(input),
		Complexity:      ComplexityNormal,
	}

	resp, err := in.oracle.Generate(ctx, buildInterpretPrompt(input, location, present), oracle.RoleLogic, oracle.Options{
		Temperature:    0.2,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		in.logger.Warn("Interpreter call failed, treating input as clear", "error", err)
		return fallback
	}

	var ai ActionInterpretation
	if err := oracle.DecodeJSON(resp.Text, &ai); err != nil {
		in.logger.Warn("Interpreter response unparseable, treating input as clear", "error", err)
		return fallback
	}

	ai.Understanding = strings.ToUpper(ai.Understanding)
	ai.Complexity = strings.ToUpper(ai.Complexity)
	switch ai.Understanding {
	case UnderstandingClear, UnderstandingAmbiguous, UnderstandingGibberish:
	default:
		ai.Understanding = UnderstandingClear
	}
	switch ai.Complexity {
	case ComplexityTrivial, ComplexityNormal, ComplexityComplex:
	default:
		ai.Complexity = ComplexityNormal
	}
	if strings.TrimSpace(ai.NormalizedInput) == "" {
		ai.NormalizedInput = strings.TrimSpace(input)
	}
	return &ai
}
