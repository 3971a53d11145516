// Package oracle defines the boundary to the external generative text
// service. The oracle is untrusted: it may return invalid JSON, reference
// entities that do not exist, or ignore instructions entirely. Callers must
// treat every response as suspect and fall back to local canned results on
// error; nothing from this package is allowed to crash a turn.
package oracle

import (
	"context"
	"errors"
)

// Role selects the model profile for a call. Logic calls want strict,
// low-temperature adherence; creative calls want prose.
type Role string

const (
	RoleLogic    Role = "logic"
	RoleCreative Role = "creative"
)

// ResponseFormat hints the desired output shape.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Options tune a single generation call.
type Options struct {
	Temperature    float64
	ResponseFormat ResponseFormat
}

// Response is the raw generation result. Text is unvalidated.
type Response struct {
	Text         string
	FinishReason string
	TokensUsed   int
}

// ErrMalformed marks oracle output that could not be decoded into the
// requested shape. Callers branch on it to substitute local fallbacks.
var ErrMalformed = errors.New("oracle: malformed output")

// Oracle is the capability consumed by the engine.
type Oracle interface {
	Generate(ctx context.Context, prompt string, role Role, opts Options) (*Response, error)
}
