package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIOracle implements Oracle against any OpenAI-compatible chat
// completions endpoint. Logic and creative roles may target different
// models.
type OpenAIOracle struct {
	client        *openai.Client
	creativeModel string
	logicModel    string
	timeout       time.Duration
	logger        *slog.Logger
}

var _ Oracle = (*OpenAIOracle)(nil)

// NewOpenAIOracle creates an oracle client. baseURL may be empty for the
// default endpoint. timeout bounds every Generate call; the baseline design
// has no engine-level timeout, but a hung oracle call would stall the turn
// forever, so expiry is treated as an ordinary oracle failure.
func NewOpenAIOracle(apiKey, baseURL, creativeModel, logicModel string, timeout time.Duration, logger *slog.Logger) *OpenAIOracle {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIOracle{
		client:        &client,
		creativeModel: creativeModel,
		logicModel:    logicModel,
		timeout:       timeout,
		logger:        logger,
	}
}

// Generate runs one chat completion for the given role.
func (o *OpenAIOracle) Generate(ctx context.Context, prompt string, role Role, opts Options) (*Response, error) {
	model := o.creativeModel
	if role == RoleLogic {
		model = o.logicModel
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = openai.Float(opts.Temperature)
	}
	if opts.ResponseFormat == FormatJSON {
		req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		o.logger.Error("Oracle generation failed", "model", model, "role", role, "error", err)
		return nil, fmt.Errorf("oracle generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion choices returned", ErrMalformed)
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		TokensUsed:   int(resp.Usage.TotalTokens),
	}, nil
}
