package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
)

// AnthropicConfig configures AnthropicAgent.
type AnthropicConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	// RequestOptions are appended to the SDK options.
	RequestOptions []option.RequestOption
}

// AnthropicAgent answers with one Messages call per request.
type AnthropicAgent struct {
	cfg    AnthropicConfig
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropicAgent creates an Anthropic chat worker.
func NewAnthropicAgent(cfg AnthropicConfig, logger *zap.Logger) *AnthropicAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)

	return &AnthropicAgent{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		logger: logger.With(zap.String("component", "anthropic_agent"), zap.String("worker", cfg.Name)),
	}
}

// Name implements dispatch.Worker.
func (a *AnthropicAgent) Name() string { return a.cfg.Name }

// Handle implements dispatch.Worker. The session ID travels as metadata.user_id.
func (a *AnthropicAgent) Handle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)),
		},
	}
	if a.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}}
	}
	if req.SessionID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.SessionID)}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}

	a.logger.Debug("message",
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return &dispatch.Response{
		Content: b.String(),
		Metadata: map[string]string{
			"worker": a.cfg.Name,
			"model":  string(msg.Model),
		},
	}, nil
}
