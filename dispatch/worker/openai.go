package worker

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
)

// ChatConfig configures an LLM-backed chat worker.
type ChatConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	// RequestOptions are appended to the SDK options.
	RequestOptions []option.RequestOption
}

// OpenAIAgent answers with one Chat Completions call per request.
type OpenAIAgent struct {
	cfg    ChatConfig
	client openai.Client
	logger *zap.Logger
}

// NewOpenAIAgent creates an OpenAI chat worker.
func NewOpenAIAgent(cfg ChatConfig, logger *zap.Logger) *OpenAIAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)

	return &OpenAIAgent{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger.With(zap.String("component", "openai_agent"), zap.String("worker", cfg.Name)),
	}
}

// Name implements dispatch.Worker.
func (a *OpenAIAgent) Name() string { return a.cfg.Name }

// Handle implements dispatch.Worker. The session ID travels as the
// end-user identifier.
func (a *OpenAIAgent) Handle(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(a.cfg.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Text))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(a.cfg.Model),
		Messages: msgs,
	}
	if a.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(a.cfg.MaxTokens)
	}
	if req.SessionID != "" {
		params.User = openai.String(req.SessionID)
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: empty choices")
	}

	a.logger.Debug("completion",
		zap.Int64("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int64("completion_tokens", completion.Usage.CompletionTokens),
	)
	return &dispatch.Response{
		Content: completion.Choices[0].Message.Content,
		Metadata: map[string]string{
			"worker": a.cfg.Name,
			"model":  completion.Model,
		},
	}, nil
}
