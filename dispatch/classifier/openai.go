package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/types"
)

const defaultPromptTemplate = "Extract the desired information from the following passage. " +
	"Only extract the properties mentioned in the '%s' function. Passage: \n%s"

// OpenAIConfig configures OpenAIClassifier.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Descriptions holds per-dimension guidance placed in the JSON schema.
	Descriptions map[string]string
	// MaxInputTokens bounds the passage; 0 disables truncation.
	MaxInputTokens int
	// RequestOptions are appended to the client options (tests inject an HTTP client here).
	RequestOptions []option.RequestOption
}

// OpenAIClassifier classifies via Chat Completions structured output: the
// response schema is an object with one string property constrained to the
// dimension's labels.
type OpenAIClassifier struct {
	client       openai.Client
	model        string
	descriptions map[string]string
	truncator    *Truncator
	logger       *zap.Logger
}

// NewOpenAIClassifier creates an OpenAI-backed classifier.
func NewOpenAIClassifier(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClassifier, error) {
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

	c := &OpenAIClassifier{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		descriptions: cfg.Descriptions,
		logger:       logger.With(zap.String("component", "openai_classifier"), zap.String("model", cfg.Model)),
	}
	if cfg.MaxInputTokens > 0 {
		c.truncator = NewTruncator(EncodingForModel(cfg.Model), cfg.MaxInputTokens, logger)
	}
	return c, nil
}

// Classify implements dispatch.Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string, dim dispatch.Dimension) (string, error) {
	fnName := schemaName(dim.Name)
	prompt := fmt.Sprintf(defaultPromptTemplate, fnName, c.truncator.Truncate(text))

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   fnName,
					Schema: c.schema(dim),
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", types.Errorf(types.ErrClassifierFailure, "openai classify %s", dim.Name).
			WithCause(err).WithRetryable(true)
	}
	if len(completion.Choices) == 0 {
		return "", types.Errorf(types.ErrClassifierFailure, "openai classify %s: empty choices", dim.Name)
	}

	content := completion.Choices[0].Message.Content
	var out map[string]string
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", types.Errorf(types.ErrClassifierFailure, "openai classify %s: malformed output %q", dim.Name, content).
			WithCause(err)
	}
	label, ok := out[dim.Name]
	if !ok {
		return "", types.Errorf(types.ErrClassifierFailure, "openai classify %s: property missing in %q", dim.Name, content)
	}

	c.logger.Debug("classified", zap.String("dimension", dim.Name), zap.String("label", label))
	return label, nil
}

func (c *OpenAIClassifier) schema(dim dispatch.Dimension) map[string]any {
	prop := map[string]any{
		"type": "string",
		"enum": dim.Strings(),
	}
	if desc := c.descriptions[dim.Name]; desc != "" {
		prop["description"] = desc
	}
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{dim.Name: prop},
		"required":             []string{dim.Name},
		"additionalProperties": false,
	}
}

// schemaName turns "urgency" into "UrgencyClassification".
func schemaName(dimension string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(dimension, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("Classification")
	return b.String()
}
