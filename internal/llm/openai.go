package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const jsonInstructions = "Respond with a single valid JSON document and nothing else."

// OpenAIClient implements Client over the OpenAI Responses API.
type OpenAIClient struct {
	client openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI client. Extra request options (base URL,
// HTTP client) are applied after the API key.
func NewOpenAIClient(config *Config, apiKey string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config == nil {
		config = DefaultOpenAIConfig()
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: config,
	}, nil
}

func (c *OpenAIClient) generate(ctx context.Context, prompt, instructions string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	params := responses.ResponseNewParams{
		Model:       modelName,
		Input:       responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Temperature: openai.Float(float64(c.config.Temperature)),
	}
	if c.config.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(c.config.MaxTokens)
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI Responses API failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from OpenAI Responses API")
	}

	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", fmt.Errorf("no text in OpenAI response")
	}
	return text, nil
}

// GenerateContent generates text content using the specified model tier
func (c *OpenAIClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.generate(ctx, prompt, "", tier)
}

// GenerateJSON generates JSON content using the specified model tier
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, prompt, jsonInstructions, tier)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

// GetModel returns the model name for a tier
func (c *OpenAIClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the OpenAI client holds no long-lived resources.
func (c *OpenAIClient) Close() error {
	return nil
}
