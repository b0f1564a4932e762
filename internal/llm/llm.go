package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"newsquiz/internal/config"
	"newsquiz/internal/core"
)

const (
	// DefaultModel is the default Gemini model for all pipeline prompts.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultTimeout bounds a single model call when no deadline is set.
	DefaultTimeout = 60 * time.Second
)

// errEmptyResponse marks a model reply without any text.
var errEmptyResponse = errors.New("empty response from model")

// Transport sends one prompt to the AI backend and returns the raw reply.
// An empty reply is a transport failure.
type Transport interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// SchemaTransport is implemented by transports that can ask the model for
// structured JSON output matching a schema.
type SchemaTransport interface {
	Transport
	InvokeWithSchema(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Client represents a Gemini client used by the pipeline processors.
type Client struct {
	apiKey      string
	modelName   string
	maxTokens   int32
	temperature float32
	timeout     time.Duration
	gClient     *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional schema for structured output
}

// NewClient creates a new Gemini client.
// The API key comes from the config, falling back to GEMINI_API_KEY.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:      apiKey,
		modelName:   modelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		gClient:     gClient,
	}, nil
}

// ModelName returns the model used for calls without an explicit override.
func (c *Client) ModelName() string {
	return c.modelName
}

// Invoke implements Transport using the client's default generation options.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	return c.GenerateText(ctx, prompt, TextGenerationOptions{})
}

// InvokeWithSchema implements SchemaTransport.
func (c *Client) InvokeWithSchema(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	return c.GenerateText(ctx, prompt, TextGenerationOptions{ResponseSchema: schema})
}

// GenerateText generates text using the LLM with specified options.
// Failures are returned as *core.TransportError.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.generate(ctx, modelName, contents, c.buildConfig(options))
	if err != nil {
		return "", &core.TransportError{Op: "gemini " + modelName, Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &core.TransportError{Op: "gemini " + modelName, Err: errEmptyResponse}
	}

	return text, nil
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.gClient.Models.GenerateContent(ctx, model, contents, cfg)
}

// buildConfig merges per-call options over the client defaults.
func (c *Client) buildConfig(options TextGenerationOptions) *genai.GenerateContentConfig {
	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	temperature := options.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	if maxTokens == 0 && temperature == 0 && options.ResponseSchema == nil {
		return nil
	}

	config := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}
	if temperature > 0 {
		config.Temperature = genai.Ptr(temperature)
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = options.ResponseSchema
	}
	return config
}

// Close releases client resources.
func (c *Client) Close() {
	// genai.Client holds no resources that need explicit release.
}
