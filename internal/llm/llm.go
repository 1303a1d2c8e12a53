// Package llm provides the LLM provider abstraction and the annotator that
// re-scores and narrates the ranked paper set. Provider failures are always
// recoverable: annotation is an enrichment, never a gate.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

// DefaultModel is the default Gemini model used for annotation.
const DefaultModel = "gemini-2.5-flash"

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// Response is the provider's reply.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is the opaque text-generation collaborator.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Client is a Gemini-backed Provider.
type Client struct {
	apiKey    string
	modelName string
	gClient   *genai.Client
}

// NewClient creates a Gemini client. The API key comes from (in order)
// GEMINI_API_KEY, GOOGLE_GEMINI_API_KEY, GOOGLE_AI_API_KEY, or the
// llm.api_key config value.
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("llm.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or llm.api_key in config file")
	}

	if modelName == "" {
		modelName = viper.GetString("llm.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{apiKey: apiKey, modelName: modelName, gClient: gClient}, nil
}

// Generate implements Provider.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, fmt.Errorf("empty response from model")
	}

	out := Response{Text: text}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
