package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Default models per provider. Classification calls are short, so the small
// tier of each family is enough.
const (
	ModelAnthropic = "claude-3-5-haiku-20241022"
	ModelOpenAI    = openai.GPT4oMini
	ModelGemini    = "gemini-2.5-flash"
)

// NewProvider builds the named provider. An empty apiKey falls back to the
// provider's conventional environment variable.
func NewProvider(ctx context.Context, name, apiKey string) (Provider, error) {
	switch strings.ToLower(name) {
	case "anthropic":
		return NewAnthropicProvider(apiKey)
	case "openai":
		return NewOpenAIProvider(apiKey)
	case "gemini":
		return NewGeminiProvider(ctx, apiKey)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", name)
	}
}

func resolveKey(apiKey, envVar string) (string, error) {
	if apiKey != "" {
		return apiKey, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s not set", envVar)
}

// AnthropicProvider calls the Anthropic Messages API
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider reads ANTHROPIC_API_KEY when apiKey is empty
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	key, err := resolveKey(apiKey, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(key))}, nil
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return ModelAnthropic }

func (p *AnthropicProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (*Response, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Response{
		Text:         sb.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// OpenAIProvider calls the OpenAI chat completions API
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider reads OPENAI_API_KEY when apiKey is empty
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	key, err := resolveKey(apiKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{client: openai.NewClient(key)}, nil
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return ModelOpenAI }

func (p *OpenAIProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoResponse
	}
	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

// GeminiProvider calls the Gemini generateContent API
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider reads GEMINI_API_KEY when apiKey is empty
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	key, err := resolveKey(apiKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return ModelGemini }

func (p *GeminiProvider) Generate(ctx context.Context, model, prompt string, maxTokens int) (*Response, error) {
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return nil, err
	}
	out := &Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
