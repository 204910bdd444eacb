// Model service - builds a streaming chat model per provider
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einoModel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/utils"
)

// groqBaseURL reuses the OpenAI-compatible chat completion transport with a
// different endpoint; the provider abstraction is transport + endpoint +
// model identifier, not five unrelated protocols.
const groqBaseURL = "https://api.groq.com/openai/v1"

// maxCompletionTokens bounds every provider's response length.
const maxCompletionTokens = 1000

// ChatModelBuilder constructs a streamable chat model for one provider from a
// credential. The stream service depends only on this interface.
type ChatModelBuilder interface {
	BuildChatModel(ctx context.Context, p models.Provider, apiKey string) (einoModel.BaseChatModel, error)
}

// ModelService is the production ChatModelBuilder over the closed provider
// set.
type ModelService struct {
	logger *slog.Logger
}

func NewModelService() *ModelService {
	return &ModelService{
		logger: utils.GetLogger(),
	}
}

// BuildChatModel creates a chat model for the given provider. The switch is
// exhaustive over the provider enum; an unrecognized value is a programming
// error surfaced as an error, never silently mapped to a default back-end.
func (m *ModelService) BuildChatModel(ctx context.Context, p models.Provider, apiKey string) (einoModel.BaseChatModel, error) {
	maxTokens := maxCompletionTokens

	switch p {
	case models.ProviderOpenAI:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:    apiKey,
			Model:     p.ModelID(),
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case models.ProviderGroq:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   groqBaseURL,
			APIKey:    apiKey,
			Model:     p.ModelID(),
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Groq model: %w", err)
		}
		return chatModel, nil

	case models.ProviderDeepSeek:
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    apiKey,
			Model:     p.ModelID(),
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case models.ProviderAnthropic:
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     p.ModelID(),
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case models.ProviderGemini:
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  p.ModelID(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", p)
	}
}
