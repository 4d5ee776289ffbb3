package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanasif1/twooter/internal/config"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiCompleter generates text with the Gemini API.
type GeminiCompleter struct {
	generate generateContentFunc
	model    string
}

func NewGeminiCompleter(ctx context.Context, cfg *config.LLMConfig) (*GeminiCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required for provider gemini")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultGeminiModel
	}
	return &GeminiCompleter{generate: client.Models.GenerateContent, model: model}, nil
}

func (g *GeminiCompleter) Name() string {
	return "gemini"
}

func (g *GeminiCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		MaxOutputTokens:   150,
	}

	result, err := g.generate(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		if isGeminiRateLimit(err) {
			return "", apperrors.NewRateLimited(0, err.Error())
		}
		return "", apperrors.NewAppErrorf(apperrors.CodeRemoteRejected, err, "gemini %s failed", g.model)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func isGeminiRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit")
}
