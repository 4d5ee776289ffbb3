package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	apperrors "github.com/khanasif1/twooter/pkg/errors"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAICompleter talks to the chat completions API of OpenAI or an Azure
// OpenAI deployment.
type OpenAICompleter struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	model      string
	apiVersion string
	azure      bool
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func NewOpenAICompleter(cfg *config.LLMConfig) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required for provider %s", cfg.Provider)
	}

	c := &OpenAICompleter{
		client:     &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		azure:      cfg.Provider == config.ProviderAzure,
	}
	if c.azure && c.endpoint == "" {
		return nil, fmt.Errorf("llm endpoint is required for azure")
	}
	if c.endpoint == "" {
		c.endpoint = defaultOpenAIBaseURL
	}
	return c, nil
}

func (c *OpenAICompleter) Name() string {
	if c.azure {
		return "azure-openai"
	}
	return "openai"
}

func (c *OpenAICompleter) url() string {
	if c.azure {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiVersion))
	}
	return c.endpoint + "/chat/completions"
}

// Complete sends one system + user exchange and returns the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	body := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   150,
		Temperature: 0.7,
		TopP:        0.95,
	}
	if !c.azure {
		body.Model = c.model
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.azure {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewAppErrorf(apperrors.CodeTransport, err, "%s request failed", c.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.NewAppErrorf(apperrors.CodeTransport, err, "read %s response", c.Name())
	}

	var parsed chatResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests || isRateLimitCode(parsed) {
		return "", apperrors.NewRateLimited(retryAfter(resp.Header.Get("Retry-After")), string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", apperrors.NewAppErrorf(apperrors.CodeRemoteRejected, nil, "%s error: %s", c.Name(), parsed.Error.Message)
		}
		return "", apperrors.NewRemoteRejected(resp.StatusCode, string(respBody))
	}

	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func isRateLimitCode(r chatResponse) bool {
	return r.Error != nil && (r.Error.Code == "429" || r.Error.Code == "RateLimitReached" || r.Error.Code == "rate_limit_exceeded")
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
