package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// OpenAIProvider speaks the OpenAI-compatible chat-completions wire format.
type OpenAIProvider struct {
	BaseURL string
	Model   string
	apiKey  string
	client  *http.Client
}

// NewOpenAIProvider builds a provider reading its key from the apiKeyEnv
// environment variable. The client timeout is the per-request budget.
func NewOpenAIProvider(baseURL, model, apiKeyEnv string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		BaseURL: baseURL,
		Model:   model,
		apiKey:  os.Getenv(apiKeyEnv),
		client:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != ""
}

// Complete sends one chat-completion request and returns the first choice.
func (o *OpenAIProvider) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	body := map[string]any{
		"model":       o.Model,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	}
	if opts.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	// Journal text never leaves the provider's transient processing path.
	req.Header.Set("X-Zero-Data-Retention", "true")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in provider response")
	}
	return result.Choices[0].Message.Content, nil
}

// parseRetryAfter handles both Retry-After forms: delta-seconds and an
// HTTP-date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	when, err := http.ParseTime(header)
	if err != nil {
		return 0
	}
	d := time.Until(when)
	if d < 0 {
		return 0
	}
	return d
}
