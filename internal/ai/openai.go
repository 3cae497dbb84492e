package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient analyzes emails using the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIOption customizes the client.
type OpenAIOption func(*OpenAIClient)

// WithBaseURL points the client at a different endpoint. Used in tests.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) { c.httpClient = hc }
}

// NewOpenAIClient creates an OpenAI-backed analyzer.
func NewOpenAIClient(apiKey, model string, timeout time.Duration, opts ...OpenAIOption) *OpenAIClient {
	if model == "" {
		model = "gpt-4o"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	c := &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openAIEndpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeEmail annotates a single message.
func (c *OpenAIClient) AnalyzeEmail(ctx context.Context, subject, body string) (*domain.EmailAnalysis, error) {
	reply, err := c.Complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(subject, body), 500, 0.3)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(reply), nil
}

// Complete sends a system+user prompt pair and returns the model's reply.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	request := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	response, err := c.call(ctx, request)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return response.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) call(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s", response.Error.Message)
	}
	return &response, nil
}
