package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/emailmind/emailmind/internal/domain"
)

// BedrockClient analyzes emails using Anthropic models on AWS Bedrock.
// All data stays within AWS - no external API calls.
type BedrockClient struct {
	client  bedrockInvoker
	modelID string
	region  string
}

// bedrockInvoker is the slice of the Bedrock runtime API we use.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockClient creates a Bedrock-backed analyzer using the default AWS
// credential chain.
func NewBedrockClient(ctx context.Context, region, modelID string) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	b := &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		region:  region,
	}
	log.Printf("BedrockClient: Initialized with model=%s, region=%s", modelID, region)
	return b, nil
}

// AnalyzeEmail annotates a single message.
func (b *BedrockClient) AnalyzeEmail(ctx context.Context, subject, body string) (*domain.EmailAnalysis, error) {
	reply, err := b.Complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(subject, body), 500, 0.3)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(reply), nil
}

// Complete sends a system+user prompt pair and returns the model's reply.
func (b *BedrockClient) Complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error) {
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Temperature:      temperature,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: prompt}}},
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", err
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	return text, nil
}
