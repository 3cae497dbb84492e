// Package ai provides the model backends that annotate emails and
// generate higher-level insights. Two backends are supported: the OpenAI
// chat completions API and Anthropic models on AWS Bedrock.
package ai

import (
	"context"
	"errors"

	"github.com/emailmind/emailmind/internal/domain"
)

// ErrNotConfigured is returned when a backend is constructed without
// credentials.
var ErrNotConfigured = errors.New("ai backend not configured")

// Analyzer is a model backend capable of structured email analysis and
// free-form completions.
type Analyzer interface {
	// AnalyzeEmail annotates a single message. On model or parse failure
	// implementations return the neutral fallback analysis and a nil error
	// only when the fallback is intentional; transport errors are returned
	// as errors so callers can retry.
	AnalyzeEmail(ctx context.Context, subject, body string) (*domain.EmailAnalysis, error)

	// Complete sends a system+user prompt pair and returns the raw text of
	// the model's reply.
	Complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error)
}

// FallbackAnalysis is the neutral annotation applied when the model's
// output cannot be parsed.
func FallbackAnalysis() *domain.EmailAnalysis {
	return &domain.EmailAnalysis{
		Category:       domain.CategoryUncategorized,
		Priority:       "medium",
		Sentiment:      domain.SentimentNeutral,
		SentimentScore: 0.0,
		ActionType:     "none",
		Summary:        "Analysis unavailable",
		Confidence:     0.0,
	}
}
