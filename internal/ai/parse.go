package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emailmind/emailmind/internal/domain"
)

// extractJSON pulls the first JSON object out of a model reply that may be
// wrapped in prose or a markdown code fence.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in model reply")
	}
	return s[start : end+1], nil
}

// parseAnalysis decodes a model reply into an EmailAnalysis, normalizing
// out-of-vocabulary values. A reply that cannot be decoded at all gets the
// neutral fallback.
func parseAnalysis(reply string) *domain.EmailAnalysis {
	raw, err := extractJSON(reply)
	if err != nil {
		return FallbackAnalysis()
	}

	var a domain.EmailAnalysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return FallbackAnalysis()
	}

	switch a.Category {
	case domain.CategoryWork, domain.CategoryPersonal, domain.CategoryPromotional,
		domain.CategorySocial, domain.CategoryNotification, domain.CategorySpam,
		domain.CategoryNewsletter:
	default:
		a.Category = domain.CategoryUncategorized
	}

	switch a.Sentiment {
	case domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative:
	default:
		a.Sentiment = domain.SentimentNeutral
		a.SentimentScore = 0.0
	}

	switch a.Priority {
	case "low", "medium", "high", "urgent":
	default:
		a.Priority = "medium"
	}

	if a.SentimentScore < -1.0 {
		a.SentimentScore = -1.0
	} else if a.SentimentScore > 1.0 {
		a.SentimentScore = 1.0
	}
	if a.Confidence < 0.0 {
		a.Confidence = 0.0
	} else if a.Confidence > 1.0 {
		a.Confidence = 1.0
	}
	return &a
}
