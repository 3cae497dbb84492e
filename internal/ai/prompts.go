package ai

import "fmt"

const analysisSystemPrompt = "You are an expert email analyst. Provide structured, consistent analysis in valid JSON format only."

// Truncation limits keep prompts inside model token budgets.
const (
	maxAnalysisBody = 2000
	maxSummaryBody  = 1000
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildAnalysisPrompt(subject, body string) string {
	return fmt.Sprintf(`Analyze the following email and provide insights in JSON format:

Subject: %s
Content: %s

Please provide analysis in the following JSON structure:
{
    "category": "one of: work, personal, promotional, social, notification, spam, newsletter",
    "priority": "one of: low, medium, high, urgent",
    "sentiment": "one of: positive, neutral, negative",
    "sentiment_score": "float between -1.0 and 1.0",
    "key_topics": ["topic1", "topic2", "topic3"],
    "requires_action": true/false,
    "action_type": "one of: reply, schedule, forward, archive, delete, follow_up, none",
    "summary": "brief 2-sentence summary",
    "confidence_score": "float between 0.0 and 1.0"
}

Be precise and consistent with the categories and priorities.`, subject, truncate(body, maxAnalysisBody))
}

// InsightsSystemPrompt frames the model as a productivity analyst for
// pattern insight generation.
const InsightsSystemPrompt = "You are a productivity expert analyzing email patterns to provide actionable insights."

// InsightsPrompt asks for actionable insights over a batch of annotated
// email.
func InsightsPrompt(totalEmails int, categories, priorities string, actionRequired int) string {
	return fmt.Sprintf(`Based on email analysis data for %d emails, generate actionable insights:

Email Categories: %s
Priorities: %s
Action Required: %d emails

Generate 5 actionable insights in JSON format:
{
    "insights": [
        {
            "type": "productivity" | "priority" | "time_management" | "communication" | "organization",
            "title": "Brief insight title",
            "description": "Detailed description with specific recommendations",
            "impact": "high" | "medium" | "low",
            "action_items": ["specific action 1", "specific action 2"]
        }
    ]
}`, totalEmails, categories, priorities, actionRequired)
}

// ExecutiveSystemPrompt frames the model for executive digests.
const ExecutiveSystemPrompt = "You are an executive assistant writing a crisp email activity digest."

// ExecutiveSummaryPrompt asks for the periodic digest body.
func ExecutiveSummaryPrompt(period string, metrics string) string {
	return fmt.Sprintf(`Write an executive summary of this %s of email activity.

Metrics: %s

Return JSON:
{
    "highlights": ["notable positive development 1", "..."],
    "concerns": ["issue needing attention 1", "..."],
    "recommendations": ["specific recommendation 1", "..."]
}`, period, metrics)
}
