// Package insight generates AI-powered insights from annotated email:
// pattern analysis, unsubscribe recommendations, trend predictions, and
// executive summaries. It combines SQL aggregates with model completions
// from the ai package and persists results for later retrieval.
package insight
