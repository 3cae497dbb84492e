package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/insight"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/worker"
)

type insightRequest struct {
	Period string `json:"period"`
}

func (r insightRequest) period() string {
	if r.Period == "" {
		return "week"
	}
	return r.Period
}

func writeInsightError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, insight.ErrTierRequired):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, insight.ErrNoEmails):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, insight.ErrInsufficientData):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

type analyzeRequest struct {
	EmailID  string   `json:"email_id"`
	EmailIDs []string `json:"email_ids"`
}

// handleAnalyzeEmail queues one message for (re-)annotation by the AI
// worker rather than analyzing inline, so API latency stays flat.
func (s *Server) handleAnalyzeEmail(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req analyzeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.EmailID == "" {
		httputil.BadRequest(w, "email_id is required")
		return
	}
	jobIDs, err := s.enqueueAnalysis(r.Context(), user.ID, []string{req.EmailID})
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "job_ids": jobIDs})
}

const maxAnalyzeBatch = 100

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req analyzeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.EmailIDs) == 0 {
		httputil.BadRequest(w, "email_ids is required")
		return
	}
	if len(req.EmailIDs) > maxAnalyzeBatch {
		httputil.BadRequest(w, "at most 100 emails per batch")
		return
	}
	jobIDs, err := s.enqueueAnalysis(r.Context(), user.ID, req.EmailIDs)
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]any{"status": "queued", "job_ids": jobIDs})
}

// enqueueAnalysis verifies ownership of each message, then queues AI
// analysis jobs for them.
func (s *Server) enqueueAnalysis(ctx context.Context, userID string, emailIDs []string) ([]string, error) {
	jobIDs := make([]string, 0, len(emailIDs))
	for _, id := range emailIDs {
		if _, err := s.mailboxes.GetEmail(ctx, userID, id); err != nil {
			if errors.Is(err, mailbox.ErrNotFound) {
				return nil, insight.ErrNoEmails
			}
			return nil, err
		}
		job := worker.NewJob(worker.QueueAIAnalysis, worker.JobAnalyzeEmail, userID)
		job.EmailID = id
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return nil, err
		}
		jobIDs = append(jobIDs, job.ID)
	}
	return jobIDs, nil
}

func (s *Server) handlePatternInsights(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req insightRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	insights, err := s.insights.PatternInsights(r.Context(), user.ID, req.period())
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"insights": insights, "period": req.period()})
}

func (s *Server) handleUnsubscribeCandidates(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	candidates, err := s.insights.UnsubscribeCandidates(r.Context(), user.ID)
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"candidates": candidates, "total": len(candidates)})
}

func (s *Server) handlePredictTrends(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	prediction, err := s.insights.PredictTrends(r.Context(), user.ID)
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.OK(w, prediction)
}

func (s *Server) handleExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req insightRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	summary, err := s.insights.ExecutiveSummary(r.Context(), user, req.period())
	if err != nil {
		writeInsightError(w, err)
		return
	}
	httputil.OK(w, summary)
}

func (s *Server) handleInsightHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 20)
	typ := domain.InsightType(q.Get("type"))

	records, err := s.insights.History(r.Context(), user.ID, typ, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"insights": records, "total": len(records)})
}
