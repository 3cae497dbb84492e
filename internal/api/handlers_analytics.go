package api

import (
	"net/http"

	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
)

// queryDays parses the "days" analytics window parameter, clamped to a year.
func queryDays(r *http.Request, fallback int) int {
	days := queryInt(r.URL.Query().Get("days"), fallback)
	if days <= 0 {
		return fallback
	}
	if days > 365 {
		return 365
	}
	return days
}

func (s *Server) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	overview, err := s.analytics.Overview(r.Context(), user.ID, queryDays(r, 30))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, overview)
}

func (s *Server) handleTopSenders(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	limit := queryInt(r.URL.Query().Get("limit"), 10)
	senders, err := s.analytics.TopSenders(r.Context(), user.ID, queryDays(r, 30), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"senders": senders, "total": len(senders)})
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "day"
	}
	series, err := s.analytics.TimeSeries(r.Context(), user.ID, queryDays(r, 30), granularity)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, series)
}

func (s *Server) handleCategoryTrends(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	trends, err := s.analytics.CategoryTrends(r.Context(), user.ID, queryDays(r, 30))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"categories": trends})
}

func (s *Server) handleProductivity(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	report, err := s.analytics.Productivity(r.Context(), user.ID, queryDays(r, 30))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}
