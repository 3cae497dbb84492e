package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/worker"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	accounts, err := s.mailboxes.ListAccounts(r.Context(), user.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"accounts": accounts, "total": len(accounts)})
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var input mailbox.AddAccountInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	account, err := s.mailboxes.AddAccount(r.Context(), user.ID, input)
	if err != nil {
		switch {
		case errors.Is(err, mailbox.ErrUnsupportedProvider), errors.Is(err, mailbox.ErrMissingCredentials):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.Created(w, account)
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	if err := s.mailboxes.RemoveAccount(r.Context(), user.ID, chi.URLParam(r, "accountID")); err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			httputil.NotFound(w, "account not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// handleTriggerSync enqueues an immediate sync for one account instead of
// waiting for the scheduler's next pass.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	accountID := chi.URLParam(r, "accountID")

	// Confirm ownership before queueing work for the account.
	accounts, err := s.mailboxes.ListAccounts(r.Context(), user.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	owned := false
	for _, a := range accounts {
		if a.ID == accountID {
			owned = true
			break
		}
	}
	if !owned {
		httputil.NotFound(w, "account not found")
		return
	}

	job := worker.NewJob(worker.QueueSync, worker.JobSyncAccount, user.ID)
	job.AccountID = accountID
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"job_id": job.ID,
	})
}

func (s *Server) handleListEmails(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	q := r.URL.Query()

	filter := mailbox.ListFilter{
		Category:   domain.Category(q.Get("category")),
		UnreadOnly: q.Get("unread") == "true",
		Limit:      queryInt(q.Get("limit"), 50),
		Offset:     queryInt(q.Get("offset"), 0),
	}
	if raw := q.Get("min_importance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.BadRequest(w, "min_importance must be a number")
			return
		}
		filter.MinImportance = &v
	}

	emails, err := s.mailboxes.ListEmails(r.Context(), user.ID, filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"emails": emails,
		"total":  len(emails),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	email, err := s.mailboxes.GetEmail(r.Context(), user.ID, chi.URLParam(r, "emailID"))
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			httputil.NotFound(w, "email not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, email)
}

type emailActionRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleEmailAction(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req emailActionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	err := s.mailboxes.ApplyAction(r.Context(), user.ID, chi.URLParam(r, "emailID"), req.Action)
	if err != nil {
		switch {
		case errors.Is(err, mailbox.ErrInvalidAction):
			httputil.BadRequest(w, err.Error())
		case errors.Is(err, mailbox.ErrNotFound):
			httputil.NotFound(w, "email not found")
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, map[string]string{"status": "applied", "action": req.Action})
}

func (s *Server) handleEmailStats(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	stats, err := s.mailboxes.Stats(r.Context(), user.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	attachments, err := s.attachments.ListByEmail(r.Context(), user.ID, chi.URLParam(r, "emailID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"attachments": attachments, "total": len(attachments)})
}

// queryInt parses a query parameter, falling back when absent or invalid.
func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
