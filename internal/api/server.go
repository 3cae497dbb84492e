// Package api exposes the REST surface: auth, mailboxes, emails,
// analytics, insights, and billing under /api/v1.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/emailmind/emailmind/internal/analytics"
	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/billing"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/insight"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/worker"
)

// UserStore is the slice of user persistence the auth endpoints need.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

// AttachmentStore lists attachment metadata for the email detail view.
type AttachmentStore interface {
	ListByEmail(ctx context.Context, userID, emailID string) ([]domain.Attachment, error)
}

// HealthSource reports worker infrastructure health.
type HealthSource interface {
	Status() worker.HealthStatus
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	auth        *auth.Manager
	users       UserStore
	mailboxes   *mailbox.Service
	attachments AttachmentStore
	analytics   *analytics.Service
	insights    *insight.Service
	billing     *billing.Service
	queue       *worker.Queue
	health      HealthSource

	corsOrigins []string
}

// Config wires the server's dependencies.
type Config struct {
	Auth        *auth.Manager
	Users       UserStore
	Mailboxes   *mailbox.Service
	Attachments AttachmentStore
	Analytics   *analytics.Service
	Insights    *insight.Service
	Billing     *billing.Service
	Queue       *worker.Queue
	Health      HealthSource
	CORSOrigins []string
}

// NewServer creates the API server.
func NewServer(cfg Config) *Server {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	return &Server{
		auth:        cfg.Auth,
		users:       cfg.Users,
		mailboxes:   cfg.Mailboxes,
		attachments: cfg.Attachments,
		analytics:   cfg.Analytics,
		insights:    cfg.Insights,
		billing:     cfg.Billing,
		queue:       cfg.Queue,
		health:      cfg.Health,
		corsOrigins: origins,
	}
}

// Routes builds the router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/subscriptions/webhook", s.handleStripeWebhook)

		// Authenticated, quota-counted endpoints.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Use(s.auth.EnforceQuota)

			r.Get("/auth/me", s.handleMe)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleAddAccount)
				r.Delete("/{accountID}", s.handleRemoveAccount)
				r.Post("/{accountID}/sync", s.handleTriggerSync)
			})

			r.Route("/emails", func(r chi.Router) {
				r.Get("/", s.handleListEmails)
				r.Get("/stats", s.handleEmailStats)
				r.Get("/{emailID}", s.handleGetEmail)
				r.Post("/{emailID}/actions", s.handleEmailAction)
				r.Get("/{emailID}/attachments", s.handleListAttachments)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/overview", s.handleAnalyticsOverview)
				r.Get("/senders", s.handleTopSenders)
				r.Get("/trends/time-series", s.handleTimeSeries)
				r.Get("/trends/categories", s.handleCategoryTrends)
				r.Get("/productivity", s.handleProductivity)
			})

			r.Route("/insights", func(r chi.Router) {
				r.Post("/analyze", s.handleAnalyzeEmail)
				r.Post("/analyze-batch", s.handleAnalyzeBatch)
				r.Post("/summary", s.handlePatternInsights)
				r.Get("/unsubscribe-candidates", s.handleUnsubscribeCandidates)
				r.Get("/trends/predict", s.handlePredictTrends)
				r.Post("/executive-summary", s.handleExecutiveSummary)
				r.Get("/history", s.handleInsightHistory)
			})

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/plans", s.handleListPlans)
				r.Get("/current", s.handleCurrentSubscription)
				r.Post("/", s.handleSubscribe)
				r.Post("/change-plan", s.handleChangePlan)
				r.Post("/cancel", s.handleCancelSubscription)
				r.Post("/reactivate", s.handleReactivate)
				r.Get("/usage", s.handleUsage)
				r.Get("/billing-history", s.handleBillingHistory)
				r.Get("/payment-methods", s.handleListPaymentMethods)
				r.Post("/payment-methods", s.handleAddPaymentMethod)
				r.Delete("/payment-methods/{paymentMethodID}", s.handleRemovePaymentMethod)
				r.Put("/billing-address", s.handleUpdateBillingAddress)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if s.health != nil {
		snapshot := s.health.Status()
		if !snapshot.CheckedAt.IsZero() {
			status["workers"] = snapshot
			if !snapshot.Healthy {
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
	}
	httputil.JSON(w, code, status)
}
