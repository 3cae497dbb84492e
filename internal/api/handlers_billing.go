package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/billing"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Stripe recommends capping webhook payloads well below this.
const maxWebhookBody = 1 << 16

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"plans": billing.Plans()})
}

type subscribeRequest struct {
	Tier            domain.SubscriptionTier `json:"tier"`
	Cycle           domain.BillingCycle     `json:"billing_cycle"`
	PaymentMethodID string                  `json:"payment_method_id"`
}

func (r *subscribeRequest) normalize() {
	if r.Cycle == "" {
		r.Cycle = domain.BillingMonthly
	}
}

func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrNoSubscription):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, billing.ErrUnknownPlan), errors.Is(err, billing.ErrNoPriceID):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func (s *Server) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	sub, err := s.billing.Current(r.Context(), user.ID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, sub)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.normalize()

	result, err := s.billing.Subscribe(r.Context(), user.ID, req.Tier, req.Cycle, req.PaymentMethodID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.Created(w, result)
}

func (s *Server) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.normalize()

	sub, err := s.billing.ChangePlan(r.Context(), user.ID, req.Tier, req.Cycle)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, sub)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	sub, err := s.billing.Cancel(r.Context(), user.ID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, sub)
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	sub, err := s.billing.Reactivate(r.Context(), user.ID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, sub)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	methods, err := s.billing.PaymentMethods(r.Context(), user.ID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"payment_methods": methods, "total": len(methods)})
}

type addPaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	SetDefault      bool   `json:"set_default"`
}

func (s *Server) handleAddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var req addPaymentMethodRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.PaymentMethodID == "" {
		httputil.BadRequest(w, "payment_method_id is required")
		return
	}
	method, err := s.billing.AddPaymentMethod(r.Context(), user.ID, req.PaymentMethodID, req.SetDefault)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.Created(w, method)
}

func (s *Server) handleRemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := s.billing.RemovePaymentMethod(r.Context(), chi.URLParam(r, "paymentMethodID")); err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	usage, err := s.billing.Usage(r.Context(), user.ID)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, usage)
}

func (s *Server) handleUpdateBillingAddress(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	var addr domain.BillingAddress
	if !httputil.Decode(w, r, &addr) {
		return
	}
	if addr.Line1 == "" || addr.Country == "" {
		httputil.BadRequest(w, "line1 and country are required")
		return
	}
	if err := s.billing.UpdateBillingAddress(r.Context(), user.ID, addr); err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "updated"})
}

func (s *Server) handleBillingHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	limit := queryInt(r.URL.Query().Get("limit"), 10)
	invoices, err := s.billing.BillingHistory(r.Context(), user.ID, limit)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"invoices": invoices, "total": len(invoices)})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "unable to read request body")
		return
	}
	if err := s.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		httputil.BadRequest(w, "webhook verification failed")
		return
	}
	httputil.OK(w, map[string]string{"received": "true"})
}
