package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/s/lifelessons/internal/auth"
	"github.com/s/lifelessons/internal/models"
	"github.com/s/lifelessons/internal/querycache"
)

func (h *Handler) HandlePricing(w http.ResponseWriter, r *http.Request) {
	data := h.Base(w, r, "Pricing")
	h.Render(w, http.StatusOK, "pricing", data)
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	v := auth.FromContext(r.Context())
	if v.IsPremium() {
		h.Redirect(w, r, "/pricing", auth.FlashInfo, "You are already a Premium member")
		return
	}
	cs, err := h.API.CreateCheckoutSession(r.Context())
	if err != nil || cs.URL == "" {
		h.log.Warn("checkout session failed", "error", err)
		h.Redirect(w, r, "/pricing", auth.FlashError, "Could not start checkout. Please try again.")
		return
	}
	h.record(r.Context(), v, models.ActionCheckout, "", map[string]any{"session": cs.ID})
	http.Redirect(w, r, cs.URL, http.StatusSeeOther)
}

// checkoutSession falls back to the last checkout the viewer started when
// the provider redirect carried no session id.
func (h *Handler) checkoutSession(r *http.Request, v auth.Viewer) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	entry, ok, err := h.Activity.Last(r.Context(), v.ID(), models.ActionCheckout)
	if err != nil || !ok {
		return ""
	}
	var details struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(entry.Details, &details); err != nil {
		return ""
	}
	return details.Session
}

// HandlePaymentSuccess verifies the checkout session, then waits for the
// payment webhook to flip the profile to premium.
func (h *Handler) HandlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := auth.FromContext(ctx)

	sessionID := h.checkoutSession(r, v)
	if sessionID == "" {
		h.Redirect(w, r, "/pricing", auth.FlashError, "No payment session found")
		return
	}

	payment, err := h.API.VerifySession(ctx, sessionID)
	if err != nil {
		h.log.Warn("payment verification failed", "error", err)
		data := h.Base(w, r, "Payment")
		data.Message = "We could not verify your payment. If you were charged, your upgrade will appear shortly."
		h.Render(w, http.StatusOK, "payment_success", data)
		return
	}

	confirmed := h.awaitPremium(ctx, v)
	if confirmed {
		if _, err := h.Resolver.Refresh(ctx, v); err != nil {
			h.log.Warn("profile reload failed", "error", err)
		}
		h.forgetViewer(ctx, v)
	}

	data := h.Base(w, r, "Payment Successful")
	data.Payment = payment
	data.Confirmed = confirmed
	if confirmed {
		data.Viewer.User.IsPremium = true
	}
	h.Render(w, http.StatusOK, "payment_success", data)
}

// awaitPremium polls the profile until it reports premium, the attempts run
// out or the payment wait is spent.
func (h *Handler) awaitPremium(ctx context.Context, v auth.Viewer) bool {
	pollCtx, cancel := context.WithTimeout(ctx, h.Config.PaymentWait())
	defer cancel()

	attempts := max(h.Config.PaymentPollAttempts, 1)
	for i := 0; i < attempts; i++ {
		user, err := h.API.Me(pollCtx)
		if err == nil && user.IsPremium {
			return true
		}
		if err != nil {
			h.log.Debug("profile poll failed", "attempt", i+1, "error", err)
		}
		if i == attempts-1 {
			break
		}
		if pollCtx.Err() != nil {
			h.log.Info("payment wait spent before premium was confirmed", "attempt", i+1)
			break
		}
		if err := h.sleep(pollCtx, h.Config.PaymentPollInterval); err != nil {
			break
		}
	}
	if err := h.Cache.Invalidate(ctx, querycache.ProfileKey(v.ID())); err != nil {
		h.log.Warn("cache invalidation failed", "error", err)
	}
	return false
}

func (h *Handler) HandlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	data := h.Base(w, r, "Payment Cancelled")
	h.Render(w, http.StatusOK, "payment_cancel", data)
}
