package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/order"
	"ms-docservices/internal/utils"
)

// CreatePaymentIntent starts a payment for the caller's order and returns the
// gateway client secret.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "orderId")

	intent, err := h.OrderService.CreatePaymentIntent(r.Context(), principal, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment intent created", intent))
}

// UpdatePaymentStatus lets an admin record a payment outcome directly, e.g.
// for payments collected outside the gateway. Routed behind the admin gate.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var body struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.OrderService.UpdatePaymentStatus(r.Context(), orderID, body.PaymentStatus)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// StripeWebhook receives the gateway's asynchronous confirmations. No session
// auth; authenticity comes from signature verification inside the service.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.OrderService.HandleStripeWebhook(r); err != nil {
		var webhookErr *order.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("%s: %s", webhookErr.Category, webhookErr.InternalError))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("unexpected error: %v", err))
		http.Error(w, "Webhook processing error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}
