package order

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"

	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
)

// InitStripe initializes the Stripe API with the secret key.
func InitStripe(secretKey string) {
	stripe.Key = secretKey
}

// In-flight guard so concurrent pay-now requests for the same order do not
// create duplicate intents.
var paymentIntentLocks = make(map[string]bool)
var paymentIntentMutex = &sync.Mutex{}

// CreatePaymentIntent starts a payment for an order. It fails fast on
// already-paid and cancelled orders without contacting the gateway, and the
// gateway round trip happens outside any order lock, bounded by
// GatewayTimeout.
func (s *OrderService) CreatePaymentIntent(ctx context.Context, principal models.Principal, orderID string) (*PaymentIntent, error) {
	paymentIntentMutex.Lock()
	if _, inFlight := paymentIntentLocks[orderID]; inFlight {
		paymentIntentMutex.Unlock()
		s.logger.Warn("PAYMENT", fmt.Sprintf("payment intent creation for order %s already in progress", orderID))
		time.Sleep(500 * time.Millisecond)
		return s.CreatePaymentIntent(ctx, principal, orderID)
	}
	paymentIntentLocks[orderID] = true
	paymentIntentMutex.Unlock()

	defer func() {
		paymentIntentMutex.Lock()
		delete(paymentIntentLocks, orderID)
		paymentIntentMutex.Unlock()
	}()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanView(*order, principal) {
		return nil, &ForbiddenError{Reason: "order belongs to another user"}
	}
	if order.Status == models.StatusCancelled {
		return nil, &OrderCancelledError{OrderID: orderID}
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return nil, &AlreadyPaidError{OrderID: orderID}
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.GatewayTimeout)
	defer cancel()

	intent, err := s.Gateway.CreateIntent(gwCtx, *order)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("gateway call for order %s failed: %v", orderID, err))
		return nil, err
	}

	if err := s.DB.SetPaymentIntentID(ctx, orderID, intent.ID); err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("failed to record intent %s on order %s: %v", intent.ID, orderID, err))
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}

	s.logger.LogPayment("INTENT", orderID, fmt.Sprintf("created intent %s for amount %d", intent.ID, order.TotalAmount))
	return intent, nil
}

// StripeGateway is the Stripe-backed PaymentGateway implementation.
type StripeGateway struct {
	Currency string
	Logger   *logger.Logger
}

func (g *StripeGateway) CreateIntent(ctx context.Context, order models.Order) (*PaymentIntent, error) {
	// Reuse a still-live intent if the order already has one.
	if order.PaymentIntentID != "" {
		getParams := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}
		existing, err := paymentintent.Get(order.PaymentIntentID, getParams)
		if err == nil && existing.Status != stripe.PaymentIntentStatusCanceled && existing.Status != stripe.PaymentIntentStatusSucceeded {
			g.Logger.Info("PAYMENT", fmt.Sprintf("reusing payment intent %s (status %s)", existing.ID, existing.Status))
			return &PaymentIntent{ID: existing.ID, ClientSecret: existing.ClientSecret}, nil
		}
		if err != nil {
			g.Logger.Warn("PAYMENT", fmt.Sprintf("could not retrieve existing intent %s, creating a new one: %v", order.PaymentIntentID, err))
		}
	}

	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(order.TotalAmount * 100),
		Currency: stripe.String(g.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", order.ID)

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// classifyStripeError separates declines from gateway faults.
func classifyStripeError(err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		if stripeErr.Type == stripe.ErrorTypeCard {
			return &GatewayError{Declined: true, Message: "payment declined", Err: err}
		}
		return &GatewayError{Declined: false, Message: "payment gateway error", Err: err}
	}
	return &GatewayError{Declined: false, Message: "payment gateway unreachable", Err: err}
}

// WebhookError carries both a safe public message and the internal detail for
// a failed webhook delivery.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook processes the gateway's asynchronous confirmations.
// Signature verification against WebhookSecret is the shared-secret
// authentication for this sessionless path. A duplicate success confirmation
// lands in the idempotent payment path and is ignored.
func (s *OrderService) HandleStripeWebhook(r *http.Request) error {
	if s.WebhookSecret == "" {
		s.logger.Error("WEBHOOK", "stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret, opts)
	if err != nil {
		s.logger.LogSecurity("WEBHOOK", fmt.Sprintf("signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.logger.Info("WEBHOOK", fmt.Sprintf("processing stripe event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		orderID, werr := orderIDFromEvent(event)
		if werr != nil {
			return werr
		}
		if _, err := s.UpdatePaymentStatus(r.Context(), orderID, models.PaymentCompleted); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf("failed to complete payment for order %s: %v", orderID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("failed to complete payment for order %s: %v", orderID, err),
				OriginalErr:   err,
			}
		}
		s.logger.LogPayment("WEBHOOK", orderID, "gateway confirmed payment")

	case "payment_intent.payment_failed":
		orderID, werr := orderIDFromEvent(event)
		if werr != nil {
			return werr
		}
		// No automatic retry or cancellation: the customer re-initiates
		// payment explicitly.
		s.logger.LogPayment("WEBHOOK", orderID, "gateway reported payment failure, order left pending")

	default:
		s.logger.Info("WEBHOOK", fmt.Sprintf("unhandled event type: %s", event.Type))
	}

	return nil
}

func orderIDFromEvent(event stripe.Event) (string, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}
	orderID, exists := intent.Metadata["order_id"]
	if !exists {
		return "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: "payment intent has no order_id in metadata",
		}
	}
	return orderID, nil
}
