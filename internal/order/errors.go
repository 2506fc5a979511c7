package order

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOrderBusy is returned when the per-order transition lock cannot be
// acquired in time. Callers may retry.
var ErrOrderBusy = errors.New("order is being modified by another request")

// ValidationError reports user-correctable bad input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown resource ID.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports an authenticated but unauthorized request.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// InvalidTransitionError reports a state machine violation on either the
// status or the payment_status axis.
type InvalidTransitionError struct {
	Axis    string
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("invalid %s transition %s -> %s (allowed: %s)", e.Axis, e.From, e.To, allowed)
}

// OrderCancelledError reports a payment operation against a cancelled order.
type OrderCancelledError struct {
	OrderID string
}

func (e *OrderCancelledError) Error() string {
	return fmt.Sprintf("order %s is cancelled and cannot be paid", e.OrderID)
}

// AlreadyPaidError reports a payment attempt on an order whose payment is
// already completed. Returned before the gateway is ever contacted.
type AlreadyPaidError struct {
	OrderID string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("order %s is already paid", e.OrderID)
}

// GatewayError reports a failure from the external payment gateway. Declined
// distinguishes "the gateway rejected the payment" from "the gateway could
// not be reached"; only the former should surface as a payment decline.
type GatewayError struct {
	Declined bool
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
