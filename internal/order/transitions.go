package order

import "ms-docservices/internal/models"

// statusTransitions is the fulfillment state machine. Completed and cancelled
// have no outbound edges. The manager never infers transitions: payment
// completion does not advance status.
var statusTransitions = map[string][]string{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

func isValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

func allowedStatusTargets(from string) []string {
	return statusTransitions[from]
}

// checkStatusTransition validates a requested fulfillment transition.
func checkStatusTransition(from, to string) error {
	for _, t := range statusTransitions[from] {
		if t == to {
			return nil
		}
	}
	return &InvalidTransitionError{
		Axis:    "status",
		From:    from,
		To:      to,
		Allowed: allowedStatusTargets(from),
	}
}

// allowedPaymentTargets returns the permitted payment_status targets from the
// given state. completed -> completed is an idempotent no-op, so it appears
// as an allowed target.
func allowedPaymentTargets(from string) []string {
	return []string{models.PaymentCompleted}
}

func isValidPaymentStatus(s string) bool {
	return s == models.PaymentPending || s == models.PaymentCompleted
}
