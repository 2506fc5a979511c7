package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
)

// MaxDocumentsPerOrder caps uploads on a single order.
const MaxDocumentsPerOrder = 5

const (
	lockAttempts   = 5
	lockRetryDelay = 50 * time.Millisecond
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	// UpdateOrderStatus applies a compare-and-set write: the status column is
	// changed only if it still holds `from`. Returns false when the row was
	// concurrently modified (or missing).
	UpdateOrderStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error)
	SetPaymentIntentID(ctx context.Context, id, intentID string) error
}

// TransitionLock serializes the local read-validate-write step per order.
// It is never held across the payment gateway round trip.
type TransitionLock interface {
	LockOrder(orderID, token string) (bool, error)
	UnlockOrder(orderID, token string) error
}

type EventPublisher interface {
	PublishOrderCreated(order models.Order) error
	PublishOrderStatusUpdated(order models.Order) error
	PublishPaymentCompleted(order models.Order) error
}

// PaymentIntent is the narrow result the gateway adapter hands back to the
// caller: enough to complete the payment client-side.
type PaymentIntent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// PaymentGateway is the external payment collaborator. Implementations must
// honor ctx cancellation; a timeout is a failure, never a silent success.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, order models.Order) (*PaymentIntent, error)
}

// ServiceCatalog resolves service IDs at order-creation time.
type ServiceCatalog interface {
	GetByID(ctx context.Context, id string) (*models.Service, error)
}

type OrderService struct {
	DB      DBLayer
	Lock    TransitionLock
	Events  EventPublisher
	Gateway PaymentGateway
	Catalog ServiceCatalog

	// WebhookSecret authenticates the gateway's asynchronous confirmation
	// callbacks (shared-secret signature verification).
	WebhookSecret  string
	GatewayTimeout time.Duration

	logger *logger.Logger
}

func NewOrderService(db DBLayer, lock TransitionLock, events EventPublisher, gateway PaymentGateway, catalog ServiceCatalog, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:             db,
		Lock:           lock,
		Events:         events,
		Gateway:        gateway,
		Catalog:        catalog,
		GatewayTimeout: 10 * time.Second,
		logger:         log,
	}
}

// ---------------- ORDERS ----------------

// CreateOrder persists a new order in pending/pending state. TotalAmount is a
// snapshot of the service price at this instant and never changes afterwards.
func (s *OrderService) CreateOrder(ctx context.Context, principal models.Principal, req models.OrderRequest, docs []models.Document) (*models.Order, error) {
	if req.ServiceID == "" {
		return nil, &ValidationError{Field: "service_id", Reason: "service_id is required"}
	}
	if len(docs) == 0 {
		return nil, &ValidationError{Field: "documents", Reason: "at least one document is required"}
	}
	if len(docs) > MaxDocumentsPerOrder {
		return nil, &ValidationError{Field: "documents", Reason: fmt.Sprintf("at most %d documents per order", MaxDocumentsPerOrder)}
	}

	svc, err := s.Catalog.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "service", ID: req.ServiceID}
		}
		return nil, fmt.Errorf("failed to resolve service %s: %w", req.ServiceID, err)
	}

	now := time.Now()
	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        principal.ID,
		ServiceID:     svc.ID,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		Documents:     docs,
		TotalAmount:   svc.Price,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("service=%s amount=%d documents=%d", svc.ID, order.TotalAmount, len(docs)))

	if err := s.Events.PublishOrderCreated(*order); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("order created event for %s not published: %v", order.ID, err))
	}

	return order, nil
}

// GetOrder loads an order and enforces view access for the principal.
func (s *OrderService) GetOrder(ctx context.Context, principal models.Principal, id string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(*order, principal) {
		s.logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("principal %s denied on order %s", principal.ID, id))
		return nil, &ForbiddenError{Reason: "order belongs to another user"}
	}
	return order, nil
}

// ListOrdersForUser returns the user's orders in creation order.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}

// ListAllOrders returns every order. Admin access is enforced by the caller's
// routing gate (RequireAdmin); this operation trusts that the check already
// happened.
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.DB.ListOrders(ctx)
}

// UpdateStatus advances the fulfillment state machine. The principal must be
// an admin; unlike the routing gate, this check is asserted here so the
// manager never trusts an implicit caller contract.
func (s *OrderService) UpdateStatus(ctx context.Context, principal models.Principal, id, newStatus string) (*models.Order, error) {
	if !CanManage(principal) {
		return nil, &ForbiddenError{Reason: "only admins may update order status"}
	}
	if !isValidStatus(newStatus) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}

	var updated *models.Order
	err := s.withOrderLock(id, func() error {
		order, err := s.loadOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := checkStatusTransition(order.Status, newStatus); err != nil {
			return err
		}

		now := time.Now()
		applied, err := s.DB.UpdateOrderStatus(ctx, id, order.Status, newStatus, now)
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", id, err)
		}
		if !applied {
			// Lost the race to a concurrent writer; report against the
			// fresh state.
			fresh, err := s.loadOrder(ctx, id)
			if err != nil {
				return err
			}
			return checkStatusTransition(fresh.Status, newStatus)
		}

		order.Status = newStatus
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("STATUS", id, fmt.Sprintf("-> %s by %s", newStatus, principal.ID))
	if err := s.Events.PublishOrderStatusUpdated(*updated); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("status event for %s not published: %v", id, err))
	}
	return updated, nil
}

// UpdatePaymentStatus applies a payment transition. pending -> completed is
// the only real transition; completed -> completed is an idempotent no-op so
// duplicate gateway confirmations cause no second side effect. Callers are
// either the authenticated pay flow (ownership checked upstream) or the
// signature-verified gateway webhook.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id, newStatus string) (*models.Order, error) {
	if !isValidPaymentStatus(newStatus) {
		return nil, &ValidationError{Field: "payment_status", Reason: fmt.Sprintf("unknown payment status %q", newStatus)}
	}

	var updated *models.Order
	var noop bool
	err := s.withOrderLock(id, func() error {
		order, err := s.loadOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == models.StatusCancelled {
			return &OrderCancelledError{OrderID: id}
		}
		if newStatus == models.PaymentPending {
			return &InvalidTransitionError{
				Axis:    "payment_status",
				From:    order.PaymentStatus,
				To:      newStatus,
				Allowed: allowedPaymentTargets(order.PaymentStatus),
			}
		}
		if order.PaymentStatus == models.PaymentCompleted {
			noop = true
			updated = order
			return nil
		}

		now := time.Now()
		applied, err := s.DB.UpdatePaymentStatus(ctx, id, models.PaymentPending, models.PaymentCompleted, now)
		if err != nil {
			return fmt.Errorf("failed to update payment status for %s: %w", id, err)
		}
		if !applied {
			fresh, err := s.loadOrder(ctx, id)
			if err != nil {
				return err
			}
			if fresh.Status == models.StatusCancelled {
				return &OrderCancelledError{OrderID: id}
			}
			if fresh.PaymentStatus == models.PaymentCompleted {
				noop = true
				updated = fresh
				return nil
			}
			return fmt.Errorf("payment update for %s lost a concurrent race", id)
		}

		order.PaymentStatus = models.PaymentCompleted
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if noop {
		s.logger.LogPayment("CONFIRM", id, "duplicate confirmation ignored")
		return updated, nil
	}

	s.logger.LogPayment("CONFIRM", id, "payment completed")
	if err := s.Events.PublishPaymentCompleted(*updated); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("payment event for %s not published: %v", id, err))
	}
	return updated, nil
}

func (s *OrderService) loadOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "order", ID: id}
		}
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return order, nil
}

// withOrderLock runs fn while holding the per-order transition lock. The
// lock covers only the local read-validate-write step.
func (s *OrderService) withOrderLock(orderID string, fn func() error) error {
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := s.Lock.LockOrder(orderID, token)
		if err != nil {
			return fmt.Errorf("order lock error: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(lockRetryDelay)
	}
	if !acquired {
		return ErrOrderBusy
	}
	defer func() {
		if err := s.Lock.UnlockOrder(orderID, token); err != nil {
			s.logger.Warn("ORDER", fmt.Sprintf("failed to release lock on %s: %v", orderID, err))
		}
	}()

	return fn()
}
