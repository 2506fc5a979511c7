package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"ms-docservices/internal/models"
)

// DB is the bun-backed order repository. Status writes are compare-and-set:
// the UPDATE only applies if the row still holds the expected current value,
// so two racing writers cannot both succeed.
type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (db *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := db.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

func (db *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	order := new(models.Order)
	err := db.Bun.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (db *DB) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := db.Bun.NewSelect().Model(&orders).Order("created_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (db *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := db.Bun.NewSelect().Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus moves status from -> to. Returns false when the row no
// longer holds `from` (a concurrent writer got there first) or does not exist.
func (db *DB) UpdateOrderStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	res, err := db.Bun.NewUpdate().Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// UpdatePaymentStatus moves payment_status from -> to, refusing to touch
// cancelled orders at the SQL level as a second line of defense.
func (db *DB) UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) (bool, error) {
	res, err := db.Bun.NewUpdate().Model((*models.Order)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("payment_status = ?", from).
		Where("status != ?", models.StatusCancelled).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (db *DB) SetPaymentIntentID(ctx context.Context, id, intentID string) error {
	_, err := db.Bun.NewUpdate().Model((*models.Order)(nil)).
		Set("payment_intent_id = ?", intentID).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
