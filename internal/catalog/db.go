package catalog

import (
	"context"

	"github.com/uptrace/bun"

	"ms-docservices/internal/models"
)

// DB reads the seeded service catalog. The catalog has no write path; rows
// come from migrations only.
type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (db *DB) ListAll(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := db.Bun.NewSelect().Model(&services).Order("name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (db *DB) ListByCategory(ctx context.Context, category string) ([]models.Service, error) {
	var services []models.Service
	err := db.Bun.NewSelect().Model(&services).
		Where("category = ?", category).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*models.Service, error) {
	svc := new(models.Service)
	err := db.Bun.NewSelect().Model(svc).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return svc, nil
}
