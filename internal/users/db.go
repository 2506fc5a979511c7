package users

import (
	"context"
	"strings"

	"github.com/uptrace/bun"

	"ms-docservices/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.Bun.NewInsert().Model(user).Exec(ctx)
	return err
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := db.Bun.NewSelect().Model(user).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername matches case-insensitively; usernames are stored
// lowercased at registration.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := db.Bun.NewSelect().Model(user).
		Where("username = ?", strings.ToLower(username)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := db.Bun.NewSelect().Model(user).
		Where("email = ?", strings.ToLower(email)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}
