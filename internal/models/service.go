package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Service is a catalog entry. Rows are seeded by migrations and read-only
// afterwards; there is no update or delete path.
type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID             string    `bun:"id,pk" json:"id"`
	Name           string    `bun:"name,unique,notnull" json:"name"`
	Description    string    `bun:"description,notnull" json:"description"`
	Category       string    `bun:"category,notnull" json:"category"`
	Price          int64     `bun:"price,notnull" json:"price"`
	ProcessingTime string    `bun:"processing_time,notnull" json:"processing_time"`
	Requirements   string    `bun:"requirements,notnull" json:"requirements"`
	Icon           string    `bun:"icon,notnull" json:"icon"`
	Badge          string    `bun:"badge,nullzero" json:"badge,omitempty"`
	BadgeColor     string    `bun:"badge_color,nullzero" json:"badge_color,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
}
