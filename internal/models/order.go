package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Fulfillment statuses. Completed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Payment statuses. The only transition is pending -> completed.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Document is the metadata kept for one uploaded file. Filename is the stored
// (random-prefixed) name, OriginalName what the customer uploaded.
type Document struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	Path         string `json:"path"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string     `bun:"id,pk" json:"id"`
	UserID          string     `bun:"user_id,notnull" json:"user_id"`
	ServiceID       string     `bun:"service_id,notnull" json:"service_id"`
	Status          string     `bun:"status,notnull" json:"status"`
	PaymentStatus   string     `bun:"payment_status,notnull" json:"payment_status"`
	Documents       []Document `bun:"documents,type:jsonb" json:"documents"`
	TotalAmount     int64      `bun:"total_amount,notnull" json:"total_amount"`
	Notes           string     `bun:"notes,nullzero" json:"notes,omitempty"`
	PaymentIntentID string     `bun:"payment_intent_id,nullzero" json:"-"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// OrderRequest is the JSON carried in the "orderData" multipart field of a
// create-order request. Uploaded files travel alongside it as "documents".
type OrderRequest struct {
	ServiceID string `json:"service_id"`
	Notes     string `json:"notes,omitempty"`
}
