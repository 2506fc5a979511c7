package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Username  string    `bun:"username,unique,notnull" json:"username"`
	Password  string    `bun:"password,notnull" json:"-"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	Phone     string    `bun:"phone,nullzero" json:"phone,omitempty"`
	Address   string    `bun:"address,nullzero" json:"address,omitempty"`
	Role      string    `bun:"role,notnull,default:'user'" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Principal is the authenticated identity extracted from the session token.
// It is passed explicitly into every service call that needs authorization.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
