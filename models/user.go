package models

import "time"

// Operator roles. Analysts may read reports; only admins may purge or rewrite.
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=analyst admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// User is a back-office operator account.
type User struct {
	ID             int       `json:"id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	HashedPassword []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
