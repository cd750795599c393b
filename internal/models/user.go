package models

import "time"

// User is an identity record. The messaging core only reads it; account
// management lives outside this service's scope.
type User struct {
	ID         int64     `db:"id" json:"user_id"`
	Email      string    `db:"email" json:"email"`
	FirstName  string    `db:"first_name" json:"first_name"`
	MiddleName string    `db:"middle_name" json:"middle_name,omitempty"`
	LastName   string    `db:"last_name" json:"last_name"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
