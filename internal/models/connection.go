package models

import (
	"database/sql"
	"time"
)

// ConnectionStatus is the authorization state of a user connection.
type ConnectionStatus string

const (
	StatusPending   ConnectionStatus = "PENDING"
	StatusAccepted  ConnectionStatus = "ACCEPTED"
	StatusRejected  ConnectionStatus = "REJECTED"
	StatusWithdrawn ConnectionStatus = "WITHDRAWN"
	StatusBlocked   ConnectionStatus = "BLOCKED"
	StatusUnblocked ConnectionStatus = "UNBLOCKED"
)

// Valid reports whether s is a known status value.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusWithdrawn, StatusBlocked, StatusUnblocked:
		return true
	}
	return false
}

// Connection is the relationship record between two users. At most one row
// exists per unordered pair; sender/receiver name the initiator of the most
// recent state-changing action and are reassigned when a request is reissued.
type Connection struct {
	ID              int64            `db:"id" json:"connection_id"`
	SenderID        int64            `db:"sender_id" json:"sender_id"`
	ReceiverID      int64            `db:"receiver_id" json:"receiver_id"`
	BlockedByUserID sql.NullInt64    `db:"blocked_by_user_id" json:"-"`
	Status          ConnectionStatus `db:"status" json:"status"`
	CreatedOn       time.Time        `db:"created_on" json:"created_on"`
	UpdatedOn       time.Time        `db:"updated_on" json:"updated_on"`
}

// Involves reports whether userID is a participant of the connection.
func (c Connection) Involves(userID int64) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

// OtherParty returns the participant that is not userID.
func (c Connection) OtherParty(userID int64) int64 {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// ConnectionSummary is the API-facing view of a connection joined with the
// counterpart's user data.
type ConnectionSummary struct {
	ConnectionID int64  `json:"connection_id"`
	UserID       int64  `json:"user_id"`
	FirstName    string `json:"first_name"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Status       string `json:"status"`
}
