package connections

import (
	"database/sql"
	"errors"

	"talkflow-service/internal/models"
)

var (
	// ErrSelfAction rejects connection actions targeting the actor itself.
	ErrSelfAction = errors.New("cannot target yourself")
	// ErrAlreadyConnected rejects a new request while PENDING, ACCEPTED or
	// BLOCKED state exists for the pair.
	ErrAlreadyConnected = errors.New("connection already exists")
	// ErrAlreadyBlocked rejects blocking a pair that is already blocked.
	ErrAlreadyBlocked = errors.New("user is already blocked")
	// ErrNotParticipant rejects actions on a connection the actor is not
	// party to.
	ErrNotParticipant = errors.New("not a participant in this connection")
	// ErrNotAllowed rejects a transition the actor's current role does not
	// permit (wrong side accepting, non-blocker unblocking, and so on).
	ErrNotAllowed = errors.New("actor may not perform this transition")
	// ErrInvalidTransition rejects a transition the current status does not
	// permit; a state conflict, not an authorization failure.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnsupportedStatus rejects unknown or non-requestable target states.
	ErrUnsupportedStatus = errors.New("unsupported status")
)

// reusableForRequest lists the statuses from which a connection record is
// reused in place by a fresh request, with roles reassigned to the new
// requester.
func reusableForRequest(status models.ConnectionStatus) bool {
	switch status {
	case models.StatusUnblocked, models.StatusRejected, models.StatusWithdrawn:
		return true
	}
	return false
}

// Reissue applies a new connection request to an existing record. The record
// is mutated in place, never duplicated: sender/receiver are role labels for
// the most recent initiator, not fixed ownership.
func Reissue(conn models.Connection, requesterID, targetID int64) (models.Connection, error) {
	if !reusableForRequest(conn.Status) {
		return models.Connection{}, ErrAlreadyConnected
	}
	conn.SenderID = requesterID
	conn.ReceiverID = targetID
	conn.Status = models.StatusPending
	conn.BlockedByUserID = sql.NullInt64{}
	return conn, nil
}

// ApplyBlock moves an existing record to BLOCKED on behalf of actor. Either
// participant may block unless the pair is already blocked.
func ApplyBlock(conn models.Connection, actorID int64) (models.Connection, error) {
	if !conn.Involves(actorID) {
		return models.Connection{}, ErrNotParticipant
	}
	if conn.Status == models.StatusBlocked {
		return models.Connection{}, ErrAlreadyBlocked
	}
	conn.Status = models.StatusBlocked
	conn.BlockedByUserID = sql.NullInt64{Int64: actorID, Valid: true}
	return conn, nil
}

// Transition validates and applies a requested status change invoked through
// the generic status-update path. Roles are derived from the current record:
// only the receiver may accept or reject, only the sender may withdraw, only
// the recorded blocker may unblock. PENDING is never reachable through this
// path; reissuing a request goes through Reissue.
func Transition(conn models.Connection, actorID int64, newStatus models.ConnectionStatus) (models.Connection, error) {
	if !conn.Involves(actorID) {
		return models.Connection{}, ErrNotParticipant
	}
	if !newStatus.Valid() {
		return models.Connection{}, ErrUnsupportedStatus
	}

	switch newStatus {
	case models.StatusPending:
		return models.Connection{}, ErrInvalidTransition

	case models.StatusAccepted, models.StatusRejected:
		if actorID != conn.ReceiverID {
			return models.Connection{}, ErrNotAllowed
		}
		if conn.Status != models.StatusPending {
			return models.Connection{}, ErrInvalidTransition
		}
		conn.Status = newStatus
		return conn, nil

	case models.StatusWithdrawn:
		if conn.Status != models.StatusPending {
			return models.Connection{}, ErrInvalidTransition
		}
		if actorID != conn.SenderID {
			return models.Connection{}, ErrNotAllowed
		}
		conn.Status = models.StatusWithdrawn
		return conn, nil

	case models.StatusUnblocked:
		if conn.Status != models.StatusBlocked {
			return models.Connection{}, ErrInvalidTransition
		}
		if !conn.BlockedByUserID.Valid || actorID != conn.BlockedByUserID.Int64 {
			return models.Connection{}, ErrNotAllowed
		}
		conn.Status = models.StatusUnblocked
		conn.BlockedByUserID = sql.NullInt64{}
		return conn, nil

	default:
		// BLOCKED goes through the dedicated block operation.
		return models.Connection{}, ErrUnsupportedStatus
	}
}
