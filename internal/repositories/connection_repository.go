package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"talkflow-service/internal/models"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrStatusMoved signals that a compare-and-set update lost the race:
	// the row's status changed between read and write.
	ErrStatusMoved = errors.New("connection status changed concurrently")
)

// ConnectionRepository persists pairwise user connections. Lookups over a
// pair are symmetric: (a,b) matches a row stored as (b,a).
type ConnectionRepository interface {
	FindBetween(ctx context.Context, userA, userB int64) (models.Connection, error)
	GetByID(ctx context.Context, connectionID int64) (models.Connection, error)
	Create(ctx context.Context, conn models.Connection) (models.Connection, error)
	// UpdateStatus applies a transition atomically: the write succeeds only
	// if the row still holds fromStatus, otherwise ErrStatusMoved.
	UpdateStatus(ctx context.Context, connectionID int64, fromStatus models.ConnectionStatus, updated models.Connection) (models.Connection, error)
	ListByStatusForSender(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error)
	ListByStatusForReceiver(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error)
	ListByStatusInvolving(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error)
}

// ConnectionRepo is a sqlx implementation of ConnectionRepository.
type ConnectionRepo struct {
	db *sqlx.DB
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionColumns = `id, sender_id, receiver_id, blocked_by_user_id, status, created_on, updated_on`

// FindBetween returns the single connection row for an unordered user pair.
func (r *ConnectionRepo) FindBetween(ctx context.Context, userA, userB int64) (models.Connection, error) {
	var conn models.Connection
	query := `SELECT ` + connectionColumns + ` FROM user_connections
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)`
	err := r.db.GetContext(ctx, &conn, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// GetByID fetches a connection by id.
func (r *ConnectionRepo) GetByID(ctx context.Context, connectionID int64) (models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT `+connectionColumns+` FROM user_connections WHERE id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// Create inserts a new connection record.
func (r *ConnectionRepo) Create(ctx context.Context, conn models.Connection) (models.Connection, error) {
	query := `INSERT INTO user_connections (sender_id, receiver_id, blocked_by_user_id, status)
        VALUES ($1, $2, $3, $4) RETURNING ` + connectionColumns
	var created models.Connection
	err := r.db.QueryRowxContext(ctx, query, conn.SenderID, conn.ReceiverID, conn.BlockedByUserID, conn.Status).
		StructScan(&created)
	return created, err
}

// UpdateStatus rewrites the mutable fields of a connection row, guarded by
// the status the caller read. Roles may be reassigned here (a reissued
// request swaps sender/receiver).
func (r *ConnectionRepo) UpdateStatus(ctx context.Context, connectionID int64, fromStatus models.ConnectionStatus, updated models.Connection) (models.Connection, error) {
	query := `UPDATE user_connections
        SET sender_id=$1, receiver_id=$2, blocked_by_user_id=$3, status=$4, updated_on=NOW()
        WHERE id=$5 AND status=$6
        RETURNING ` + connectionColumns
	var result models.Connection
	err := r.db.QueryRowxContext(ctx, query,
		updated.SenderID, updated.ReceiverID, updated.BlockedByUserID, updated.Status,
		connectionID, fromStatus).StructScan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		// Row exists but the guard failed, or the row is gone. Either way the
		// caller's view is stale.
		return models.Connection{}, ErrStatusMoved
	}
	return result, err
}

// ListByStatusForSender returns connections with the given status where the
// user is the current sender (e.g. sent requests).
func (r *ConnectionRepo) ListByStatusForSender(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, `SELECT `+connectionColumns+` FROM user_connections
        WHERE sender_id=$1 AND status=$2 ORDER BY updated_on DESC`, userID, status)
	return conns, err
}

// ListByStatusForReceiver returns connections with the given status where the
// user is the current receiver (e.g. incoming pending requests).
func (r *ConnectionRepo) ListByStatusForReceiver(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, `SELECT `+connectionColumns+` FROM user_connections
        WHERE receiver_id=$1 AND status=$2 ORDER BY updated_on DESC`, userID, status)
	return conns, err
}

// ListByStatusInvolving returns connections with the given status where the
// user is either participant (e.g. accepted connections, blocks).
func (r *ConnectionRepo) ListByStatusInvolving(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, `SELECT `+connectionColumns+` FROM user_connections
        WHERE (sender_id=$1 OR receiver_id=$1) AND status=$2 ORDER BY updated_on DESC`, userID, status)
	return conns, err
}
