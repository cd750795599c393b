package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"talkflow-service/internal/models"
	"talkflow-service/internal/repositories"
)

// ListKind selects a connection listing.
type ListKind string

const (
	ListSent     ListKind = "sent"
	ListPending  ListKind = "pending"
	ListAccepted ListKind = "accepted"
	ListBlocked  ListKind = "blocked"
)

// Service applies the connection state machine over the connection store.
// Every status write is a compare-and-set against the status the service
// read, so two concurrent transitions cannot both succeed from the same
// starting state.
type Service struct {
	connections repositories.ConnectionRepository
	users       repositories.UserRepository
	logger      *zap.Logger
}

// NewService constructs a Service.
func NewService(connections repositories.ConnectionRepository, users repositories.UserRepository, logger *zap.Logger) *Service {
	return &Service{connections: connections, users: users, logger: logger}
}

// Request creates a PENDING connection from sender to receiver, reusing a
// terminal record (UNBLOCKED/REJECTED/WITHDRAWN) in place when one exists.
func (s *Service) Request(ctx context.Context, senderID, receiverID int64) (models.Connection, error) {
	if senderID == receiverID {
		return models.Connection{}, ErrSelfAction
	}
	if err := s.ensureUsersExist(ctx, senderID, receiverID); err != nil {
		return models.Connection{}, err
	}

	existing, err := s.connections.FindBetween(ctx, senderID, receiverID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		created, err := s.connections.Create(ctx, models.Connection{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.StatusPending,
		})
		if err != nil {
			return models.Connection{}, fmt.Errorf("create connection: %w", err)
		}
		s.logger.Info("connection request created",
			zap.Int64("sender_id", senderID), zap.Int64("receiver_id", receiverID))
		return created, nil
	}
	if err != nil {
		return models.Connection{}, err
	}

	updated, err := Reissue(existing, senderID, receiverID)
	if err != nil {
		s.logger.Warn("connection request rejected",
			zap.Int64("sender_id", senderID), zap.Int64("receiver_id", receiverID),
			zap.String("status", string(existing.Status)))
		return models.Connection{}, err
	}
	saved, err := s.connections.UpdateStatus(ctx, existing.ID, existing.Status, updated)
	if err != nil {
		return models.Connection{}, err
	}
	s.logger.Info("connection request reissued",
		zap.Int64("connection_id", saved.ID), zap.Int64("sender_id", senderID))
	return saved, nil
}

// Block moves the pair to BLOCKED on behalf of actor, creating the record
// directly in BLOCKED when no prior relationship exists.
func (s *Service) Block(ctx context.Context, actorID, targetID int64) (models.Connection, error) {
	if actorID == targetID {
		return models.Connection{}, ErrSelfAction
	}
	if err := s.ensureUsersExist(ctx, actorID, targetID); err != nil {
		return models.Connection{}, err
	}

	existing, err := s.connections.FindBetween(ctx, actorID, targetID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		created, err := s.connections.Create(ctx, models.Connection{
			SenderID:        actorID,
			ReceiverID:      targetID,
			BlockedByUserID: sql.NullInt64{Int64: actorID, Valid: true},
			Status:          models.StatusBlocked,
		})
		if err != nil {
			return models.Connection{}, fmt.Errorf("create blocked connection: %w", err)
		}
		s.logger.Info("blocked with no prior connection",
			zap.Int64("actor_id", actorID), zap.Int64("target_id", targetID))
		return created, nil
	}
	if err != nil {
		return models.Connection{}, err
	}

	updated, err := ApplyBlock(existing, actorID)
	if err != nil {
		return models.Connection{}, err
	}
	saved, err := s.connections.UpdateStatus(ctx, existing.ID, existing.Status, updated)
	if err != nil {
		return models.Connection{}, err
	}
	s.logger.Info("connection blocked",
		zap.Int64("connection_id", saved.ID), zap.Int64("actor_id", actorID))
	return saved, nil
}

// UpdateStatus applies an accept/reject/withdraw/unblock transition.
func (s *Service) UpdateStatus(ctx context.Context, actorID, connectionID int64, newStatus models.ConnectionStatus) (models.Connection, error) {
	existing, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}

	updated, err := Transition(existing, actorID, newStatus)
	if err != nil {
		s.logger.Warn("status transition rejected",
			zap.Int64("connection_id", connectionID), zap.Int64("actor_id", actorID),
			zap.String("from", string(existing.Status)), zap.String("to", string(newStatus)),
			zap.Error(err))
		return models.Connection{}, err
	}

	saved, err := s.connections.UpdateStatus(ctx, connectionID, existing.Status, updated)
	if err != nil {
		return models.Connection{}, err
	}
	s.logger.Info("connection status updated",
		zap.Int64("connection_id", connectionID),
		zap.String("from", string(existing.Status)), zap.String("to", string(newStatus)))
	return saved, nil
}

// IsAccepted reports whether an ACCEPTED connection exists between two users,
// independent of which side is stored as sender.
func (s *Service) IsAccepted(ctx context.Context, userA, userB int64) (bool, error) {
	conn, err := s.connections.FindBetween(ctx, userA, userB)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conn.Status == models.StatusAccepted, nil
}

// List returns connection summaries for the user, joined with the
// counterpart's user data.
func (s *Service) List(ctx context.Context, userID int64, kind ListKind) ([]models.ConnectionSummary, error) {
	var (
		conns []models.Connection
		err   error
	)
	switch kind {
	case ListSent:
		conns, err = s.connections.ListByStatusForSender(ctx, userID, models.StatusPending)
	case ListPending:
		conns, err = s.connections.ListByStatusForReceiver(ctx, userID, models.StatusPending)
	case ListAccepted:
		conns, err = s.connections.ListByStatusInvolving(ctx, userID, models.StatusAccepted)
	case ListBlocked:
		conns, err = s.connections.ListByStatusInvolving(ctx, userID, models.StatusBlocked)
	default:
		return nil, fmt.Errorf("%w: list kind %q", ErrUnsupportedStatus, kind)
	}
	if err != nil {
		return nil, err
	}

	// Blocked listings only show pairs the caller blocked.
	if kind == ListBlocked {
		filtered := conns[:0]
		for _, c := range conns {
			if c.BlockedByUserID.Valid && c.BlockedByUserID.Int64 == userID {
				filtered = append(filtered, c)
			}
		}
		conns = filtered
	}

	otherIDs := make([]int64, 0, len(conns))
	seen := map[int64]struct{}{}
	for _, c := range conns {
		other := c.OtherParty(userID)
		if _, ok := seen[other]; !ok {
			seen[other] = struct{}{}
			otherIDs = append(otherIDs, other)
		}
	}

	users, err := s.users.BulkByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	userByID := make(map[int64]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	summaries := make([]models.ConnectionSummary, 0, len(conns))
	for _, c := range conns {
		other, ok := userByID[c.OtherParty(userID)]
		if !ok {
			continue
		}
		summaries = append(summaries, models.ConnectionSummary{
			ConnectionID: c.ID,
			UserID:       other.ID,
			FirstName:    other.FirstName,
			MiddleName:   other.MiddleName,
			LastName:     other.LastName,
			Email:        other.Email,
			Status:       string(c.Status),
		})
	}
	return summaries, nil
}

func (s *Service) ensureUsersExist(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
