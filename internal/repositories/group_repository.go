package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"talkflow-service/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository persists groups and their memberships.
type GroupRepository interface {
	CreateGroup(ctx context.Context, name string, creatorID int64) (models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	// Members returns the users currently in the group, soft-deleted
	// memberships excluded.
	Members(ctx context.Context, groupID int64) ([]models.User, error)
	ListGroupsForUser(ctx context.Context, userID int64) ([]models.Group, error)
	DeleteGroup(ctx context.Context, groupID int64) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and auto-joins the creator, atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, name string, creatorID int64) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (group_name, created_by) VALUES ($1, $2)
        RETURNING id, group_name, created_by, is_deleted, created_at`, name, creatorID).
		StructScan(&group); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, creatorID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a group by id; deleted groups are treated as absent.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, group_name, created_by, is_deleted, created_at
        FROM groups WHERE id=$1 AND is_deleted = FALSE`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// AddMember inserts a membership, reviving a soft-deleted one if present.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
        ON CONFLICT (group_id, user_id) DO UPDATE SET is_deleted = FALSE`, groupID, userID)
	return err
}

// IsMember checks live membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members
        WHERE group_id=$1 AND user_id=$2 AND is_deleted = FALSE)`, groupID, userID)
	return exists, err
}

// Members returns every user with a live membership in the group.
func (r *GroupRepo) Members(ctx context.Context, groupID int64) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT u.id, u.email, u.first_name, u.middle_name, u.last_name, u.is_active, u.created_at
        FROM users u INNER JOIN group_members gm ON gm.user_id = u.id
        WHERE gm.group_id=$1 AND gm.is_deleted = FALSE ORDER BY u.id`, groupID)
	return users, err
}

// ListGroupsForUser returns live groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int64) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.group_name, g.created_by, g.is_deleted, g.created_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1 AND gm.is_deleted = FALSE AND g.is_deleted = FALSE
        ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// DeleteGroup soft-deletes a group.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET is_deleted = TRUE WHERE id=$1 AND is_deleted = FALSE`, groupID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}
