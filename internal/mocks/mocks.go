package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"talkflow-service/internal/models"
	"talkflow-service/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ConnectionRepositoryMock struct {
	mock.Mock
}

func (m *ConnectionRepositoryMock) FindBetween(ctx context.Context, userA, userB int64) (models.Connection, error) {
	args := m.Called(ctx, userA, userB)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) GetByID(ctx context.Context, connectionID int64) (models.Connection, error) {
	args := m.Called(ctx, connectionID)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) Create(ctx context.Context, conn models.Connection) (models.Connection, error) {
	args := m.Called(ctx, conn)
	var created models.Connection
	if val := args.Get(0); val != nil {
		created = val.(models.Connection)
	}
	return created, args.Error(1)
}

func (m *ConnectionRepositoryMock) UpdateStatus(ctx context.Context, connectionID int64, fromStatus models.ConnectionStatus, updated models.Connection) (models.Connection, error) {
	args := m.Called(ctx, connectionID, fromStatus, updated)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListByStatusForSender(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	args := m.Called(ctx, userID, status)
	var conns []models.Connection
	if val := args.Get(0); val != nil {
		conns = val.([]models.Connection)
	}
	return conns, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListByStatusForReceiver(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	args := m.Called(ctx, userID, status)
	var conns []models.Connection
	if val := args.Get(0); val != nil {
		conns = val.([]models.Connection)
	}
	return conns, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListByStatusInvolving(ctx context.Context, userID int64, status models.ConnectionStatus) ([]models.Connection, error) {
	args := m.Called(ctx, userID, status)
	var conns []models.Connection
	if val := args.Get(0); val != nil {
		conns = val.([]models.Connection)
	}
	return conns, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, name string, creatorID int64) (models.Group, error) {
	args := m.Called(ctx, name, creatorID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID, userID int64) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) Members(ctx context.Context, groupID int64) ([]models.User, error) {
	args := m.Called(ctx, groupID)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int64) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreatePrivateMessage(ctx context.Context, senderID, recipientID int64, content string) (models.Message, error) {
	args := m.Called(ctx, senderID, recipientID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateGroupMessage(ctx context.Context, senderID, groupID int64, content string) (models.Message, error) {
	args := m.Called(ctx, senderID, groupID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) LatestByChatIDs(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	args := m.Called(ctx, chatIDs)
	var latest map[string]models.Message
	if val := args.Get(0); val != nil {
		latest = val.(map[string]models.Message)
	}
	return latest, args.Error(1)
}

func (m *MessageRepositoryMock) ListByChatID(ctx context.Context, chatID string) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ConnectionRepository = (*ConnectionRepositoryMock)(nil)
var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
