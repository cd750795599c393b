package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talkflow-service/internal/connections"
	"talkflow-service/internal/mocks"
	"talkflow-service/internal/models"
	"talkflow-service/internal/repositories"
)

type groupTestServer struct {
	engine   *gin.Engine
	groups   *mocks.GroupRepositoryMock
	users    *mocks.UserRepositoryMock
	connRepo *mocks.ConnectionRepositoryMock
}

func newGroupTestServer(userID int64) *groupTestServer {
	s := &groupTestServer{
		groups:   new(mocks.GroupRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		connRepo: new(mocks.ConnectionRepositoryMock),
	}
	connService := connections.NewService(s.connRepo, s.users, zap.NewNop())
	handler := NewGroupHandler(s.groups, s.users, connService, nil)

	s.engine = gin.New()
	s.engine.POST("/groups", asUser(userID), handler.CreateGroup)
	s.engine.GET("/groups", asUser(userID), handler.ListGroups)
	s.engine.POST("/groups/:group_id/members", asUser(userID), handler.AddMember)
	s.engine.GET("/groups/:group_id/members", asUser(userID), handler.ListMembers)
	s.engine.DELETE("/groups/:group_id", asUser(userID), handler.DeleteGroup)
	return s
}

func TestCreateGroupEndpoint(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("CreateGroup", mock.Anything, "weekend plans", int64(1)).
		Return(models.Group{ID: 11, GroupName: "weekend plans", CreatedBy: 1}, nil).Once()

	rec := performJSON(t, s.engine, http.MethodPost, "/groups", gin.H{"group_name": "weekend plans"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		GroupID int64 `json:"group_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(11), resp.GroupID)
	s.groups.AssertExpectations(t)
}

func TestCreateGroupEndpointRequiresName(t *testing.T) {
	s := newGroupTestServer(1)
	rec := performJSON(t, s.engine, http.MethodPost, "/groups", gin.H{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddMemberEndpoint(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)
	s.users.On("GetByID", mock.Anything, int64(2)).Return(models.User{ID: 2, IsActive: true}, nil)
	s.connRepo.On("FindBetween", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{Status: models.StatusAccepted}, nil)
	s.groups.On("IsMember", mock.Anything, int64(11), int64(2)).Return(false, nil)
	s.groups.On("AddMember", mock.Anything, int64(11), int64(2)).Return(nil).Once()

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/11/members", gin.H{"user_id": 2})

	require.Equal(t, http.StatusNoContent, rec.Code)
	s.groups.AssertExpectations(t)
}

func TestAddMemberEndpointNonAdminForbidden(t *testing.T) {
	s := newGroupTestServer(2)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/11/members", gin.H{"user_id": 3})
	require.Equal(t, http.StatusForbidden, rec.Code)
	s.groups.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddMemberEndpointRequiresAcceptedConnection(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)
	s.users.On("GetByID", mock.Anything, int64(2)).Return(models.User{ID: 2, IsActive: true}, nil)
	s.connRepo.On("FindBetween", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{}, repositories.ErrConnectionNotFound)

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/11/members", gin.H{"user_id": 2})
	require.Equal(t, http.StatusForbidden, rec.Code)
	s.groups.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddMemberEndpointInactiveTargetConflicts(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)
	s.users.On("GetByID", mock.Anything, int64(2)).Return(models.User{ID: 2, IsActive: false}, nil)

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/11/members", gin.H{"user_id": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddMemberEndpointAlreadyMemberConflicts(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)
	s.users.On("GetByID", mock.Anything, int64(2)).Return(models.User{ID: 2, IsActive: true}, nil)
	s.connRepo.On("FindBetween", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{Status: models.StatusAccepted}, nil)
	s.groups.On("IsMember", mock.Anything, int64(11), int64(2)).Return(true, nil)

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/11/members", gin.H{"user_id": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
	s.groups.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddMemberEndpointUnknownGroup(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(99)).Return(models.Group{}, repositories.ErrGroupNotFound)

	rec := performJSON(t, s.engine, http.MethodPost, "/groups/99/members", gin.H{"user_id": 2})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMembersEndpointMemberOnly(t *testing.T) {
	s := newGroupTestServer(3)
	s.groups.On("IsMember", mock.Anything, int64(11), int64(3)).Return(false, nil)

	rec := performJSON(t, s.engine, http.MethodGet, "/groups/11/members", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembersEndpoint(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("IsMember", mock.Anything, int64(11), int64(1)).Return(true, nil)
	s.groups.On("Members", mock.Anything, int64(11)).Return([]models.User{
		{ID: 1, Email: "alice@example.com"},
		{ID: 2, Email: "bob@example.com"},
	}, nil)

	rec := performJSON(t, s.engine, http.MethodGet, "/groups/11/members", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Members []models.User `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 2)
}

func TestDeleteGroupEndpointAdminOnly(t *testing.T) {
	s := newGroupTestServer(2)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)

	rec := performJSON(t, s.engine, http.MethodDelete, "/groups/11", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	s.groups.AssertNotCalled(t, "DeleteGroup", mock.Anything, mock.Anything)
}

func TestDeleteGroupEndpoint(t *testing.T) {
	s := newGroupTestServer(1)
	s.groups.On("GetGroup", mock.Anything, int64(11)).Return(models.Group{ID: 11, CreatedBy: 1}, nil)
	s.groups.On("DeleteGroup", mock.Anything, int64(11)).Return(nil).Once()

	rec := performJSON(t, s.engine, http.MethodDelete, "/groups/11", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	s.groups.AssertExpectations(t)
}
