package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"talkflow-service/internal/auth"
	"talkflow-service/internal/mocks"
	"talkflow-service/internal/models"
	"talkflow-service/internal/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthTestServer(t *testing.T) (*gin.Engine, *auth.JWTValidator, *mocks.UserRepositoryMock) {
	t.Helper()
	validator := auth.NewJWTValidator("test-secret")
	users := new(mocks.UserRepositoryMock)

	engine := gin.New()
	engine.GET("/whoami", AuthMiddleware(validator, users), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64("userID"), "email": c.GetString("userEmail")})
	})
	return engine, validator, users
}

func get(engine *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareResolvesActiveUser(t *testing.T) {
	engine, validator, users := newAuthTestServer(t)
	users.On("GetByEmail", mock.Anything, "alice@example.com").
		Return(models.User{ID: 3, Email: "alice@example.com", IsActive: true}, nil)

	token, err := validator.Sign("alice@example.com", time.Minute)
	require.NoError(t, err)

	rec := get(engine, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":3`)
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	engine, _, _ := newAuthTestServer(t)
	rec := get(engine, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	engine, _, _ := newAuthTestServer(t)
	rec := get(engine, "Token abc")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareBadToken(t *testing.T) {
	engine, _, _ := newAuthTestServer(t)
	rec := get(engine, "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareUnknownUser(t *testing.T) {
	engine, validator, users := newAuthTestServer(t)
	users.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(models.User{}, repositories.ErrUserNotFound)

	token, err := validator.Sign("ghost@example.com", time.Minute)
	require.NoError(t, err)

	rec := get(engine, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareInactiveUserForbidden(t *testing.T) {
	engine, validator, users := newAuthTestServer(t)
	users.On("GetByEmail", mock.Anything, "alice@example.com").
		Return(models.User{ID: 3, Email: "alice@example.com", IsActive: false}, nil)

	token, err := validator.Sign("alice@example.com", time.Minute)
	require.NoError(t, err)

	rec := get(engine, "Bearer "+token)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
