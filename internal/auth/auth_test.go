package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/model"
)

const secret = "test-secret"

func TestIssueAndParse(t *testing.T) {
	p := Principal{ID: uuid.New(), Type: model.PartyProvider}
	token, err := IssueToken(secret, p, time.Hour)
	require.NoError(t, err)

	got, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	token, err := IssueToken(secret, Principal{ID: uuid.New(), Type: model.PartyCustomer}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.Error(t, err)
}

func TestParse_InvalidType(t *testing.T) {
	token, err := IssueToken(secret, Principal{ID: uuid.New(), Type: "admin"}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.Error(t, err)
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			c.JSON(apperror.HTTPStatus(c.Errors.Last().Err), gin.H{"error": c.Errors.Last().Error()})
		}
	})
	r.GET("/me", Middleware(secret), func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": p.ID.String(), "type": p.Type})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	r := newRouter()
	id := uuid.New()
	token, err := IssueToken(secret, Principal{ID: id, Type: model.PartyCustomer}, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
