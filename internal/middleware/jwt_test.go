package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newProtectedRouter(handler gin.HandlerFunc, middlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middlewares...)
	router.GET("/", handler)
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTRequiresBearerToken(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}
	var seenUser, seenLogID string
	router := newProtectedRouter(func(c *gin.Context) {
		seenUser = CurrentUser(c).UserID
		seenLogID = c.GetString(logger.UserIDKey)
		c.Status(http.StatusNoContent)
	}, JWT(stubValidator{claims: claims}))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad").Code)

	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer good").Code)
	assert.Equal(t, "u1", seenUser)
	assert.Equal(t, "u1", seenLogID)
}

func TestOptionalJWTAllowsAnonymous(t *testing.T) {
	var seen *models.JWTClaims
	router := newProtectedRouter(func(c *gin.Context) {
		seen = CurrentUser(c)
		c.Status(http.StatusNoContent)
	}, OptionalJWT(stubValidator{claims: &models.JWTClaims{UserID: "u2"}}))

	assert.Equal(t, http.StatusNoContent, serve(router, "").Code)
	assert.Nil(t, seen)

	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer bad").Code)
	assert.Nil(t, seen)

	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer good").Code)
	assert.Equal(t, "u2", seen.UserID)
}

func TestRequireReviewer(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	teacher := newProtectedRouter(ok, JWT(stubValidator{claims: &models.JWTClaims{UserID: "t", Role: models.RoleTeacher}}), RequireReviewer())
	assert.Equal(t, http.StatusForbidden, serve(teacher, "Bearer good").Code)

	vp := newProtectedRouter(ok, JWT(stubValidator{claims: &models.JWTClaims{UserID: "v", Role: models.RoleVicePrincipal}}), RequireReviewer())
	assert.Equal(t, http.StatusNoContent, serve(vp, "Bearer good").Code)

	anonymous := newProtectedRouter(ok, RequireReviewer())
	assert.Equal(t, http.StatusUnauthorized, serve(anonymous, "").Code)
}
