package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/middleware/requestid"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", handler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJSONOmitsEmptyMeta(t *testing.T) {
	w := serve(func(c *gin.Context) {
		JSON(c, http.StatusOK, gin.H{"pending_count": 3}, map[string]interface{}{})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":{"pending_count":3}}`, w.Body.String())
}

func TestErrorCarriesRequestID(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNotFound, "change request not found"))
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "req-42", body.Meta["request_id"])
}

func TestErrorHidesUnknownFailures(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Error(c, errors.New("pq: connection refused"))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestAttachment(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Attachment(c, "change-requests.csv", "text/csv", []byte("ID\n"))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="change-requests.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "ID\n", w.Body.String())
}
