package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func run(header string) (string, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) { seen = Value(c) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(Header, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, w
}

func TestReusesCallerID(t *testing.T) {
	seen, w := run("batch-7f3a")

	assert.Equal(t, "batch-7f3a", seen)
	assert.Equal(t, "batch-7f3a", w.Header().Get(Header))
}

func TestReplacesUnsafeIDs(t *testing.T) {
	for _, header := range []string{"", "two words", strings.Repeat("a", maxLength+1), "id\x1b[31m"} {
		seen, _ := run(header)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, "header %q", header)
	}
}
