package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/middleware"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func scopeFromContext(c *gin.Context) repository.Scope {
	return repository.ScopeFor(claimsFromContext(c))
}

func invalidPayload(err error, message string) error {
	return appErrors.Invalid(err, message)
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request body is required")
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, invalidPayload(err, "unable to read request body")
	}
	return body, nil
}

// queryList accepts repeated and comma separated values: ?status=a&status=b,c.
func queryList(c *gin.Context, key string) []string {
	var values []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}
