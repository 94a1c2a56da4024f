package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("submit: %w", Clone(ErrNoChanges, "nothing to review"))

	assert.True(t, errors.Is(err, ErrNoChanges))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "nothing to review", FromError(err).Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestInvalidListsFailingFields(t *testing.T) {
	type payload struct {
		ObjectID string `validate:"required"`
		Reason   string `validate:"max=5"`
	}
	verr := validator.New().Struct(payload{Reason: "too long"})
	require.Error(t, verr)

	appErr := Invalid(verr, "invalid change request payload")

	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "required", appErr.Details["objectid"])
	assert.Equal(t, "max=5", appErr.Details["reason"])
	assert.True(t, errors.Is(appErr, ErrValidation))
}

func TestInvalidWithoutValidatorError(t *testing.T) {
	appErr := Invalid(errors.New("unexpected EOF"), "invalid payload")

	assert.Empty(t, appErr.Details)
	assert.Equal(t, "invalid payload: unexpected EOF", appErr.Error())
}
