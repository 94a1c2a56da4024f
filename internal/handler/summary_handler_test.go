package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type summaryServiceMock struct {
	marksFilter models.MarksFilter
	testID      string
	scope       repository.Scope
	summary     *dto.MarksSummary
	err         error
}

func (m *summaryServiceMock) MarksSummary(ctx context.Context, studentID, classID string, scope repository.Scope) (*dto.MarksSummary, error) {
	m.scope = scope
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *summaryServiceMock) ListMarks(ctx context.Context, filter models.MarksFilter, scope repository.Scope) ([]dto.MarksView, error) {
	m.marksFilter = filter
	m.scope = scope
	return []dto.MarksView{}, m.err
}

func (m *summaryServiceMock) ListTestMarks(ctx context.Context, filter models.TestMarksFilter, scope repository.Scope) ([]dto.TestMarksView, error) {
	return nil, m.err
}

func (m *summaryServiceMock) TestSummary(ctx context.Context, testID string, scope repository.Scope) (*dto.TestSummary, error) {
	m.testID = testID
	if m.err != nil {
		return nil, m.err
	}
	return &dto.TestSummary{TestID: testID, StudentCount: 2}, nil
}

func TestSummaryHandlerListMarksPassesFiltersAndScope(t *testing.T) {
	svc := &summaryServiceMock{}
	h := NewSummaryHandler(svc)
	c, w := newGinContext(http.MethodGet, "/marks?student_id=s1&class_id=c7", nil)
	withUser(c, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher, ClassIDs: []string{"c7"}})

	h.ListMarks(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.MarksFilter{StudentID: "s1", ClassID: "c7"}, svc.marksFilter)
	assert.False(t, svc.scope.Unrestricted())
	assert.True(t, svc.scope.AllowsClass("c7"))
}

func TestSummaryHandlerMarksSummary(t *testing.T) {
	obtained := 170.0
	svc := &summaryServiceMock{summary: &dto.MarksSummary{StudentID: "s1", TotalMarks: 200, ObtainedMarks: obtained, Grade: "A", HasPendingChanges: true}}
	h := NewSummaryHandler(svc)
	c, w := newGinContext(http.MethodGet, "/marks/summary?student_id=s1&class_id=c7", nil)
	withUser(c, reviewerClaims)

	h.MarksSummary(c)

	require.Equal(t, http.StatusOK, w.Code)
	var summary dto.MarksSummary
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &summary))
	assert.Equal(t, "A", summary.Grade)
	assert.True(t, summary.HasPendingChanges)
	assert.True(t, svc.scope.Unrestricted())
}

func TestSummaryHandlerMarksSummaryForbidden(t *testing.T) {
	h := NewSummaryHandler(&summaryServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "class is outside your assignment")})
	c, w := newGinContext(http.MethodGet, "/marks/summary?student_id=s1&class_id=c9", nil)

	h.MarksSummary(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, w).Error.Code)
}

func TestSummaryHandlerTestSummaryUsesPathID(t *testing.T) {
	svc := &summaryServiceMock{}
	h := NewSummaryHandler(svc)
	c, w := newGinContext(http.MethodGet, "/monthly-tests/t-1/summary", nil)
	c.Params = gin.Params{{Key: "id", Value: "t-1"}}
	withUser(c, reviewerClaims)

	h.TestSummary(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", svc.testID)
}
