package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	"github.com/noah-isme/sma-approval-api/pkg/response"
)

type summaryService interface {
	MarksSummary(ctx context.Context, studentID, classID string, scope repository.Scope) (*dto.MarksSummary, error)
	ListMarks(ctx context.Context, filter models.MarksFilter, scope repository.Scope) ([]dto.MarksView, error)
	ListTestMarks(ctx context.Context, filter models.TestMarksFilter, scope repository.Scope) ([]dto.TestMarksView, error)
	TestSummary(ctx context.Context, testID string, scope repository.Scope) (*dto.TestSummary, error)
}

// SummaryHandler serves marks listings and aggregates that reflect pending changes.
type SummaryHandler struct {
	summaries summaryService
}

// NewSummaryHandler constructs SummaryHandler.
func NewSummaryHandler(summaries summaryService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

// ListMarks godoc
// @Summary List subject marks
// @Description Each row carries its pending value when a change request is open.
// @Tags Marks
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param subject_id query string false "Filter by subject"
// @Param class_id query string false "Filter by class"
// @Success 200 {object} response.Envelope
// @Router /marks [get]
func (h *SummaryHandler) ListMarks(c *gin.Context) {
	filter := models.MarksFilter{
		StudentID: c.Query("student_id"),
		SubjectID: c.Query("subject_id"),
		ClassID:   c.Query("class_id"),
	}
	rows, err := h.summaries.ListMarks(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// MarksSummary godoc
// @Summary Marks summary of a student
// @Description Totals, percentage and grade with pending marks substituted.
// @Tags Marks
// @Produce json
// @Param student_id query string true "Student ID"
// @Param class_id query string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /marks/summary [get]
func (h *SummaryHandler) MarksSummary(c *gin.Context) {
	summary, err := h.summaries.MarksSummary(c.Request.Context(), c.Query("student_id"), c.Query("class_id"), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// ListTestMarks godoc
// @Summary List monthly test marks
// @Tags Monthly Tests
// @Produce json
// @Param test_id query string false "Filter by monthly test"
// @Param student_id query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Router /test-marks [get]
func (h *SummaryHandler) ListTestMarks(c *gin.Context) {
	filter := models.TestMarksFilter{
		TestID:    c.Query("test_id"),
		StudentID: c.Query("student_id"),
	}
	rows, err := h.summaries.ListTestMarks(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// TestSummary godoc
// @Summary Monthly test summary
// @Tags Monthly Tests
// @Produce json
// @Param id path string true "Monthly test ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /monthly-tests/{id}/summary [get]
func (h *SummaryHandler) TestSummary(c *gin.Context) {
	summary, err := h.summaries.TestSummary(c.Request.Context(), c.Param("id"), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
