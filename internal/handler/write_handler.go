package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/pkg/response"
)

type writeRouter interface {
	RouteWrite(ctx context.Context, modelType models.ModelType, body []byte, actor *models.JWTClaims) (*dto.RoutedWrite, error)
	UpdateStudent(ctx context.Context, id string, p dto.StudentPayload, actor *models.JWTClaims) (*dto.WriteResult, error)
	UpdateMonthlyTest(ctx context.Context, id string, p dto.MonthlyTestPayload, actor *models.JWTClaims) (*dto.WriteResult, error)
	RouteClassAttendance(ctx context.Context, req dto.ClassAttendanceRequest, actor *models.JWTClaims) ([]dto.BatchItemResult, error)
}

// WriteHandler accepts record writes. New records are stored directly while
// edits of existing records are staged as change requests.
type WriteHandler struct {
	router writeRouter
}

// NewWriteHandler constructs WriteHandler.
func NewWriteHandler(router writeRouter) *WriteHandler {
	return &WriteHandler{router: router}
}

// WriteStudents godoc
// @Summary Create or modify students
// @Description Accepts a single object or an array. Objects carrying an id are staged for approval.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.StudentPayload true "Student payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /students [post]
func (h *WriteHandler) WriteStudents(c *gin.Context) {
	h.write(c, models.ModelTypeStudent)
}

// WriteMarks godoc
// @Summary Create or modify subject marks
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body dto.MarksPayload true "Marks payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /marks [post]
func (h *WriteHandler) WriteMarks(c *gin.Context) {
	h.write(c, models.ModelTypeMarks)
}

// WriteAttendance godoc
// @Summary Create or modify attendance rows
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.AttendancePayload true "Attendance payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /attendance [post]
func (h *WriteHandler) WriteAttendance(c *gin.Context) {
	h.write(c, models.ModelTypeAttendance)
}

// WriteFees godoc
// @Summary Create or modify fee rows
// @Description When fine_per_absent is set the fine is absentees multiplied by it.
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body dto.FeePayload true "Fee payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /fees [post]
func (h *WriteHandler) WriteFees(c *gin.Context) {
	h.write(c, models.ModelTypeFee)
}

// WriteMonthlyTests godoc
// @Summary Create or modify monthly tests
// @Tags Monthly Tests
// @Accept json
// @Produce json
// @Param payload body dto.MonthlyTestPayload true "Monthly test payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /monthly-tests [post]
func (h *WriteHandler) WriteMonthlyTests(c *gin.Context) {
	h.write(c, models.ModelTypeMonthlyTest)
}

// WriteTestMarks godoc
// @Summary Create or modify monthly test marks
// @Tags Monthly Tests
// @Accept json
// @Produce json
// @Param payload body dto.TestMarksPayload true "Test marks payload or array of payloads"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /test-marks [post]
func (h *WriteHandler) WriteTestMarks(c *gin.Context) {
	h.write(c, models.ModelTypeTestMarks)
}

// UpdateStudent godoc
// @Summary Modify student
// @Description The change is staged as a pending change request.
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.StudentPayload true "Student payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
func (h *WriteHandler) UpdateStudent(c *gin.Context) {
	var req dto.StudentPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid student payload"))
		return
	}
	result, err := h.router.UpdateStudent(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, statusForOutcome(result.Outcome), result)
}

// UpdateMonthlyTest godoc
// @Summary Modify monthly test
// @Description The change is staged; approval also updates total_marks on every test mark.
// @Tags Monthly Tests
// @Accept json
// @Produce json
// @Param id path string true "Monthly test ID"
// @Param payload body dto.MonthlyTestPayload true "Monthly test payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /monthly-tests/{id} [put]
func (h *WriteHandler) UpdateMonthlyTest(c *gin.Context) {
	var req dto.MonthlyTestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid monthly test payload"))
		return
	}
	result, err := h.router.UpdateMonthlyTest(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, statusForOutcome(result.Outcome), result)
}

// MarkClassAttendance godoc
// @Summary Mark attendance for a whole class
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.ClassAttendanceRequest true "Class attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/class [post]
func (h *WriteHandler) MarkClassAttendance(c *gin.Context) {
	var req dto.ClassAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid class attendance payload"))
		return
	}
	items, err := h.router.RouteClassAttendance(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	summary := dto.Summarize(items)
	response.JSON(c, http.StatusOK, dto.RoutedWrite{Batch: true, Items: items, Summary: &summary})
}

func (h *WriteHandler) write(c *gin.Context, modelType models.ModelType) {
	body, err := readBody(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	routed, err := h.router.RouteWrite(c.Request.Context(), modelType, body, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if routed.Batch {
		response.JSON(c, http.StatusOK, routed)
		return
	}
	response.JSON(c, statusForOutcome(routed.Single.Outcome), routed.Single)
}

func statusForOutcome(outcome dto.WriteOutcome) int {
	switch outcome {
	case dto.WriteOutcomeCreated:
		return http.StatusCreated
	case dto.WriteOutcomeDeferred:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}
