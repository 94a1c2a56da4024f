package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/response"
)

type recordService interface {
	ListClasses(ctx context.Context, scope repository.Scope) ([]models.Class, error)
	CreateClass(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error)
	ListSubjects(ctx context.Context, classID string, scope repository.Scope) ([]models.Subject, error)
	CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error)
	ListStudents(ctx context.Context, filter models.StudentFilter, scope repository.Scope) ([]models.Student, error)
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListAttendance(ctx context.Context, filter models.AttendanceFilter, scope repository.Scope) ([]models.Attendance, error)
	ListFees(ctx context.Context, filter models.FeeFilter, scope repository.Scope) ([]models.Fee, error)
	ListMonthlyTests(ctx context.Context, filter models.MonthlyTestFilter, scope repository.Scope) ([]models.MonthlyTest, error)
}

// RecordHandler exposes the read side of the school records and the class catalogue.
type RecordHandler struct {
	records recordService
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(records recordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// ListClasses godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *RecordHandler) ListClasses(c *gin.Context) {
	classes, err := h.records.ListClasses(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes)
}

// CreateClass godoc
// @Summary Create class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *RecordHandler) CreateClass(c *gin.Context) {
	var req dto.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid class payload"))
		return
	}
	class, err := h.records.CreateClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// ListSubjects godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param class_id query string false "Filter by class"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *RecordHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.records.ListSubjects(c.Request.Context(), c.Query("class_id"), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects)
}

// CreateSubject godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects [post]
func (h *RecordHandler) CreateSubject(c *gin.Context) {
	var req dto.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid subject payload"))
		return
	}
	subject, err := h.records.CreateSubject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// ListStudents godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or father name"
// @Param class_admitted query string false "Filter by class name"
// @Param gender query string false "boys or girls"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *RecordHandler) ListStudents(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		ClassName: c.Query("class_admitted"),
		Gender:    c.Query("gender"),
	}
	students, err := h.records.ListStudents(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// GetStudent godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *RecordHandler) GetStudent(c *gin.Context) {
	student, err := h.records.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !scopeFromContext(c).Unrestricted() && !h.studentVisible(c, student) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "student is outside your classes"))
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// studentVisible checks the student's class against the caller's scope through the class list.
func (h *RecordHandler) studentVisible(c *gin.Context, student *models.Student) bool {
	classes, err := h.records.ListClasses(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		return false
	}
	for _, class := range classes {
		if strings.EqualFold(class.Name, student.ClassAdmitted) {
			return true
		}
	}
	return false
}

// ListAttendance godoc
// @Summary List attendance
// @Tags Attendance
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param class_admitted query string false "Filter by class name"
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *RecordHandler) ListAttendance(c *gin.Context) {
	filter := models.AttendanceFilter{
		StudentID: c.Query("student_id"),
		ClassName: c.Query("class_admitted"),
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, invalidPayload(err, "date must be formatted YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}
	rows, err := h.records.ListAttendance(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// ListFees godoc
// @Summary List fees
// @Tags Fees
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param month query string false "Filter by month (YYYY-MM)"
// @Param class_admitted query string false "Filter by class name"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *RecordHandler) ListFees(c *gin.Context) {
	filter := models.FeeFilter{
		StudentID: c.Query("student_id"),
		Month:     c.Query("month"),
		ClassName: c.Query("class_admitted"),
	}
	rows, err := h.records.ListFees(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}

// ListMonthlyTests godoc
// @Summary List monthly tests
// @Tags Monthly Tests
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param month query string false "Filter by month (YYYY-MM)"
// @Success 200 {object} response.Envelope
// @Router /monthly-tests [get]
func (h *RecordHandler) ListMonthlyTests(c *gin.Context) {
	filter := models.MonthlyTestFilter{
		ClassID: c.Query("class_id"),
		Month:   c.Query("month"),
	}
	rows, err := h.records.ListMonthlyTests(c.Request.Context(), filter, scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows)
}
