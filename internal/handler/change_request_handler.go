package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/middleware"
	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/response"
)

type changeRequestService interface {
	List(ctx context.Context, query dto.ChangeRequestQuery) ([]dto.ChangeRequestView, error)
	Get(ctx context.Context, id string) (*dto.ChangeRequestView, error)
	PendingForObject(ctx context.Context, modelType models.ModelType, objectID string) (*dto.ChangeRequestView, error)
	Summary(ctx context.Context) (*dto.StatusSummary, bool, error)
	PendingCount(ctx context.Context) (int, error)
	Submit(ctx context.Context, req dto.ManualChangeRequest, actor *models.JWTClaims) (*dto.ChangeRequestView, error)
	Export(ctx context.Context, query dto.ChangeRequestQuery, format dto.ExportFormat) (*dto.ExportFile, error)
}

type approvalService interface {
	Approve(ctx context.Context, id string, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, id string, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error)
	BulkApprove(ctx context.Context, ids []string, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error)
	BulkReject(ctx context.Context, ids []string, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error)
}

// ChangeRequestHandler exposes the change request ledger and review endpoints.
type ChangeRequestHandler struct {
	requests  changeRequestService
	approvals approvalService
}

// NewChangeRequestHandler constructs ChangeRequestHandler.
func NewChangeRequestHandler(requests changeRequestService, approvals approvalService) *ChangeRequestHandler {
	return &ChangeRequestHandler{requests: requests, approvals: approvals}
}

// List godoc
// @Summary List change requests
// @Tags Change Requests
// @Produce json
// @Param status query string false "pending, approved or rejected; repeat or comma separate for several"
// @Param model_type query string false "student, attendance, marks, fee, monthly_test or test_marks"
// @Param limit query int false "Maximum rows"
// @Param offset query int false "Rows to skip"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	query, err := parseChangeRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondList(c, query)
}

// ListPending godoc
// @Summary List pending change requests with details
// @Tags Change Requests
// @Produce json
// @Param model_type query string false "Filter by model type"
// @Success 200 {object} response.Envelope
// @Router /change-requests/pending [get]
func (h *ChangeRequestHandler) ListPending(c *gin.Context) {
	h.listByStatus(c, models.ChangeStatusPending)
}

// ListApproved godoc
// @Summary List approved change requests with details
// @Tags Change Requests
// @Produce json
// @Param model_type query string false "Filter by model type"
// @Success 200 {object} response.Envelope
// @Router /change-requests/approved [get]
func (h *ChangeRequestHandler) ListApproved(c *gin.Context) {
	h.listByStatus(c, models.ChangeStatusApproved)
}

// ListRejected godoc
// @Summary List rejected change requests with details
// @Tags Change Requests
// @Produce json
// @Param model_type query string false "Filter by model type"
// @Success 200 {object} response.Envelope
// @Router /change-requests/rejected [get]
func (h *ChangeRequestHandler) ListRejected(c *gin.Context) {
	h.listByStatus(c, models.ChangeStatusRejected)
}

// PendingCount godoc
// @Summary Count pending change requests
// @Tags Change Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/pending-count [get]
func (h *ChangeRequestHandler) PendingCount(c *gin.Context) {
	count, err := h.requests.PendingCount(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"pending_count": count})
}

// Summary godoc
// @Summary Change request status summary
// @Tags Change Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/summary [get]
func (h *ChangeRequestHandler) Summary(c *gin.Context) {
	summary, cacheHit, err := h.requests.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, middleware.ResponseMeta(c))
}

// ByObject godoc
// @Summary Pending change request of a record
// @Description Data is null when the record has no pending change request.
// @Tags Change Requests
// @Produce json
// @Param model_type query string true "Model type"
// @Param object_id query string true "Record id, or test_id_student_id for test marks"
// @Success 200 {object} response.Envelope
// @Router /change-requests/by-object [get]
func (h *ChangeRequestHandler) ByObject(c *gin.Context) {
	modelType := models.ModelType(c.Query("model_type"))
	objectID := strings.TrimSpace(c.Query("object_id"))
	if !modelType.Valid() || objectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "model_type and object_id are required"))
		return
	}
	view, err := h.requests.PendingForObject(c.Request.Context(), modelType, objectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Export godoc
// @Summary Export change requests
// @Tags Change Requests
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "Filter by status"
// @Param model_type query string false "Filter by model type"
// @Success 200 {file} file
// @Router /change-requests/export [get]
func (h *ChangeRequestHandler) Export(c *gin.Context) {
	query, err := parseChangeRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))
	file, err := h.requests.Export(c.Request.Context(), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// Get godoc
// @Summary Get change request
// @Tags Change Requests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	view, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Submit godoc
// @Summary Submit a change request
// @Description Diffs old_data against new_data. Identical data is rejected with NO_CHANGES.
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param payload body dto.ManualChangeRequest true "Change request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	var req dto.ManualChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid change request payload"))
		return
	}
	view, err := h.requests.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Approve godoc
// @Summary Approve change request
// @Description Applies the proposed values to the target record.
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ReviewRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	h.review(c, h.approvals.Approve)
}

// Reject godoc
// @Summary Reject change request
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ReviewRequest false "Reviewer notes"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	h.review(c, h.approvals.Reject)
}

// BulkApprove godoc
// @Summary Approve several change requests
// @Description Each request is decided on its own; failures are reported per item.
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param payload body dto.BulkReviewRequest true "Ids and notes"
// @Success 200 {object} response.Envelope
// @Router /change-requests/bulk-approve [post]
func (h *ChangeRequestHandler) BulkApprove(c *gin.Context) {
	h.bulkReview(c, h.approvals.BulkApprove)
}

// BulkReject godoc
// @Summary Reject several change requests
// @Tags Change Requests
// @Accept json
// @Produce json
// @Param payload body dto.BulkReviewRequest true "Ids and notes"
// @Success 200 {object} response.Envelope
// @Router /change-requests/bulk-reject [post]
func (h *ChangeRequestHandler) BulkReject(c *gin.Context) {
	h.bulkReview(c, h.approvals.BulkReject)
}

type reviewFunc func(ctx context.Context, id string, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error)

func (h *ChangeRequestHandler) review(c *gin.Context, decide reviewFunc) {
	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err, "invalid review payload"))
			return
		}
	}
	request, err := decide(c.Request.Context(), c.Param("id"), claimsFromContext(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.requests.Get(c.Request.Context(), request.ID)
	if err != nil {
		response.JSON(c, http.StatusOK, request)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

type bulkReviewFunc func(ctx context.Context, ids []string, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error)

func (h *ChangeRequestHandler) bulkReview(c *gin.Context, decide bulkReviewFunc) {
	var req dto.BulkReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid bulk review payload"))
		return
	}
	result, err := decide(c.Request.Context(), req.IDs, claimsFromContext(c), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func (h *ChangeRequestHandler) listByStatus(c *gin.Context, status models.ChangeStatus) {
	query, err := parseChangeRequestQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query.Status = []models.ChangeStatus{status}
	h.respondList(c, query)
}

func (h *ChangeRequestHandler) respondList(c *gin.Context, query dto.ChangeRequestQuery) {
	views, err := h.requests.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"count": len(views)})
}

func parseChangeRequestQuery(c *gin.Context) (dto.ChangeRequestQuery, error) {
	var query dto.ChangeRequestQuery
	for _, status := range queryList(c, "status") {
		query.Status = append(query.Status, models.ChangeStatus(strings.ToLower(status)))
	}
	query.ModelType = models.ModelType(c.Query("model_type"))
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive number")
		}
		query.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return query, appErrors.Clone(appErrors.ErrValidation, "offset must be a positive number")
		}
		query.Offset = offset
	}
	return query, nil
}
