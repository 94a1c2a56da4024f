package dto

import (
	"time"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// Reviewer labels used when the acting user is unknown.
const (
	AnonymousRequesterLabel = "Frontend User"
	SystemReviewerLabel     = "System"
	MissingTargetLabel      = "Record not found"
)

// ChangeRequestQuery mirrors supported listing filters.
type ChangeRequestQuery struct {
	Status    []models.ChangeStatus
	ModelType models.ModelType
	Limit     int
	Offset    int
}

// ChangeRequestView is the reviewer facing projection of a change request.
type ChangeRequestView struct {
	ID          string                     `json:"id"`
	ModelType   models.ModelType           `json:"model_type"`
	ObjectID    string                     `json:"object_id"`
	Status      models.ChangeStatus        `json:"status"`
	Details     string                     `json:"details"`
	ClassName   string                     `json:"class_name"`
	RequestedBy string                     `json:"requested_by"`
	RequestedAt time.Time                  `json:"requested_at"`
	ReviewedBy  string                     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time                 `json:"reviewed_at,omitempty"`
	Notes       *string                    `json:"notes,omitempty"`
	Changes     []models.ChangeRequestItem `json:"changes"`
}

// ManualChangeRequest lets a client submit old and new values explicitly.
type ManualChangeRequest struct {
	ModelType models.ModelType       `json:"model_type" validate:"required"`
	ObjectID  string                 `json:"object_id" validate:"required,max=100"`
	OldData   map[string]interface{} `json:"old_data" validate:"required"`
	NewData   map[string]interface{} `json:"new_data" validate:"required"`
}

// ReviewRequest carries an optional reviewer note.
type ReviewRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// BulkReviewRequest approves or rejects several requests at once.
type BulkReviewRequest struct {
	IDs   []string `json:"ids" validate:"required,min=1,dive,required"`
	Notes string   `json:"notes" validate:"max=1000"`
}

// BulkReviewItem reports the decision outcome for one request.
type BulkReviewItem struct {
	ID     string              `json:"id"`
	Status models.ChangeStatus `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
	Code   string              `json:"code,omitempty"`
}

// BulkReviewResult aggregates a bulk decision.
type BulkReviewResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Items     []BulkReviewItem `json:"items"`
}

// StatusSummary counts change requests by status and model type.
type StatusSummary struct {
	Total       int                      `json:"total_count"`
	Pending     int                      `json:"pending_count"`
	Approved    int                      `json:"approved_count"`
	Rejected    int                      `json:"rejected_count"`
	ByModelType map[models.ModelType]int `json:"pending_by_model_type"`
}

// ExportFormat selects the rendering of a change request export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
