package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/export"
)

const (
	summaryCacheKey  = "change_requests:summary"
	defaultListLimit = 100
)

func init() {
	inflection.AddUncountable("attendance", "marks")
}

type pendingLedger interface {
	FindPending(ctx context.Context, modelType models.ModelType, objectID string) (*models.ChangeRequest, error)
	Upsert(ctx context.Context, modelType models.ModelType, objectID string, items []models.ChangeRequestItem, actor *models.JWTClaims) (*models.ChangeRequest, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ChangeRequestService serves reviewer facing reads and manual submissions.
type ChangeRequestService struct {
	repo       changeRequestStore
	ledger     pendingLedger
	cache      *CacheService
	csv        datasetRenderer
	pdf        datasetRenderer
	validator  *validator.Validate
	summaryTTL time.Duration
	listLimit  int
	logger     *zap.Logger
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithSummaryCache caches the status summary for ttl.
func WithSummaryCache(cache *CacheService, ttl time.Duration) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.cache = cache
		if ttl > 0 {
			s.summaryTTL = ttl
		}
	}
}

// WithListLimit sets the default page size of listings.
func WithListLimit(limit int) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// WithExporters overrides the CSV and PDF renderers.
func WithExporters(csv, pdf datasetRenderer) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		if csv != nil {
			s.csv = csv
		}
		if pdf != nil {
			s.pdf = pdf
		}
	}
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(repo changeRequestStore, ledger pendingLedger, validate *validator.Validate, logger *zap.Logger, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChangeRequestService{
		repo:       repo,
		ledger:     ledger,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		validator:  validate,
		summaryTTL: time.Minute,
		listLimit:  defaultListLimit,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// List returns change requests with target details, newest first.
func (s *ChangeRequestService) List(ctx context.Context, query dto.ChangeRequestQuery) ([]dto.ChangeRequestView, error) {
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if query.ModelType != "" && !query.ModelType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown model type %q", query.ModelType))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = s.listLimit
	}
	requests, err := s.repo.List(ctx, models.ChangeRequestFilter{
		Status:    query.Status,
		ModelType: query.ModelType,
		Limit:     limit,
		Offset:    query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	views := make([]dto.ChangeRequestView, 0, len(requests))
	for i := range requests {
		view, err := s.view(ctx, &requests[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Get returns one change request with target details.
func (s *ChangeRequestService) Get(ctx context.Context, id string) (*dto.ChangeRequestView, error) {
	if !isUUID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
	}
	request, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	return s.view(ctx, request)
}

// PendingForObject returns the pending request of a target or nil.
func (s *ChangeRequestService) PendingForObject(ctx context.Context, modelType models.ModelType, objectID string) (*dto.ChangeRequestView, error) {
	if !modelType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown model type %q", modelType))
	}
	if strings.TrimSpace(objectID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "object_id is required")
	}
	request, err := s.ledger.FindPending(ctx, modelType, objectID)
	if err != nil || request == nil {
		return nil, err
	}
	return s.view(ctx, request)
}

// Summary counts requests by status, served from cache when possible.
func (s *ChangeRequestService) Summary(ctx context.Context) (*dto.StatusSummary, bool, error) {
	var cached dto.StatusSummary
	if s.cache.Get(ctx, summaryCacheKey, &cached) {
		return &cached, true, nil
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count change requests")
	}
	summary := &dto.StatusSummary{ByModelType: make(map[models.ModelType]int, len(models.ModelTypes))}
	for _, modelType := range models.ModelTypes {
		summary.ByModelType[modelType] = 0
	}
	for _, count := range counts {
		summary.Total += count.Total
		switch count.Status {
		case models.ChangeStatusPending:
			summary.Pending += count.Total
			summary.ByModelType[count.ModelType] += count.Total
		case models.ChangeStatusApproved:
			summary.Approved += count.Total
		case models.ChangeStatusRejected:
			summary.Rejected += count.Total
		}
	}
	s.cache.Set(ctx, summaryCacheKey, summary, s.summaryTTL)
	return summary, false, nil
}

// PendingCount returns the number of requests awaiting review.
func (s *ChangeRequestService) PendingCount(ctx context.Context) (int, error) {
	summary, _, err := s.Summary(ctx)
	if err != nil {
		return 0, err
	}
	return summary.Pending, nil
}

// Submit records a manual change request from explicit old and new values.
func (s *ChangeRequestService) Submit(ctx context.Context, req dto.ManualChangeRequest, actor *models.JWTClaims) (*dto.ChangeRequestView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid change request payload")
	}
	if !req.ModelType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown model type %q", req.ModelType))
	}
	items := ComputeDiff(SnapshotFromMap(req.OldData), SnapshotFromMap(req.NewData))
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoChanges, "")
	}
	if _, err := s.repo.DescribeTarget(ctx, req.ModelType, req.ObjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", req.ModelType, req.ObjectID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve change request target")
	}
	request, err := s.ledger.Upsert(ctx, req.ModelType, req.ObjectID, items, actor)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, request)
}

// Export renders the matching requests as CSV or PDF, one row per changed field.
func (s *ChangeRequestService) Export(ctx context.Context, query dto.ChangeRequestQuery, format dto.ExportFormat) (*dto.ExportFile, error) {
	var renderer datasetRenderer
	contentType := ""
	switch format {
	case dto.ExportFormatCSV, "":
		format = dto.ExportFormatCSV
		renderer, contentType = s.csv, "text/csv"
	case dto.ExportFormatPDF:
		renderer, contentType = s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	views, err := s.List(ctx, query)
	if err != nil {
		return nil, err
	}
	content, err := renderer.Render(buildExportDataset(query, views))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("change-requests-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	return &dto.ExportFile{Filename: filename, ContentType: contentType, Content: content}, nil
}

var exportHeaders = []string{"Request", "Model", "Record", "Class", "Field", "Old Value", "New Value", "Status", "Requested By", "Requested At", "Reviewed By"}

func buildExportDataset(query dto.ChangeRequestQuery, views []dto.ChangeRequestView) export.Dataset {
	title := "Change Requests"
	if len(query.Status) == 1 {
		status := string(query.Status[0])
		title = fmt.Sprintf("%s%s Change Requests", strings.ToUpper(status[:1]), status[1:])
	}
	if query.ModelType != "" {
		title = fmt.Sprintf("%s - %s", title, modelTypeLabel(query.ModelType, 2))
	}

	perType := make(map[models.ModelType]int)
	rows := make([]map[string]string, 0, len(views))
	for _, view := range views {
		perType[view.ModelType]++
		base := map[string]string{
			"Request":      view.ID,
			"Model":        modelTypeLabel(view.ModelType, 1),
			"Record":       view.Details,
			"Class":        view.ClassName,
			"Status":       string(view.Status),
			"Requested By": view.RequestedBy,
			"Requested At": view.RequestedAt.Format("2006-01-02 15:04"),
			"Reviewed By":  view.ReviewedBy,
		}
		if len(view.Changes) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, change := range view.Changes {
			row := make(map[string]string, len(exportHeaders))
			for k, v := range base {
				row[k] = v
			}
			row["Field"] = change.FieldName
			row["Old Value"] = change.OldValue
			row["New Value"] = change.NewValue
			rows = append(rows, row)
		}
	}

	types := make([]string, 0, len(perType))
	for modelType := range perType {
		types = append(types, string(modelType))
	}
	sort.Strings(types)
	summary := []string{fmt.Sprintf("Generated %s, %d requests", time.Now().UTC().Format("2006-01-02 15:04 MST"), len(views))}
	for _, modelType := range types {
		count := perType[models.ModelType(modelType)]
		summary = append(summary, fmt.Sprintf("%d %s", count, modelTypeLabel(models.ModelType(modelType), count)))
	}
	return export.Dataset{Title: title, Summary: summary, Headers: exportHeaders, Rows: rows}
}

// modelTypeLabel renders "test_marks" as "test marks", pluralised for count != 1.
func modelTypeLabel(modelType models.ModelType, count int) string {
	label := strings.ReplaceAll(string(modelType), "_", " ")
	if count == 1 {
		return inflection.Singular(label)
	}
	return inflection.Plural(label)
}

func (s *ChangeRequestService) view(ctx context.Context, request *models.ChangeRequest) (*dto.ChangeRequestView, error) {
	view := &dto.ChangeRequestView{
		ID:          request.ID,
		ModelType:   request.ModelType,
		ObjectID:    request.ObjectID,
		Status:      request.Status,
		RequestedBy: dto.AnonymousRequesterLabel,
		RequestedAt: request.RequestedAt,
		ReviewedAt:  request.ReviewedAt,
		Notes:       request.Notes,
		Changes:     request.Items,
	}
	if view.Changes == nil {
		view.Changes = []models.ChangeRequestItem{}
	}
	if request.RequestedBy != nil {
		view.RequestedBy = displayName(request.RequestedByName, *request.RequestedBy)
	}
	if request.Status.Terminal() {
		view.ReviewedBy = dto.SystemReviewerLabel
		if request.ReviewedBy != nil {
			view.ReviewedBy = displayName(request.ReviewedByName, *request.ReviewedBy)
		}
	}

	target, err := s.repo.DescribeTarget(ctx, request.ModelType, request.ObjectID)
	switch {
	case err == nil:
		view.Details = target.Details
		view.ClassName = target.ClassName
	case errors.Is(err, sql.ErrNoRows):
		view.Details = dto.MissingTargetLabel
	default:
		s.logger.Warn("failed to describe change request target",
			zap.String("change_request_id", request.ID), zap.Error(err))
		view.Details = dto.MissingTargetLabel
	}
	return view, nil
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}
