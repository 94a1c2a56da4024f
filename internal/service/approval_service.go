package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type requestLoader interface {
	GetByID(ctx context.Context, id string, forUpdate bool) (*models.ChangeRequest, error)
}

type statusSetter interface {
	SetStatus(ctx context.Context, request *models.ChangeRequest, status models.ChangeStatus, reviewer *models.JWTClaims, notes string) error
}

// ApprovalService applies or discards pending change requests.
type ApprovalService struct {
	repo      requestLoader
	ledger    statusSetter
	tx        txRunner
	appliers  map[models.ModelType]ChangeApplier
	audit     auditLogger
	cache     *CacheService
	metrics   *MetricsService
	bulkLimit int
	logger    *zap.Logger
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalAudit records decisions in the audit trail.
func WithApprovalAudit(audit auditLogger) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.audit = audit
	}
}

// WithApprovalCache invalidates cached aggregates after each decision.
func WithApprovalCache(cache *CacheService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.cache = cache
	}
}

// WithApprovalMetrics records decision counters.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithBulkLimit caps the number of ids accepted by bulk decisions.
func WithBulkLimit(limit int) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if limit > 0 {
			s.bulkLimit = limit
		}
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(repo requestLoader, ledger statusSetter, tx txRunner, appliers map[models.ModelType]ChangeApplier, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		repo:      repo,
		ledger:    ledger,
		tx:        tx,
		appliers:  appliers,
		bulkLimit: defaultBatchLimit,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Approve writes every item of a pending request into its target record and
// marks the request approved, all in one transaction.
func (s *ApprovalService) Approve(ctx context.Context, id string, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error) {
	return s.decide(ctx, id, models.ChangeStatusApproved, reviewer, notes)
}

// Reject marks a pending request rejected without touching its target.
func (s *ApprovalService) Reject(ctx context.Context, id string, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error) {
	return s.decide(ctx, id, models.ChangeStatusRejected, reviewer, notes)
}

// BulkApprove approves each id in its own transaction and reports per id.
func (s *ApprovalService) BulkApprove(ctx context.Context, ids []string, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error) {
	return s.bulk(ctx, ids, models.ChangeStatusApproved, reviewer, notes)
}

// BulkReject rejects each id in its own transaction and reports per id.
func (s *ApprovalService) BulkReject(ctx context.Context, ids []string, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error) {
	return s.bulk(ctx, ids, models.ChangeStatusRejected, reviewer, notes)
}

func (s *ApprovalService) bulk(ctx context.Context, ids []string, status models.ChangeStatus, reviewer *models.JWTClaims, notes string) (*dto.BulkReviewResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids are required")
	}
	if len(ids) > s.bulkLimit {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d ids per request", s.bulkLimit))
	}
	result := &dto.BulkReviewResult{Items: make([]dto.BulkReviewItem, 0, len(ids))}
	for _, id := range ids {
		item := dto.BulkReviewItem{ID: id}
		if _, err := s.decide(ctx, id, status, reviewer, notes); err != nil {
			appErr := appErrors.FromError(err)
			item.Error = appErr.Message
			item.Code = appErr.Code
			result.Failed++
		} else {
			item.Status = status
			result.Processed++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (s *ApprovalService) decide(ctx context.Context, id string, status models.ChangeStatus, reviewer *models.JWTClaims, notes string) (*models.ChangeRequest, error) {
	start := time.Now()
	notes = strings.TrimSpace(notes)
	if !isUUID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
	}

	var request *models.ChangeRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		loaded, err := s.repo.GetByID(ctx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "change request not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
		}
		if loaded.Status != models.ChangeStatusPending {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("change request already %s", loaded.Status))
		}

		if status == models.ChangeStatusApproved {
			if strings.TrimSpace(loaded.ObjectID) == "" {
				return appErrors.Clone(appErrors.ErrValidation, "change request has no target object")
			}
			applier := s.appliers[loaded.ModelType]
			if applier == nil {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported model type %q", loaded.ModelType))
			}
			if _, err := applier.Apply(ctx, loaded); err != nil {
				return err
			}
		}

		if err := s.ledger.SetStatus(ctx, loaded, status, reviewer, notes); err != nil {
			return err
		}
		request = loaded
		return nil
	})
	s.metrics.RecordReview(status, err, time.Since(start))
	if err != nil {
		s.logger.Info("change request review failed",
			zap.String("change_request_id", id),
			zap.String("decision", string(status)),
			zap.Error(err))
		return nil, appErrors.FromError(err)
	}

	s.emitAudit(ctx, request, reviewer)
	s.cache.Invalidate(ctx, summaryCachePattern)
	s.logger.Info("change request reviewed",
		zap.String("change_request_id", request.ID),
		zap.String("model_type", string(request.ModelType)),
		zap.String("object_id", request.ObjectID),
		zap.String("decision", string(status)),
		zap.Int("items", len(request.Items)))
	return request, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, request *models.ChangeRequest, reviewer *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	action := models.AuditActionChangeRequestReject
	if request.Status == models.ChangeStatusApproved {
		action = models.AuditActionChangeRequestApprove
	}
	oldValues := make(map[string]string, len(request.Items))
	newValues := make(map[string]string, len(request.Items))
	for _, item := range request.Items {
		oldValues[item.FieldName] = item.OldValue
		newValues[item.FieldName] = item.NewValue
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   string(request.ModelType),
		ResourceID: &request.ObjectID,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if reviewer.Known() {
		userID := reviewer.UserID
		entry.UserID = &userID
	}
	entry.OldValues, _ = json.Marshal(oldValues)
	entry.NewValues, _ = json.Marshal(newValues)
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
