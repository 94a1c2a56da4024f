package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

// summaryCachePattern matches every cached change request aggregate.
const summaryCachePattern = "change_requests:*"

type changeRequestStore interface {
	LockObject(ctx context.Context, modelType models.ModelType, objectID string) error
	FindPending(ctx context.Context, modelType models.ModelType, objectID string) (*models.ChangeRequest, error)
	Create(ctx context.Context, request *models.ChangeRequest) error
	ReplaceItems(ctx context.Context, requestID string, items []models.ChangeRequestItem) error
	GetByID(ctx context.Context, id string, forUpdate bool) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	ListPendingByObjects(ctx context.Context, modelType models.ModelType, objectIDs []string) ([]models.ChangeRequest, error)
	UpdateStatus(ctx context.Context, params repository.UpdateChangeRequestStatusParams) error
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	DescribeTarget(ctx context.Context, modelType models.ModelType, objectID string) (*models.TargetDescription, error)
}

// txRunner executes fn inside a database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChangeLedger keeps at most one pending change request per target record.
type ChangeLedger struct {
	repo   changeRequestStore
	tx     txRunner
	cache  *CacheService
	logger *zap.Logger
}

// NewChangeLedger constructs the ledger. cache may be nil.
func NewChangeLedger(repo changeRequestStore, tx txRunner, cache *CacheService, logger *zap.Logger) *ChangeLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeLedger{repo: repo, tx: tx, cache: cache, logger: logger}
}

// FindPending returns the pending request of a target, or nil when none exists.
func (l *ChangeLedger) FindPending(ctx context.Context, modelType models.ModelType, objectID string) (*models.ChangeRequest, error) {
	request, err := l.repo.FindPending(ctx, modelType, objectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending change request")
	}
	return request, nil
}

// Upsert records items against the target. An existing pending request has
// its items replaced, even by an empty set. Without a pending request a new
// one is created only when items is non-empty; otherwise nil is returned.
func (l *ChangeLedger) Upsert(ctx context.Context, modelType models.ModelType, objectID string, items []models.ChangeRequestItem, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	var result *models.ChangeRequest
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.repo.LockObject(ctx, modelType, objectID); err != nil {
			return err
		}
		pending, err := l.repo.FindPending(ctx, modelType, objectID)
		switch {
		case err == nil:
			if err := l.repo.ReplaceItems(ctx, pending.ID, items); err != nil {
				return err
			}
			pending.Items = items
			result = pending
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if len(items) == 0 {
			return nil
		}
		request := &models.ChangeRequest{
			ModelType:   modelType,
			ObjectID:    objectID,
			Status:      models.ChangeStatusPending,
			RequestedAt: time.Now().UTC(),
			Items:       items,
		}
		if actor.Known() {
			userID := actor.UserID
			request.RequestedBy = &userID
			request.RequestedByName = actor.Username
		}
		if err := l.repo.Create(ctx, request); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record change request")
	}
	if result != nil {
		l.logger.Debug("change request recorded",
			zap.String("change_request_id", result.ID),
			zap.String("model_type", string(modelType)),
			zap.String("object_id", objectID),
			zap.Int("items", len(items)))
		l.cache.Invalidate(ctx, summaryCachePattern)
	}
	return result, nil
}

// SetStatus moves a pending request to a terminal status. It returns a
// conflict when the request has already been reviewed.
func (l *ChangeLedger) SetStatus(ctx context.Context, request *models.ChangeRequest, status models.ChangeStatus, reviewer *models.JWTClaims, notes string) error {
	if !status.Terminal() {
		return appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}
	params := repository.UpdateChangeRequestStatusParams{
		ID:         request.ID,
		Status:     status,
		ReviewedAt: time.Now().UTC(),
	}
	if reviewer.Known() {
		userID := reviewer.UserID
		params.ReviewedBy = &userID
	}
	if notes != "" {
		params.Notes = &notes
	}
	if err := l.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "change request already reviewed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update change request")
	}
	request.Status = status
	request.ReviewedBy = params.ReviewedBy
	request.ReviewedAt = &params.ReviewedAt
	if reviewer.Known() {
		request.ReviewedByName = reviewer.Username
	}
	if params.Notes != nil {
		request.Notes = params.Notes
	}
	return nil
}
