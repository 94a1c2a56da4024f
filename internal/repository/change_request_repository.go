package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

const changeRequestSelect = `SELECT cr.id, cr.model_type, cr.object_id, cr.status, cr.requested_by,
       COALESCE(ru.username, '') AS requested_by_name, cr.requested_at, cr.reviewed_by,
       COALESCE(rv.username, '') AS reviewed_by_name, cr.reviewed_at, cr.notes
	FROM change_requests cr
	LEFT JOIN users ru ON ru.id = cr.requested_by
	LEFT JOIN users rv ON rv.id = cr.reviewed_by`

// ChangeRequestRepository persists change requests and their items.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// LockObject serialises ledger writes for one target until the surrounding transaction ends.
func (r *ChangeRequestRepository) LockObject(ctx context.Context, modelType models.ModelType, objectID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, string(modelType)+":"+objectID); err != nil {
		return fmt.Errorf("lock change request target: %w", err)
	}
	return nil
}

// FindPending returns the pending request for a target or sql.ErrNoRows.
func (r *ChangeRequestRepository) FindPending(ctx context.Context, modelType models.ModelType, objectID string) (*models.ChangeRequest, error) {
	query := changeRequestSelect + ` WHERE cr.model_type = $1 AND cr.object_id = $2 AND cr.status = $3
	ORDER BY cr.requested_at DESC LIMIT 1`
	var request models.ChangeRequest
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &request, query, modelType, objectID, models.ChangeStatusPending); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*models.ChangeRequest{&request}); err != nil {
		return nil, err
	}
	return &request, nil
}

// Create inserts a request together with its items.
func (r *ChangeRequestRepository) Create(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests (id, model_type, object_id, status, requested_by, requested_at, reviewed_by, reviewed_at, notes)
	VALUES (:id, :model_type, :object_id, :status, :requested_by, :requested_at, :reviewed_by, :reviewed_at, :notes)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, request); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return r.insertItems(ctx, request.ID, request.Items)
}

// ReplaceItems swaps the item set of an existing request.
func (r *ChangeRequestRepository) ReplaceItems(ctx context.Context, requestID string, items []models.ChangeRequestItem) error {
	const query = `DELETE FROM change_request_items WHERE change_request_id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, requestID); err != nil {
		return fmt.Errorf("delete change request items: %w", err)
	}
	return r.insertItems(ctx, requestID, items)
}

func (r *ChangeRequestRepository) insertItems(ctx context.Context, requestID string, items []models.ChangeRequestItem) error {
	const query = `INSERT INTO change_request_items (id, change_request_id, field_name, old_value, new_value, position)
	VALUES (:id, :change_request_id, :field_name, :old_value, :new_value, :position)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].ChangeRequestID = requestID
		items[i].Position = i
		if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, items[i]); err != nil {
			return fmt.Errorf("create change request item: %w", err)
		}
	}
	return nil
}

// GetByID fetches a request with its items. forUpdate locks the request row.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string, forUpdate bool) (*models.ChangeRequest, error) {
	query := changeRequestSelect + ` WHERE cr.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF cr`
	}
	var request models.ChangeRequest
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &request, query, id); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*models.ChangeRequest{&request}); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter, newest first.
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	q := &Query{}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		q.Where("cr.status = ANY($%d)", pq.Array(statuses))
	}
	if filter.ModelType != "" {
		q.Where("cr.model_type = $%d", filter.ModelType)
	}
	if filter.ObjectID != "" {
		q.Where("cr.object_id = $%d", filter.ObjectID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("%s%s ORDER BY cr.requested_at DESC LIMIT %d OFFSET %d", changeRequestSelect, q.Clause(), limit, offset)

	var requests []models.ChangeRequest
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &requests, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	if err := r.attachItems(ctx, pointers(requests)); err != nil {
		return nil, err
	}
	return requests, nil
}

// ListPendingByObjects returns pending requests for the given targets of one model type.
func (r *ChangeRequestRepository) ListPendingByObjects(ctx context.Context, modelType models.ModelType, objectIDs []string) ([]models.ChangeRequest, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}
	query := changeRequestSelect + ` WHERE cr.status = $1 AND cr.model_type = $2 AND cr.object_id = ANY($3)`
	var requests []models.ChangeRequest
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &requests, query, models.ChangeStatusPending, modelType, pq.Array(objectIDs)); err != nil {
		return nil, fmt.Errorf("list pending change requests: %w", err)
	}
	if err := r.attachItems(ctx, pointers(requests)); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *ChangeRequestRepository) attachItems(ctx context.Context, requests []*models.ChangeRequest) error {
	if len(requests) == 0 {
		return nil
	}
	ids := make([]string, len(requests))
	byID := make(map[string]*models.ChangeRequest, len(requests))
	for i, request := range requests {
		ids[i] = request.ID
		request.Items = []models.ChangeRequestItem{}
		byID[request.ID] = request
	}
	const query = `SELECT id, change_request_id, field_name, old_value, new_value, position
	FROM change_request_items WHERE change_request_id = ANY($1) ORDER BY change_request_id, position`
	var items []models.ChangeRequestItem
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list change request items: %w", err)
	}
	for _, item := range items {
		if request, ok := byID[item.ChangeRequestID]; ok {
			request.Items = append(request.Items, item)
		}
	}
	return nil
}

// UpdateChangeRequestStatusParams groups the review columns.
type UpdateChangeRequestStatusParams struct {
	ID         string
	Status     models.ChangeStatus
	ReviewedBy *string
	ReviewedAt time.Time
	Notes      *string
}

// UpdateStatus records a review decision. Only pending requests transition;
// sql.ErrNoRows is returned when the request was already reviewed.
func (r *ChangeRequestRepository) UpdateStatus(ctx context.Context, params UpdateChangeRequestStatusParams) error {
	const query = `UPDATE change_requests
	SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, notes = COALESCE(:notes, notes)
	WHERE id = :id AND status = :pending`
	result, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"reviewed_by": params.ReviewedBy,
		"reviewed_at": params.ReviewedAt,
		"notes":       params.Notes,
		"pending":     models.ChangeStatusPending,
	})
	if err != nil {
		return fmt.Errorf("update change request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus groups request totals by status and model type.
func (r *ChangeRequestRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, model_type, COUNT(*) AS total FROM change_requests GROUP BY status, model_type`
	var counts []models.StatusCount
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &counts, query); err != nil {
		return nil, fmt.Errorf("count change requests: %w", err)
	}
	return counts, nil
}

// DescribeTarget builds the reviewer facing label of a request target.
func (r *ChangeRequestRepository) DescribeTarget(ctx context.Context, modelType models.ModelType, objectID string) (*models.TargetDescription, error) {
	var (
		query string
		args  = []interface{}{objectID}
	)
	switch modelType {
	case models.ModelTypeStudent:
		query = `SELECT s.name AS details, s.class_admitted AS class_name FROM students s WHERE s.id::text = $1`
	case models.ModelTypeMarks:
		query = `SELECT st.name || ' - ' || sub.name AS details, c.name AS class_name
		FROM marks m JOIN students st ON st.id = m.student_id JOIN subjects sub ON sub.id = m.subject_id
		JOIN classes c ON c.id = sub.class_id WHERE m.id::text = $1`
	case models.ModelTypeAttendance:
		query = `SELECT st.name || ' - ' || to_char(a.date, 'YYYY-MM-DD') AS details, st.class_admitted AS class_name
		FROM attendance a JOIN students st ON st.id = a.student_id WHERE a.id::text = $1`
	case models.ModelTypeFee:
		query = `SELECT st.name || ' - ' || f.month AS details, st.class_admitted AS class_name
		FROM fees f JOIN students st ON st.id = f.student_id WHERE f.id::text = $1`
	case models.ModelTypeMonthlyTest:
		query = `SELECT t.title || ' - ' || t.subject AS details, c.name AS class_name
		FROM monthly_tests t JOIN classes c ON c.id = t.class_id WHERE t.id::text = $1`
	case models.ModelTypeTestMarks:
		// A composite key may name a mark that has not been entered yet, so it
		// resolves through the test and the student rather than the row.
		if testID, studentID, ok := models.ParseTestMarksKey(objectID); ok {
			query = `SELECT st.name || ' - ' || t.title || ' (' || t.subject || ')' AS details, c.name AS class_name
			FROM monthly_tests t JOIN classes c ON c.id = t.class_id JOIN students st ON st.id::text = $2
			WHERE t.id::text = $1`
			args = []interface{}{testID, studentID}
		} else {
			query = `SELECT st.name || ' - ' || t.title || ' (' || t.subject || ')' AS details, c.name AS class_name
			FROM test_marks tm JOIN students st ON st.id = tm.student_id JOIN monthly_tests t ON t.id = tm.test_id
			JOIN classes c ON c.id = t.class_id WHERE tm.id::text = $1`
		}
	default:
		return nil, fmt.Errorf("describe target: unsupported model type %q", modelType)
	}
	var description models.TargetDescription
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &description, query, args...); err != nil {
		return nil, err
	}
	return &description, nil
}

func pointers(requests []models.ChangeRequest) []*models.ChangeRequest {
	out := make([]*models.ChangeRequest, len(requests))
	for i := range requests {
		out[i] = &requests[i]
	}
	return out
}
