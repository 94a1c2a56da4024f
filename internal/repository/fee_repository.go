package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// FeeRepository persists monthly fee rows.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// List returns fee rows within scope.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter, scope Scope) ([]models.Fee, error) {
	q := &Query{}
	if filter.StudentID != "" {
		q.Where("f.student_id = $%d", filter.StudentID)
	}
	if filter.Month != "" {
		q.Where("f.month = $%d", filter.Month)
	}
	if filter.ClassName != "" {
		q.Where("st.class_admitted = $%d", filter.ClassName)
	}
	ScopeQuery(q, scope, ScopeByClassName, "st.class_admitted")
	query := `SELECT f.id, f.student_id, f.month, f.total_fee, f.submitted_fee, f.fine, f.absentees, st.name AS student_name, f.created_at, f.updated_at
	FROM fees f JOIN students st ON st.id = f.student_id` + q.Clause() + ` ORDER BY f.month DESC, st.name`
	var fees []models.Fee
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &fees, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	return fees, nil
}

// FindByID fetches a fee row.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.Fee, error) {
	const query = `SELECT id, student_id, month, total_fee, submitted_fee, fine, absentees, created_at, updated_at FROM fees WHERE id = $1`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &fee, query, id); err != nil {
		return nil, err
	}
	return &fee, nil
}

// FindByKey fetches the fee of a student for a month.
func (r *FeeRepository) FindByKey(ctx context.Context, studentID, month string) (*models.Fee, error) {
	const query = `SELECT id, student_id, month, total_fee, submitted_fee, fine, absentees, created_at, updated_at FROM fees WHERE student_id = $1 AND month = $2`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &fee, query, studentID, month); err != nil {
		return nil, err
	}
	return &fee, nil
}

// Create inserts a fee row.
func (r *FeeRepository) Create(ctx context.Context, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	fee.CreatedAt = now
	fee.UpdatedAt = now
	const query = `INSERT INTO fees (id, student_id, month, total_fee, submitted_fee, fine, absentees, created_at, updated_at)
	VALUES (:id, :student_id, :month, :total_fee, :submitted_fee, :fine, :absentees, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, fee); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// Update persists the monetary columns.
func (r *FeeRepository) Update(ctx context.Context, fee *models.Fee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fees SET total_fee = :total_fee, submitted_fee = :submitted_fee, fine = :fine, absentees = :absentees,
	updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, fee); err != nil {
		return fmt.Errorf("update fee: %w", err)
	}
	return nil
}
