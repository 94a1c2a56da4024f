package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// MonthlyTestRepository persists monthly tests.
type MonthlyTestRepository struct {
	db *sqlx.DB
}

// NewMonthlyTestRepository constructs the repository.
func NewMonthlyTestRepository(db *sqlx.DB) *MonthlyTestRepository {
	return &MonthlyTestRepository{db: db}
}

// List returns monthly tests within scope.
func (r *MonthlyTestRepository) List(ctx context.Context, filter models.MonthlyTestFilter, scope Scope) ([]models.MonthlyTest, error) {
	q := &Query{}
	if filter.ClassID != "" {
		q.Where("t.class_id = $%d", filter.ClassID)
	}
	if filter.Month != "" {
		q.Where("t.month = $%d", filter.Month)
	}
	ScopeQuery(q, scope, ScopeByClassID, "t.class_id")
	query := `SELECT t.id, t.title, t.subject, t.class_id, c.name AS class_name, t.total_marks, t.description, t.month, t.created_at, t.updated_at
	FROM monthly_tests t JOIN classes c ON c.id = t.class_id` + q.Clause() + ` ORDER BY t.month DESC, t.title`
	var tests []models.MonthlyTest
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &tests, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list monthly tests: %w", err)
	}
	return tests, nil
}

// FindByID fetches a monthly test.
func (r *MonthlyTestRepository) FindByID(ctx context.Context, id string) (*models.MonthlyTest, error) {
	const query = `SELECT id, title, subject, class_id, total_marks, description, month, created_at, updated_at FROM monthly_tests WHERE id = $1`
	var test models.MonthlyTest
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &test, query, id); err != nil {
		return nil, err
	}
	return &test, nil
}

// Create inserts a monthly test.
func (r *MonthlyTestRepository) Create(ctx context.Context, test *models.MonthlyTest) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	if test.TotalMarks <= 0 {
		test.TotalMarks = models.DefaultTestTotalMarks
	}
	now := time.Now().UTC()
	test.CreatedAt = now
	test.UpdatedAt = now
	const query = `INSERT INTO monthly_tests (id, title, subject, class_id, total_marks, description, month, created_at, updated_at)
	VALUES (:id, :title, :subject, :class_id, :total_marks, :description, :month, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, test); err != nil {
		return fmt.Errorf("create monthly test: %w", err)
	}
	return nil
}

// Update persists the editable columns of a monthly test.
func (r *MonthlyTestRepository) Update(ctx context.Context, test *models.MonthlyTest) error {
	test.UpdatedAt = time.Now().UTC()
	const query = `UPDATE monthly_tests SET title = :title, subject = :subject, total_marks = :total_marks,
	description = :description, month = :month, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, test); err != nil {
		return fmt.Errorf("update monthly test: %w", err)
	}
	return nil
}
