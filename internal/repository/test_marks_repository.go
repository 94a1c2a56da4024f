package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// TestMarksRepository persists monthly test results.
type TestMarksRepository struct {
	db *sqlx.DB
}

// NewTestMarksRepository constructs the repository.
func NewTestMarksRepository(db *sqlx.DB) *TestMarksRepository {
	return &TestMarksRepository{db: db}
}

// List returns test marks with student names within scope.
func (r *TestMarksRepository) List(ctx context.Context, filter models.TestMarksFilter, scope Scope) ([]models.TestMarks, error) {
	q := &Query{}
	if filter.TestID != "" {
		q.Where("tm.test_id = $%d", filter.TestID)
	}
	if filter.StudentID != "" {
		q.Where("tm.student_id = $%d", filter.StudentID)
	}
	ScopeQuery(q, scope, ScopeByClassID, "t.class_id")
	query := `SELECT tm.id, tm.test_id, tm.student_id, tm.marks, tm.total_marks, st.name AS student_name, tm.created_at, tm.updated_at
	FROM test_marks tm JOIN students st ON st.id = tm.student_id JOIN monthly_tests t ON t.id = tm.test_id` +
		q.Clause() + ` ORDER BY st.name`
	var marks []models.TestMarks
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &marks, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list test marks: %w", err)
	}
	return marks, nil
}

// FindByID fetches a test marks row.
func (r *TestMarksRepository) FindByID(ctx context.Context, id string) (*models.TestMarks, error) {
	const query = `SELECT id, test_id, student_id, marks, total_marks, created_at, updated_at FROM test_marks WHERE id = $1`
	var marks models.TestMarks
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &marks, query, id); err != nil {
		return nil, err
	}
	return &marks, nil
}

// FindByKey fetches the row of a student in a test.
func (r *TestMarksRepository) FindByKey(ctx context.Context, testID, studentID string) (*models.TestMarks, error) {
	const query = `SELECT id, test_id, student_id, marks, total_marks, created_at, updated_at FROM test_marks WHERE test_id = $1 AND student_id = $2`
	var marks models.TestMarks
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &marks, query, testID, studentID); err != nil {
		return nil, err
	}
	return &marks, nil
}

// Create inserts a test marks row.
func (r *TestMarksRepository) Create(ctx context.Context, marks *models.TestMarks) error {
	if marks.ID == "" {
		marks.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	marks.CreatedAt = now
	marks.UpdatedAt = now
	const query = `INSERT INTO test_marks (id, test_id, student_id, marks, total_marks, created_at, updated_at)
	VALUES (:id, :test_id, :student_id, :marks, :total_marks, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, marks); err != nil {
		return fmt.Errorf("create test marks: %w", err)
	}
	return nil
}

// Update persists the obtained marks.
func (r *TestMarksRepository) Update(ctx context.Context, marks *models.TestMarks) error {
	marks.UpdatedAt = time.Now().UTC()
	const query = `UPDATE test_marks SET marks = :marks, total_marks = :total_marks, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, marks); err != nil {
		return fmt.Errorf("update test marks: %w", err)
	}
	return nil
}

// UpdateTotalMarksByTest mirrors a test's total onto all of its result rows.
func (r *TestMarksRepository) UpdateTotalMarksByTest(ctx context.Context, testID string, totalMarks int) (int64, error) {
	const query = `UPDATE test_marks SET total_marks = $2, updated_at = $3 WHERE test_id = $1`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, testID, totalMarks, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cascade test total marks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check cascade rows: %w", err)
	}
	return rows, nil
}
