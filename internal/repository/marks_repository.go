package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// MarksRepository persists subject marks.
type MarksRepository struct {
	db *sqlx.DB
}

// NewMarksRepository constructs the repository.
func NewMarksRepository(db *sqlx.DB) *MarksRepository {
	return &MarksRepository{db: db}
}

// List returns marks with student and subject names within scope.
func (r *MarksRepository) List(ctx context.Context, filter models.MarksFilter, scope Scope) ([]models.Marks, error) {
	q := &Query{}
	if filter.StudentID != "" {
		q.Where("m.student_id = $%d", filter.StudentID)
	}
	if filter.SubjectID != "" {
		q.Where("m.subject_id = $%d", filter.SubjectID)
	}
	if filter.ClassID != "" {
		q.Where("sub.class_id = $%d", filter.ClassID)
	}
	ScopeQuery(q, scope, ScopeByClassID, "sub.class_id")
	query := `SELECT m.id, m.student_id, m.subject_id, m.marks, st.name AS student_name, sub.name AS subject_name, m.created_at, m.updated_at
	FROM marks m JOIN students st ON st.id = m.student_id JOIN subjects sub ON sub.id = m.subject_id` +
		q.Clause() + ` ORDER BY st.name, sub.name`
	var marks []models.Marks
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &marks, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	return marks, nil
}

// FindByID fetches a marks row.
func (r *MarksRepository) FindByID(ctx context.Context, id string) (*models.Marks, error) {
	const query = `SELECT id, student_id, subject_id, marks, created_at, updated_at FROM marks WHERE id = $1`
	var marks models.Marks
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &marks, query, id); err != nil {
		return nil, err
	}
	return &marks, nil
}

// FindByKey fetches the marks row for a student and subject.
func (r *MarksRepository) FindByKey(ctx context.Context, studentID, subjectID string) (*models.Marks, error) {
	const query = `SELECT id, student_id, subject_id, marks, created_at, updated_at FROM marks WHERE student_id = $1 AND subject_id = $2`
	var marks models.Marks
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &marks, query, studentID, subjectID); err != nil {
		return nil, err
	}
	return &marks, nil
}

// Create inserts a marks row.
func (r *MarksRepository) Create(ctx context.Context, marks *models.Marks) error {
	if marks.ID == "" {
		marks.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	marks.CreatedAt = now
	marks.UpdatedAt = now
	const query = `INSERT INTO marks (id, student_id, subject_id, marks, created_at, updated_at)
	VALUES (:id, :student_id, :subject_id, :marks, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, marks); err != nil {
		return fmt.Errorf("create marks: %w", err)
	}
	return nil
}

// Update persists the marks value.
func (r *MarksRepository) Update(ctx context.Context, marks *models.Marks) error {
	marks.UpdatedAt = time.Now().UTC()
	const query = `UPDATE marks SET marks = :marks, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, marks); err != nil {
		return fmt.Errorf("update marks: %w", err)
	}
	return nil
}
