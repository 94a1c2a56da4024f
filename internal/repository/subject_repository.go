package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects, optionally of a single class, within scope.
func (r *SubjectRepository) List(ctx context.Context, classID string, scope Scope) ([]models.Subject, error) {
	q := &Query{}
	if classID != "" {
		q.Where("sub.class_id = $%d", classID)
	}
	ScopeQuery(q, scope, ScopeByClassID, "sub.class_id")
	query := `SELECT sub.id, sub.name, sub.class_id, c.name AS class_name, sub.created_at
	FROM subjects sub JOIN classes c ON c.id = sub.class_id` + q.Clause() + ` ORDER BY c.name, sub.name`
	var subjects []models.Subject
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &subjects, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListByClass returns every subject taught in a class.
func (r *SubjectRepository) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	const query = `SELECT id, name, class_id, created_at FROM subjects WHERE class_id = $1 ORDER BY name`
	var subjects []models.Subject
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &subjects, query, classID); err != nil {
		return nil, fmt.Errorf("list subjects by class: %w", err)
	}
	return subjects, nil
}

// FindByID returns a subject by ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, name, class_id, created_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsInClass reports whether a subject name is already used in the class.
func (r *SubjectRepository) ExistsInClass(ctx context.Context, name, classID string) (bool, error) {
	const query = `SELECT 1 FROM subjects WHERE LOWER(name) = LOWER($1) AND class_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, name, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check subject name: %w", err)
	}
	return true, nil
}

// Create inserts a subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subjects (id, name, class_id, created_at) VALUES (:id, :name, :class_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}
