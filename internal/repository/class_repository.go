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

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns the classes visible within scope ordered by name.
func (r *ClassRepository) List(ctx context.Context, scope Scope) ([]models.Class, error) {
	q := &Query{}
	ScopeQuery(q, scope, ScopeByClassID, "c.id")
	query := "SELECT c.id, c.name, c.created_at FROM classes c" + q.Clause() + " ORDER BY c.name"
	var classes []models.Class
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &classes, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, created_at FROM classes WHERE id = $1`
	var class models.Class
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByName checks if a class with the same name already exists.
func (r *ClassRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1) LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO classes (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}
