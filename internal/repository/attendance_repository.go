package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// AttendanceRepository persists daily attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows within scope, latest date first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter, scope Scope) ([]models.Attendance, error) {
	q := &Query{}
	if filter.StudentID != "" {
		q.Where("a.student_id = $%d", filter.StudentID)
	}
	if filter.ClassName != "" {
		q.Where("st.class_admitted = $%d", filter.ClassName)
	}
	if filter.Date != nil {
		q.Where("a.date = $%d", *filter.Date)
	}
	ScopeQuery(q, scope, ScopeByClassName, "st.class_admitted")
	query := `SELECT a.id, a.student_id, a.date, a.present, st.name AS student_name, a.created_at, a.updated_at
	FROM attendance a JOIN students st ON st.id = a.student_id` + q.Clause() + ` ORDER BY a.date DESC, st.name`
	var rows []models.Attendance
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &rows, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}

// FindByID fetches an attendance row.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	const query = `SELECT id, student_id, date, present, created_at, updated_at FROM attendance WHERE id = $1`
	var row models.Attendance
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByKey fetches the attendance of a student on a date.
func (r *AttendanceRepository) FindByKey(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	const query = `SELECT id, student_id, date, present, created_at, updated_at FROM attendance WHERE student_id = $1 AND date = $2`
	var row models.Attendance
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &row, query, studentID, date); err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts an attendance row.
func (r *AttendanceRepository) Create(ctx context.Context, row *models.Attendance) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	const query = `INSERT INTO attendance (id, student_id, date, present, created_at, updated_at)
	VALUES (:id, :student_id, :date, :present, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, row); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// Update persists the presence flag.
func (r *AttendanceRepository) Update(ctx context.Context, row *models.Attendance) error {
	row.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance SET present = :present, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, row); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}
