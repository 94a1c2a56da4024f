package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

const studentColumns = `s.id, s.serial_no, s.name, s.date_of_admission, s.dob, s.dob_words, s.father_name, s.tribe_or_caste,
        s.occupation, s.residence, s.class_admitted, s.age_at_admission, s.class_withdrawn, s.date_of_withdrawal,
        s.remarks, s.gender, s.created_at, s.updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter within the caller's scope.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter, scope Scope) ([]models.Student, error) {
	q := &Query{}
	if filter.ClassName != "" {
		q.Where("s.class_admitted = $%d", filter.ClassName)
	}
	if filter.Gender != "" {
		q.Where("s.gender = $%d", filter.Gender)
	}
	if filter.Search != "" {
		q.Where("LOWER(s.name) LIKE $%d", "%"+strings.ToLower(filter.Search)+"%")
	}
	ScopeQuery(q, scope, ScopeByClassName, "s.class_admitted")

	query := fmt.Sprintf("SELECT %s FROM students s%s ORDER BY s.serial_no NULLS LAST, s.name", studentColumns, q.Clause())
	var students []models.Student
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &students, query, q.Args()...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListByClassName returns every student admitted to the named class.
func (r *StudentRepository) ListByClassName(ctx context.Context, className string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.class_admitted = $1 ORDER BY s.name", studentColumns)
	var students []models.Student
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &students, query, className); err != nil {
		return nil, fmt.Errorf("list students by class: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	var student models.Student
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, serial_no, name, date_of_admission, dob, dob_words, father_name, tribe_or_caste,
        occupation, residence, class_admitted, age_at_admission, class_withdrawn, date_of_withdrawal, remarks, gender, created_at, updated_at)
        VALUES (:id, :serial_no, :name, :date_of_admission, :dob, :dob_words, :father_name, :tribe_or_caste,
        :occupation, :residence, :class_admitted, :age_at_admission, :class_withdrawn, :date_of_withdrawal, :remarks, :gender, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists every profile column of an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET serial_no = :serial_no, name = :name, date_of_admission = :date_of_admission, dob = :dob,
        dob_words = :dob_words, father_name = :father_name, tribe_or_caste = :tribe_or_caste, occupation = :occupation,
        residence = :residence, class_admitted = :class_admitted, age_at_admission = :age_at_admission,
        class_withdrawn = :class_withdrawn, date_of_withdrawal = :date_of_withdrawal, remarks = :remarks, gender = :gender,
        updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}
