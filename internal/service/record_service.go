package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type classCatalogue interface {
	List(ctx context.Context, scope repository.Scope) ([]models.Class, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
}

type subjectCatalogue interface {
	List(ctx context.Context, classID string, scope repository.Scope) ([]models.Subject, error)
	ExistsInClass(ctx context.Context, name, classID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
}

// RecordService serves scoped reads of the entity store and the class and
// subject catalogue, which is written directly.
type RecordService struct {
	classes   classCatalogue
	subjects  subjectCatalogue
	stores    EntityStores
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordService constructs RecordService.
func NewRecordService(classes classCatalogue, subjects subjectCatalogue, stores EntityStores, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{classes: classes, subjects: subjects, stores: stores, validator: validate, logger: logger}
}

// ListClasses returns the classes visible in scope.
func (s *RecordService) ListClasses(ctx context.Context, scope repository.Scope) ([]models.Class, error) {
	classes, err := s.classes.List(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// CreateClass registers a class with a unique name.
func (s *RecordService) CreateClass(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class payload")
	}
	exists, err := s.classes.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("class %q already exists", req.Name))
	}
	class := &models.Class{Name: req.Name}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, translateWriteErr(err, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("name", class.Name))
	return class, nil
}

// ListSubjects returns subjects, optionally of one class.
func (s *RecordService) ListSubjects(ctx context.Context, classID string, scope repository.Scope) ([]models.Subject, error) {
	if classID != "" && !isUUID(classID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id must be a valid id")
	}
	subjects, err := s.subjects.List(ctx, classID, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// CreateSubject registers a subject; names are unique within a class.
func (s *RecordService) CreateSubject(ctx context.Context, req dto.CreateSubjectRequest) (*models.Subject, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid subject payload")
	}
	if _, err := loadByID(ctx, req.ClassID, "class", s.classes.FindByID); err != nil {
		return nil, err
	}
	exists, err := s.subjects.ExistsInClass(ctx, req.Name, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %q already exists in this class", req.Name))
	}
	subject := &models.Subject{Name: req.Name, ClassID: req.ClassID}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, translateWriteErr(err, "failed to create subject")
	}
	return subject, nil
}

// ListStudents returns students visible in scope.
func (s *RecordService) ListStudents(ctx context.Context, filter models.StudentFilter, scope repository.Scope) ([]models.Student, error) {
	students, err := s.stores.Students.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// GetStudent returns a student by id.
func (s *RecordService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	return loadByID(ctx, id, "student", s.stores.Students.FindByID)
}

// ListAttendance returns attendance rows visible in scope.
func (s *RecordService) ListAttendance(ctx context.Context, filter models.AttendanceFilter, scope repository.Scope) ([]models.Attendance, error) {
	rows, err := s.stores.Attendance.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, nil
}

// ListFees returns fee rows visible in scope.
func (s *RecordService) ListFees(ctx context.Context, filter models.FeeFilter, scope repository.Scope) ([]models.Fee, error) {
	rows, err := s.stores.Fees.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	return rows, nil
}

// ListMonthlyTests returns monthly tests visible in scope.
func (s *RecordService) ListMonthlyTests(ctx context.Context, filter models.MonthlyTestFilter, scope repository.Scope) ([]models.MonthlyTest, error) {
	if filter.ClassID != "" && !isUUID(filter.ClassID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id must be a valid id")
	}
	tests, err := s.stores.MonthlyTests.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list monthly tests")
	}
	return tests, nil
}
