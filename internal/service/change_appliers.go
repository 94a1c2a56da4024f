package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter, scope repository.Scope) ([]models.Student, error)
	ListByClassName(ctx context.Context, className string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

type marksStore interface {
	List(ctx context.Context, filter models.MarksFilter, scope repository.Scope) ([]models.Marks, error)
	FindByID(ctx context.Context, id string) (*models.Marks, error)
	FindByKey(ctx context.Context, studentID, subjectID string) (*models.Marks, error)
	Create(ctx context.Context, marks *models.Marks) error
	Update(ctx context.Context, marks *models.Marks) error
}

type attendanceStore interface {
	List(ctx context.Context, filter models.AttendanceFilter, scope repository.Scope) ([]models.Attendance, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	FindByKey(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error)
	Create(ctx context.Context, row *models.Attendance) error
	Update(ctx context.Context, row *models.Attendance) error
}

type feeStore interface {
	List(ctx context.Context, filter models.FeeFilter, scope repository.Scope) ([]models.Fee, error)
	FindByID(ctx context.Context, id string) (*models.Fee, error)
	FindByKey(ctx context.Context, studentID, month string) (*models.Fee, error)
	Create(ctx context.Context, fee *models.Fee) error
	Update(ctx context.Context, fee *models.Fee) error
}

type monthlyTestStore interface {
	List(ctx context.Context, filter models.MonthlyTestFilter, scope repository.Scope) ([]models.MonthlyTest, error)
	FindByID(ctx context.Context, id string) (*models.MonthlyTest, error)
	Create(ctx context.Context, test *models.MonthlyTest) error
	Update(ctx context.Context, test *models.MonthlyTest) error
}

type testMarksStore interface {
	List(ctx context.Context, filter models.TestMarksFilter, scope repository.Scope) ([]models.TestMarks, error)
	FindByID(ctx context.Context, id string) (*models.TestMarks, error)
	FindByKey(ctx context.Context, testID, studentID string) (*models.TestMarks, error)
	Create(ctx context.Context, marks *models.TestMarks) error
	Update(ctx context.Context, marks *models.TestMarks) error
	UpdateTotalMarksByTest(ctx context.Context, testID string, totalMarks int) (int64, error)
}

// EntityStores groups the repositories of every record kind.
type EntityStores struct {
	Students     studentStore
	Marks        marksStore
	Attendance   attendanceStore
	Fees         feeStore
	MonthlyTests monthlyTestStore
	TestMarks    testMarksStore
}

// ChangeApplier writes an approved change request into its target record.
type ChangeApplier interface {
	Apply(ctx context.Context, request *models.ChangeRequest) (interface{}, error)
}

// ChangeApplierFunc allows using plain functions.
type ChangeApplierFunc func(ctx context.Context, request *models.ChangeRequest) (interface{}, error)

// Apply implements ChangeApplier.
func (f ChangeApplierFunc) Apply(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
	return f(ctx, request)
}

// NewChangeAppliers builds the applier of every model type backed by stores.
func NewChangeAppliers(stores EntityStores, logger *zap.Logger) map[models.ModelType]ChangeApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return map[models.ModelType]ChangeApplier{
		models.ModelTypeStudent: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			student, err := loadByID(ctx, request.ObjectID, "student", stores.Students.FindByID)
			if err != nil {
				return nil, err
			}
			if _, err := studentFields.apply(student, request.Items); err != nil {
				return nil, err
			}
			if err := stores.Students.Update(ctx, student); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
			}
			return student, nil
		}),
		models.ModelTypeMarks: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			marks, err := loadByID(ctx, request.ObjectID, "marks", stores.Marks.FindByID)
			if err != nil {
				return nil, err
			}
			if _, err := marksFields.apply(marks, request.Items); err != nil {
				return nil, err
			}
			if err := stores.Marks.Update(ctx, marks); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update marks")
			}
			return marks, nil
		}),
		models.ModelTypeAttendance: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			row, err := loadByID(ctx, request.ObjectID, "attendance", stores.Attendance.FindByID)
			if err != nil {
				return nil, err
			}
			if _, err := attendanceFields.apply(row, request.Items); err != nil {
				return nil, err
			}
			if err := stores.Attendance.Update(ctx, row); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
			}
			return row, nil
		}),
		models.ModelTypeFee: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			fee, err := loadByID(ctx, request.ObjectID, "fee", stores.Fees.FindByID)
			if err != nil {
				return nil, err
			}
			if _, err := feeFields.apply(fee, request.Items); err != nil {
				return nil, err
			}
			if err := stores.Fees.Update(ctx, fee); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
			}
			return fee, nil
		}),
		models.ModelTypeMonthlyTest: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			test, err := loadByID(ctx, request.ObjectID, "monthly test", stores.MonthlyTests.FindByID)
			if err != nil {
				return nil, err
			}
			if _, err := monthlyTestFields.apply(test, request.Items); err != nil {
				return nil, err
			}
			if err := stores.MonthlyTests.Update(ctx, test); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update monthly test")
			}
			rows, err := stores.TestMarks.UpdateTotalMarksByTest(ctx, test.ID, test.TotalMarks)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cascade total marks")
			}
			logger.Debug("cascaded monthly test total marks",
				zap.String("test_id", test.ID), zap.Int("total_marks", test.TotalMarks), zap.Int64("rows", rows))
			return test, nil
		}),
		models.ModelTypeTestMarks: ChangeApplierFunc(func(ctx context.Context, request *models.ChangeRequest) (interface{}, error) {
			marks, err := resolveTestMarks(ctx, stores.TestMarks, request.ObjectID)
			if err != nil {
				return nil, err
			}
			if _, err := testMarksFields.apply(marks, request.Items); err != nil {
				return nil, err
			}
			if err := stores.TestMarks.Update(ctx, marks); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update test marks")
			}
			return marks, nil
		}),
	}
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// loadByID fetches a record by UUID translating absence into NotFound.
func loadByID[T any](ctx context.Context, id, label string, find func(context.Context, string) (*T, error)) (*T, error) {
	if !isUUID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", label))
	}
	record, err := find(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", label))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to load %s", label))
	}
	return record, nil
}

// resolveTestMarks looks the row up by id first and then by the
// "<testId>_<studentId>" composite key. Anything that is neither a row id nor
// a well-formed composite key is invalid input.
func resolveTestMarks(ctx context.Context, store testMarksStore, objectID string) (*models.TestMarks, error) {
	if isUUID(objectID) {
		marks, err := store.FindByID(ctx, objectID)
		if err == nil {
			return marks, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test marks not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test marks")
	}
	testID, studentID, ok := models.ParseTestMarksKey(objectID)
	if !ok || !isUUID(testID) || !isUUID(studentID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed test marks key %q", objectID))
	}
	marks, err := store.FindByKey(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test marks not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test marks")
	}
	return marks, nil
}
