package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type subjectLister interface {
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
}

type pendingLister interface {
	ListPendingByObjects(ctx context.Context, modelType models.ModelType, objectIDs []string) ([]models.ChangeRequest, error)
}

// SummaryService aggregates marks with pending changes substituted for live values.
type SummaryService struct {
	subjects  subjectLister
	marks     marksStore
	tests     monthlyTestStore
	testMarks testMarksStore
	pending   pendingLister
	logger    *zap.Logger
}

// NewSummaryService constructs the service.
func NewSummaryService(subjects subjectLister, marks marksStore, tests monthlyTestStore, testMarks testMarksStore, pending pendingLister, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{subjects: subjects, marks: marks, tests: tests, testMarks: testMarks, pending: pending, logger: logger}
}

// MarksSummary totals a student's marks across every subject of a class.
func (s *SummaryService) MarksSummary(ctx context.Context, studentID, classID string, scope repository.Scope) (*dto.MarksSummary, error) {
	if !isUUID(studentID) || !isUUID(classID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id and class_id must be valid ids")
	}
	if !scope.AllowsClass(classID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is outside your assignment")
	}
	subjects, err := s.subjects.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	rows, err := s.marks.List(ctx, models.MarksFilter{StudentID: studentID, ClassID: classID}, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}
	bySubject := make(map[string]models.Marks, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		bySubject[row.SubjectID] = row
		ids = append(ids, row.ID)
	}
	pending, err := s.pendingIndex(ctx, models.ModelTypeMarks, ids)
	if err != nil {
		return nil, err
	}

	summary := &dto.MarksSummary{
		StudentID:  studentID,
		ClassID:    classID,
		TotalMarks: len(subjects) * dto.PerSubjectTotalMarks,
		Subjects:   make([]dto.SubjectMarks, 0, len(subjects)),
	}
	for _, subject := range subjects {
		line := dto.SubjectMarks{SubjectID: subject.ID, SubjectName: subject.Name}
		if row, ok := bySubject[subject.ID]; ok {
			line.MarksID = row.ID
			line.Marks = row.Marks
			if row.Marks != nil {
				line.EffectiveMarks = *row.Marks
			}
			if request := pending[row.ID]; request != nil {
				line.ChangeRequestID = request.ID
				if value, ok := s.pendingMarks(request); ok {
					line.PendingMarks = &value
					line.EffectiveMarks = value
					line.HasPendingChanges = true
					summary.HasPendingChanges = true
				}
			}
		}
		summary.ObtainedMarks += line.EffectiveMarks
		summary.Subjects = append(summary.Subjects, line)
	}
	summary.Percent = percentOf(summary.ObtainedMarks, float64(summary.TotalMarks))
	summary.Grade = gradeFor(summary.Percent)
	return summary, nil
}

// ListMarks returns marks rows decorated with their pending change.
func (s *SummaryService) ListMarks(ctx context.Context, filter models.MarksFilter, scope repository.Scope) ([]dto.MarksView, error) {
	rows, err := s.marks.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	pending, err := s.pendingIndex(ctx, models.ModelTypeMarks, ids)
	if err != nil {
		return nil, err
	}
	views := make([]dto.MarksView, len(rows))
	for i, row := range rows {
		views[i] = dto.MarksView{Marks: row}
		if request := pending[row.ID]; request != nil {
			views[i].ChangeRequestID = request.ID
			if value, ok := s.pendingMarks(request); ok {
				views[i].PendingMarks = &value
				views[i].HasPendingChanges = true
			}
		}
	}
	return views, nil
}

// ListTestMarks returns test marks rows decorated with their pending change.
func (s *SummaryService) ListTestMarks(ctx context.Context, filter models.TestMarksFilter, scope repository.Scope) ([]dto.TestMarksView, error) {
	rows, err := s.testMarks.List(ctx, filter, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list test marks")
	}
	pending, err := s.testMarksPending(ctx, rows)
	if err != nil {
		return nil, err
	}
	views := make([]dto.TestMarksView, len(rows))
	for i, row := range rows {
		views[i] = dto.TestMarksView{TestMarks: row}
		if request := pending[row.ID]; request != nil {
			views[i].ChangeRequestID = request.ID
			if value, ok := s.pendingMarks(request); ok {
				views[i].PendingMarks = &value
				views[i].HasPendingChanges = true
			}
		}
	}
	return views, nil
}

// TestSummary aggregates a monthly test across its students.
func (s *SummaryService) TestSummary(ctx context.Context, testID string, scope repository.Scope) (*dto.TestSummary, error) {
	test, err := loadByID(ctx, testID, "monthly test", s.tests.FindByID)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsClass(test.ClassID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is outside your assignment")
	}
	rows, err := s.testMarks.List(ctx, models.TestMarksFilter{TestID: test.ID}, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list test marks")
	}
	pending, err := s.testMarksPending(ctx, rows)
	if err != nil {
		return nil, err
	}

	summary := &dto.TestSummary{
		TestID:       test.ID,
		Title:        test.Title,
		Subject:      test.Subject,
		TotalMarks:   test.TotalMarks,
		StudentCount: len(rows),
	}
	for _, row := range rows {
		value := row.Marks
		if request := pending[row.ID]; request != nil {
			if pendingValue, ok := s.pendingMarks(request); ok {
				value = pendingValue
				summary.HasPendingChanges = true
			}
		}
		summary.ObtainedMarks += value
	}
	summary.PossibleMarks = summary.StudentCount * test.TotalMarks
	if summary.StudentCount > 0 {
		summary.AverageMarks = round2(summary.ObtainedMarks / float64(summary.StudentCount))
	}
	summary.Percent = percentOf(summary.ObtainedMarks, float64(summary.PossibleMarks))
	return summary, nil
}

// testMarksPending indexes pending requests by row id. A request keyed by the
// row id wins over one filed under the composite key before the row existed.
func (s *SummaryService) testMarksPending(ctx context.Context, rows []models.TestMarks) (map[string]*models.ChangeRequest, error) {
	keys := make([]string, 0, len(rows)*2)
	for _, row := range rows {
		keys = append(keys, row.ID, row.CompositeKey())
	}
	byObject, err := s.pendingIndex(ctx, models.ModelTypeTestMarks, keys)
	if err != nil {
		return nil, err
	}
	byRow := make(map[string]*models.ChangeRequest, len(rows))
	for _, row := range rows {
		if request := byObject[row.ID]; request != nil {
			byRow[row.ID] = request
		} else if request := byObject[row.CompositeKey()]; request != nil {
			byRow[row.ID] = request
		}
	}
	return byRow, nil
}

func (s *SummaryService) pendingIndex(ctx context.Context, modelType models.ModelType, objectIDs []string) (map[string]*models.ChangeRequest, error) {
	index := make(map[string]*models.ChangeRequest, len(objectIDs))
	if len(objectIDs) == 0 {
		return index, nil
	}
	requests, err := s.pending.ListPendingByObjects(ctx, modelType, objectIDs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending changes")
	}
	for i := range requests {
		index[requests[i].ObjectID] = &requests[i]
	}
	return index, nil
}

// pendingMarks reads the proposed marks value; an empty value counts as zero.
func (s *SummaryService) pendingMarks(request *models.ChangeRequest) (float64, bool) {
	item, ok := request.FieldChange("marks")
	if !ok {
		return 0, false
	}
	value := strings.TrimSpace(item.NewValue)
	if value == "" {
		return 0, true
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		s.logger.Warn("ignoring unparsable pending marks",
			zap.String("change_request_id", request.ID), zap.String("value", item.NewValue))
		return 0, false
	}
	return parsed, true
}

func percentOf(obtained, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(obtained / total * 100)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func gradeFor(percent float64) string {
	switch {
	case percent >= 90:
		return "A"
	case percent >= 80:
		return "B"
	case percent >= 70:
		return "C"
	case percent >= 60:
		return "D"
	default:
		return "F"
	}
}
