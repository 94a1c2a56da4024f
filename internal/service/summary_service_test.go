package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

var adminScope = repository.ScopeFor(&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

type summaryFixture struct {
	classID   string
	studentID string
	subjects  *stubSubjects
	marks     *memMarks
	tests     *memMonthlyTests
	scores    *memTestMarks
	requests  *memChangeRequests
	service   *SummaryService
}

func newSummaryFixture() *summaryFixture {
	f := &summaryFixture{
		classID:   uuid.NewString(),
		studentID: uuid.NewString(),
		marks:     newMemMarks(),
		tests:     newMemMonthlyTests(),
		scores:    newMemTestMarks(),
		requests:  newMemChangeRequests(),
	}
	f.subjects = &stubSubjects{subjects: []models.Subject{
		{ID: "sub-math", Name: "Math", ClassID: f.classID},
		{ID: "sub-eng", Name: "English", ClassID: f.classID},
		{ID: "sub-sci", Name: "Science", ClassID: f.classID},
	}}
	f.service = NewSummaryService(f.subjects, f.marks, f.tests, f.scores, f.requests, nil)
	return f
}

func TestMarksSummarySubstitutesPendingValues(t *testing.T) {
	f := newSummaryFixture()
	f.marks.rows["m-math"] = models.Marks{ID: "m-math", StudentID: f.studentID, SubjectID: "sub-math", Marks: floatPtr(80)}
	f.marks.rows["m-eng"] = models.Marks{ID: "m-eng", StudentID: f.studentID, SubjectID: "sub-eng", Marks: floatPtr(70)}
	pending := f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeMarks,
		ObjectID:  "m-eng",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "70", NewValue: "100"}},
	})

	summary, err := f.service.MarksSummary(context.Background(), f.studentID, f.classID, adminScope)
	require.NoError(t, err)
	assert.Equal(t, 300, summary.TotalMarks)
	assert.Equal(t, 180.0, summary.ObtainedMarks)
	assert.Equal(t, 60.0, summary.Percent)
	assert.Equal(t, "D", summary.Grade)
	assert.True(t, summary.HasPendingChanges)

	require.Len(t, summary.Subjects, 3)
	english := summary.Subjects[1]
	assert.Equal(t, pending.ID, english.ChangeRequestID)
	assert.Equal(t, 100.0, *english.PendingMarks)
	assert.Equal(t, 70.0, *english.Marks)
	assert.Nil(t, summary.Subjects[2].Marks)
	assert.Zero(t, summary.Subjects[2].EffectiveMarks)
}

func TestMarksSummaryEmptyPendingCountsAsZero(t *testing.T) {
	f := newSummaryFixture()
	f.marks.rows["m-math"] = models.Marks{ID: "m-math", StudentID: f.studentID, SubjectID: "sub-math", Marks: floatPtr(90)}
	f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeMarks,
		ObjectID:  "m-math",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "90", NewValue: ""}},
	})

	summary, err := f.service.MarksSummary(context.Background(), f.studentID, f.classID, adminScope)
	require.NoError(t, err)
	assert.Zero(t, summary.ObtainedMarks)
	assert.Equal(t, "F", summary.Grade)
}

func TestMarksSummaryRespectsScope(t *testing.T) {
	f := newSummaryFixture()
	teacher := repository.ScopeFor(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher, ClassIDs: []string{uuid.NewString()}})

	_, err := f.service.MarksSummary(context.Background(), f.studentID, f.classID, teacher)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.service.MarksSummary(context.Background(), "x", f.classID, adminScope)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListMarksDecoratesRows(t *testing.T) {
	f := newSummaryFixture()
	f.marks.rows["a"] = models.Marks{ID: "a", Marks: floatPtr(50)}
	f.marks.rows["b"] = models.Marks{ID: "b", Marks: floatPtr(60)}
	f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeMarks,
		ObjectID:  "b",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "60", NewValue: "65"}},
	})

	views, err := f.service.ListMarks(context.Background(), models.MarksFilter{}, adminScope)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.False(t, views[0].HasPendingChanges)
	assert.Nil(t, views[0].PendingMarks)
	assert.True(t, views[1].HasPendingChanges)
	assert.Equal(t, 65.0, *views[1].PendingMarks)
}

func TestListTestMarksMatchesCompositeAndIDKeys(t *testing.T) {
	f := newSummaryFixture()
	testID := uuid.NewString()
	f.scores.rows["r1"] = models.TestMarks{ID: "r1", TestID: testID, StudentID: "s1", Marks: 10}
	f.scores.rows["r2"] = models.TestMarks{ID: "r2", TestID: testID, StudentID: "s2", Marks: 20}
	f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeTestMarks,
		ObjectID:  testID + "_s1",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "10", NewValue: "15"}},
	})
	f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeTestMarks,
		ObjectID:  "r2",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "20", NewValue: "25"}},
	})

	views, err := f.service.ListTestMarks(context.Background(), models.TestMarksFilter{TestID: testID}, adminScope)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 15.0, *views[0].PendingMarks)
	assert.Equal(t, 25.0, *views[1].PendingMarks)
}

func TestTestSummaryUsesPendingMarks(t *testing.T) {
	f := newSummaryFixture()
	test := models.MonthlyTest{ID: uuid.NewString(), Title: "May", Subject: "Math", ClassID: f.classID, TotalMarks: 50}
	f.tests.rows[test.ID] = test
	f.scores.rows["r1"] = models.TestMarks{ID: "r1", TestID: test.ID, StudentID: "s1", Marks: 40, TotalMarks: 50}
	f.scores.rows["r2"] = models.TestMarks{ID: "r2", TestID: test.ID, StudentID: "s2", Marks: 30, TotalMarks: 50}
	f.requests.seed(models.ChangeRequest{
		ModelType: models.ModelTypeTestMarks,
		ObjectID:  test.ID + "_s2",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "marks", OldValue: "30", NewValue: "35"}},
	})

	summary, err := f.service.TestSummary(context.Background(), test.ID, adminScope)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.StudentCount)
	assert.Equal(t, 75.0, summary.ObtainedMarks)
	assert.Equal(t, 100, summary.PossibleMarks)
	assert.Equal(t, 37.5, summary.AverageMarks)
	assert.Equal(t, 75.0, summary.Percent)
	assert.True(t, summary.HasPendingChanges)
}

func TestGradeThresholds(t *testing.T) {
	cases := map[float64]string{95: "A", 90: "A", 89.99: "B", 80: "B", 70: "C", 60: "D", 59.9: "F", 0: "F"}
	for percent, grade := range cases {
		assert.Equal(t, grade, gradeFor(percent), "percent %v", percent)
	}
}
