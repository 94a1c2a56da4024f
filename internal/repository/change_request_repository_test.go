package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

var changeRequestRowColumns = []string{"id", "model_type", "object_id", "status", "requested_by", "requested_by_name",
	"requested_at", "reviewed_by", "reviewed_by_name", "reviewed_at", "notes"}

var itemRowColumns = []string{"id", "change_request_id", "field_name", "old_value", "new_value", "position"}

func TestChangeRequestFindPendingLoadsItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cr.model_type = $1 AND cr.object_id = $2 AND cr.status = $3")).
		WithArgs(models.ModelTypeMarks, "marks-1", models.ChangeStatusPending).
		WillReturnRows(sqlmock.NewRows(changeRequestRowColumns).
			AddRow("cr-1", "marks", "marks-1", "pending", nil, "", now, nil, "", nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM change_request_items WHERE change_request_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(itemRowColumns).
			AddRow("i-1", "cr-1", "marks", "40", "55", 0))

	request, err := repo.FindPending(context.Background(), models.ModelTypeMarks, "marks-1")
	require.NoError(t, err)
	assert.Nil(t, request.RequestedBy)
	require.Len(t, request.Items, 1)
	item, ok := request.FieldChange("marks")
	require.True(t, ok)
	assert.Equal(t, "55", item.NewValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestFindPendingNone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectQuery("FROM change_requests cr").WillReturnRows(sqlmock.NewRows(changeRequestRowColumns))

	_, err := repo.FindPending(context.Background(), models.ModelTypeFee, "fee-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestCreateInsertsItemsInOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectExec("INSERT INTO change_requests").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO change_request_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO change_request_items").WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ChangeRequest{
		ModelType: models.ModelTypeFee,
		ObjectID:  "fee-1",
		Items: []models.ChangeRequestItem{
			{FieldName: "total_fee", OldValue: "100", NewValue: "120"},
			{FieldName: "fine", OldValue: "0", NewValue: "5"},
		},
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.Equal(t, models.ChangeStatusPending, request.Status)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, request.ID, request.Items[1].ChangeRequestID)
	assert.Equal(t, 1, request.Items[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestReplaceItemsWithEmptySet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM change_request_items WHERE change_request_id = $1")).
		WithArgs("cr-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.ReplaceItems(context.Background(), "cr-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestUpdateStatusAlreadyReviewed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectExec("UPDATE change_requests").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), UpdateChangeRequestStatusParams{
		ID:         "cr-1",
		Status:     models.ChangeStatusApproved,
		ReviewedAt: time.Now(),
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE cr.status = ANY($1) AND cr.model_type = $2 ORDER BY cr.requested_at DESC LIMIT 50 OFFSET 0")).
		WithArgs(sqlmock.AnyArg(), models.ModelTypeStudent).
		WillReturnRows(sqlmock.NewRows(changeRequestRowColumns).
			AddRow("cr-2", "student", "s-1", "approved", "u-1", "clerk", now, "u-2", "principal", now, "ok"))
	mock.ExpectQuery("FROM change_request_items").WillReturnRows(sqlmock.NewRows(itemRowColumns))

	requests, err := repo.List(context.Background(), models.ChangeRequestFilter{
		Status:    []models.ChangeStatus{models.ChangeStatusApproved, models.ChangeStatusRejected},
		ModelType: models.ModelTypeStudent,
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "principal", requests[0].ReviewedByName)
	assert.NotNil(t, requests[0].Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestDescribeCompositeTestMarks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM monthly_tests t JOIN classes c ON c.id = t.class_id JOIN students st ON st.id::text = $2")).
		WithArgs("test-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"details", "class_name"}).AddRow("Amina - Quiz (Math)", "Grade 7"))

	description, err := repo.DescribeTarget(context.Background(), models.ModelTypeTestMarks, "test-1_student-1")
	require.NoError(t, err)
	assert.Equal(t, "Grade 7", description.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestDescribeCompositeDoesNotRequireMarksRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectQuery("FROM monthly_tests t").
		WithArgs("test-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"details", "class_name"}).AddRow("Amina - Quiz (Math)", "Grade 7"))

	_, err := repo.DescribeTarget(context.Background(), models.ModelTypeTestMarks, "test-1_student-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestDescribeTestMarksByRowID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM test_marks tm JOIN students st ON st.id = tm.student_id")).
		WithArgs("tm-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.DescribeTarget(context.Background(), models.ModelTypeTestMarks, "tm-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("marks:m-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := txm.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.LockObject(ctx, models.ModelTypeMarks, "m-1"); err != nil {
			return err
		}
		return txm.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
