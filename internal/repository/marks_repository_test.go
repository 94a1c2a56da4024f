package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

func TestMarksRepositoryListFiltersByClassWithinScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "subject_id", "marks", "student_name", "subject_name", "created_at", "updated_at"}).
		AddRow("m1", "s1", "sub1", 78.5, "Amina", "Math", now, now).
		AddRow("m2", "s1", "sub2", nil, "Amina", "Urdu", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE sub.class_id = $1 AND sub.class_id = ANY($2) ORDER BY st.name, sub.name")).
		WithArgs("c7", sqlmock.AnyArg()).
		WillReturnRows(rows)

	scope := ScopeFor(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher, ClassIDs: []string{"c7"}})
	marks, err := repo.List(context.Background(), models.MarksFilter{ClassID: "c7"}, scope)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, 78.5, *marks[0].Marks)
	assert.Nil(t, marks[1].Marks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarksRepositoryFindByKeyNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)

	mock.ExpectQuery("FROM marks WHERE student_id = \\$1 AND subject_id = \\$2").
		WithArgs("s1", "sub1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByKey(context.Background(), "s1", "sub1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarksRepositoryUpdateJoinsTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)
	tx := NewTxManager(db)

	value := 91.0
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE marks SET marks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.Update(ctx, &models.Marks{ID: "m1", Marks: &value})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
