package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "username", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}

func TestFindByUsername(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "principal", "p@example.com", "hash", "Principal", string(models.RoleAdmin), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1")).
		WithArgs("Principal").
		WillReturnRows(rows)

	user, err := repo.FindByUsername(context.Background(), "Principal")
	require.NoError(t, err)
	assert.Equal(t, "principal", user.Username)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUsernameNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users WHERE LOWER").WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClassIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT class_id FROM user_classes WHERE user_id = $1")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}).AddRow("class-a").AddRow("class-b"))

	ids, err := repo.ListClassIDs(context.Background(), "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"class-a", "class-b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLogJoinsTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := txm.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.CreateAuditLog(ctx, &models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
