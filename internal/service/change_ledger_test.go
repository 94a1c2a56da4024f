package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

func TestChangeLedgerUpsertKeepsSinglePendingRequest(t *testing.T) {
	repo := newMemChangeRequests()
	tx := &fakeTx{}
	ledger := NewChangeLedger(repo, tx, nil, nil)
	actor := &models.JWTClaims{UserID: "user-1", Username: "staff1", Role: models.RoleStaff}

	first, err := ledger.Upsert(context.Background(), models.ModelTypeMarks, "marks-1",
		[]models.ChangeRequestItem{{FieldName: "marks", OldValue: "80", NewValue: "85"}}, actor)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, first.RequestedBy)
	assert.Equal(t, "user-1", *first.RequestedBy)

	second, err := ledger.Upsert(context.Background(), models.ModelTypeMarks, "marks-1",
		[]models.ChangeRequestItem{{FieldName: "marks", OldValue: "80", NewValue: "90"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, repo.creates)
	assert.Len(t, repo.pendingFor(models.ModelTypeMarks, "marks-1"), 1)
	stored := repo.requests[first.ID]
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "90", stored.Items[0].NewValue)
	assert.Equal(t, []string{"marks:marks-1", "marks:marks-1"}, repo.locks)
	assert.Equal(t, 2, tx.calls)
}

func TestChangeLedgerUpsertWithoutItemsCreatesNothing(t *testing.T) {
	repo := newMemChangeRequests()
	ledger := NewChangeLedger(repo, &fakeTx{}, nil, nil)

	request, err := ledger.Upsert(context.Background(), models.ModelTypeFee, "fee-1", []models.ChangeRequestItem{}, nil)
	require.NoError(t, err)
	assert.Nil(t, request)
	assert.Zero(t, repo.creates)
}

func TestChangeLedgerUpsertClearsExistingItems(t *testing.T) {
	repo := newMemChangeRequests()
	seeded := repo.seed(models.ChangeRequest{
		ModelType: models.ModelTypeAttendance,
		ObjectID:  "att-1",
		Status:    models.ChangeStatusPending,
		Items:     []models.ChangeRequestItem{{FieldName: "present", OldValue: "true", NewValue: "false"}},
	})
	ledger := NewChangeLedger(repo, &fakeTx{}, nil, nil)

	request, err := ledger.Upsert(context.Background(), models.ModelTypeAttendance, "att-1", []models.ChangeRequestItem{}, nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, seeded.ID, request.ID)
	assert.Empty(t, repo.requests[seeded.ID].Items)
}

func TestChangeLedgerUpsertAnonymousActor(t *testing.T) {
	repo := newMemChangeRequests()
	ledger := NewChangeLedger(repo, &fakeTx{}, nil, nil)

	request, err := ledger.Upsert(context.Background(), models.ModelTypeStudent, "student-1",
		[]models.ChangeRequestItem{{FieldName: "name", OldValue: "A", NewValue: "B"}}, &models.JWTClaims{})
	require.NoError(t, err)
	assert.Nil(t, request.RequestedBy)
}

func TestChangeLedgerUpsertWrapsStoreFailure(t *testing.T) {
	repo := newMemChangeRequests()
	repo.failOn = "create"
	ledger := NewChangeLedger(repo, &fakeTx{}, nil, nil)

	_, err := ledger.Upsert(context.Background(), models.ModelTypeMarks, "marks-1",
		[]models.ChangeRequestItem{{FieldName: "marks", NewValue: "1"}}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestChangeLedgerSetStatusIsTerminal(t *testing.T) {
	repo := newMemChangeRequests()
	seeded := repo.seed(models.ChangeRequest{ModelType: models.ModelTypeMarks, ObjectID: "marks-1", Status: models.ChangeStatusPending})
	ledger := NewChangeLedger(repo, &fakeTx{}, nil, nil)
	reviewer := &models.JWTClaims{UserID: "admin-1", Username: "admin", Role: models.RoleAdmin}

	request, err := repo.GetByID(context.Background(), seeded.ID, true)
	require.NoError(t, err)
	require.NoError(t, ledger.SetStatus(context.Background(), request, models.ChangeStatusRejected, reviewer, "typo"))
	assert.Equal(t, models.ChangeStatusRejected, request.Status)
	assert.Equal(t, "admin", request.ReviewedByName)
	require.NotNil(t, request.Notes)
	assert.Equal(t, "typo", *request.Notes)

	err = ledger.SetStatus(context.Background(), request, models.ChangeStatusApproved, reviewer, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	err = ledger.SetStatus(context.Background(), request, models.ChangeStatusPending, reviewer, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChangeLedgerFindPendingReturnsNilWhenAbsent(t *testing.T) {
	ledger := NewChangeLedger(newMemChangeRequests(), &fakeTx{}, nil, nil)

	request, err := ledger.FindPending(context.Background(), models.ModelTypeFee, "fee-9")
	require.NoError(t, err)
	assert.Nil(t, request)
}
