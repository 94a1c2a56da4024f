package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

type memCatalogue struct {
	classes  map[string]models.Class
	subjects []models.Subject
}

func (m *memCatalogue) List(ctx context.Context, scope repository.Scope) ([]models.Class, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, class := range m.classes {
		if scope.AllowsClass(class.ID) {
			out = append(out, class)
		}
	}
	return out, nil
}

func (m *memCatalogue) FindByID(ctx context.Context, id string) (*models.Class, error) {
	class, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &class, nil
}

func (m *memCatalogue) ExistsByName(ctx context.Context, name string) (bool, error) {
	for _, class := range m.classes {
		if strings.EqualFold(class.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCatalogue) Create(ctx context.Context, class *models.Class) error {
	class.ID = uuid.NewString()
	m.classes[class.ID] = *class
	return nil
}

type memSubjectCatalogue struct {
	*memCatalogue
}

func (m memSubjectCatalogue) List(ctx context.Context, classID string, scope repository.Scope) ([]models.Subject, error) {
	return m.subjects, nil
}

func (m memSubjectCatalogue) ExistsInClass(ctx context.Context, name, classID string) (bool, error) {
	for _, subject := range m.subjects {
		if subject.ClassID == classID && strings.EqualFold(subject.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m memSubjectCatalogue) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = uuid.NewString()
	m.subjects = append(m.subjects, *subject)
	return nil
}

func newRecordFixture() (*RecordService, *memCatalogue, *memStudents) {
	catalogue := &memCatalogue{classes: map[string]models.Class{}}
	students := newMemStudents()
	svc := NewRecordService(catalogue, memSubjectCatalogue{catalogue}, EntityStores{Students: students}, nil, nil)
	return svc, catalogue, students
}

func TestRecordServiceCreateClassRejectsDuplicates(t *testing.T) {
	svc, _, _ := newRecordFixture()

	class, err := svc.CreateClass(context.Background(), dto.CreateClassRequest{Name: " Grade 7 "})
	require.NoError(t, err)
	assert.Equal(t, "Grade 7", class.Name)

	_, err = svc.CreateClass(context.Background(), dto.CreateClassRequest{Name: "grade 7"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRecordServiceSubjectUniquePerClass(t *testing.T) {
	svc, catalogue, _ := newRecordFixture()
	seven := models.Class{ID: uuid.NewString(), Name: "Grade 7"}
	eight := models.Class{ID: uuid.NewString(), Name: "Grade 8"}
	catalogue.classes[seven.ID] = seven
	catalogue.classes[eight.ID] = eight
	catalogue.subjects = []models.Subject{{ID: uuid.NewString(), Name: "Math", ClassID: seven.ID}}

	_, err := svc.CreateSubject(context.Background(), dto.CreateSubjectRequest{Name: "math", ClassID: seven.ID})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	subject, err := svc.CreateSubject(context.Background(), dto.CreateSubjectRequest{Name: "Math", ClassID: eight.ID})
	require.NoError(t, err)
	assert.Equal(t, eight.ID, subject.ClassID)

	_, err = svc.CreateSubject(context.Background(), dto.CreateSubjectRequest{Name: "Art", ClassID: uuid.NewString()})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecordServiceListClassesScoped(t *testing.T) {
	svc, catalogue, _ := newRecordFixture()
	visible := models.Class{ID: uuid.NewString(), Name: "Grade 7"}
	hidden := models.Class{ID: uuid.NewString(), Name: "Grade 8"}
	catalogue.classes[visible.ID] = visible
	catalogue.classes[hidden.ID] = hidden

	classes, err := svc.ListClasses(context.Background(), repository.ScopeFor(&models.JWTClaims{UserID: "t", Role: models.RoleTeacher, ClassIDs: []string{visible.ID}}))
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, visible.ID, classes[0].ID)
}

func TestRecordServiceGetStudent(t *testing.T) {
	svc, _, students := newRecordFixture()
	student := models.Student{ID: uuid.NewString(), Name: "Hana"}
	students.rows[student.ID] = student

	found, err := svc.GetStudent(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hana", found.Name)

	_, err = svc.GetStudent(context.Background(), "17")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
