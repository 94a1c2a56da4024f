package repository

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

func TestScopeQueryUnrestrictedRoles(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleVicePrincipal, models.RoleStaff} {
		q := &Query{}
		q.Where("m.student_id = $%d", "student-1")
		ScopeQuery(q, ScopeFor(&models.JWTClaims{UserID: "u", Role: role}), ScopeByClassID, "sub.class_id")
		assert.Equal(t, " WHERE m.student_id = $1", q.Clause(), string(role))
		assert.Len(t, q.Args(), 1)
	}
}

func TestScopeQueryTeacherByClassID(t *testing.T) {
	q := &Query{}
	q.Where("m.student_id = $%d", "student-1")
	scope := ScopeFor(&models.JWTClaims{UserID: "t", Role: models.RoleTeacher, ClassIDs: []string{"class-1", " "}})
	ScopeQuery(q, scope, ScopeByClassID, "sub.class_id")

	assert.Equal(t, " WHERE m.student_id = $1 AND sub.class_id = ANY($2)", q.Clause())
	assert.Equal(t, pq.Array([]string{"class-1"}), q.Args()[1])
	assert.True(t, scope.AllowsClass("class-1"))
	assert.False(t, scope.AllowsClass("class-2"))
}

func TestScopeQueryTeacherByClassName(t *testing.T) {
	q := &Query{}
	ScopeQuery(q, ScopeFor(&models.JWTClaims{UserID: "t", Role: models.RoleTeacher, ClassIDs: []string{"class-1"}}), ScopeByClassName, "s.class_admitted")
	assert.Equal(t, " WHERE s.class_admitted IN (SELECT name FROM classes WHERE id = ANY($1))", q.Clause())
}

func TestScopeQueryDeniesWithoutClasses(t *testing.T) {
	q := &Query{}
	ScopeQuery(q, ScopeFor(&models.JWTClaims{UserID: "t", Role: models.RoleTeacher}), ScopeByClassID, "c.id")
	assert.Equal(t, " WHERE 1=0", q.Clause())

	anon := &Query{}
	ScopeQuery(anon, ScopeFor(nil), ScopeByClassID, "c.id")
	assert.Equal(t, " WHERE 1=0", anon.Clause())

	unknown := &Query{}
	ScopeQuery(unknown, ScopeFor(&models.JWTClaims{UserID: "x", Role: "guest"}), ScopeByClassID, "c.id")
	assert.Equal(t, " WHERE 1=0", unknown.Clause())
}

func TestQueryWithoutConditions(t *testing.T) {
	q := &Query{}
	assert.Equal(t, "", q.Clause())
	assert.Empty(t, q.Args())
}
