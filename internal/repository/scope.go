package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/sma-approval-api/internal/models"
)

// Query accumulates WHERE conditions with positional PostgreSQL arguments.
type Query struct {
	conditions []string
	args       []interface{}
}

// Where appends a condition; format must contain a single %d for the placeholder index.
func (q *Query) Where(format string, value interface{}) *Query {
	q.args = append(q.args, value)
	q.conditions = append(q.conditions, fmt.Sprintf(format, len(q.args)))
	return q
}

// Raw appends a condition without arguments.
func (q *Query) Raw(condition string) *Query {
	q.conditions = append(q.conditions, condition)
	return q
}

// Clause renders the WHERE clause including the leading keyword, or an empty string.
func (q *Query) Clause() string {
	if len(q.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conditions, " AND ")
}

// Args returns the positional arguments in placeholder order.
func (q *Query) Args() []interface{} {
	return q.args
}

// ScopeTarget describes how a table links to a class.
type ScopeTarget int

const (
	// ScopeByClassID restricts a column holding a class id.
	ScopeByClassID ScopeTarget = iota
	// ScopeByClassName restricts a column holding a class name such as students.class_admitted.
	ScopeByClassName
)

// Scope is the row visibility granted to an actor.
type Scope struct {
	all      bool
	classIDs []string
}

// ScopeFor derives the visibility of the given claims. Anonymous callers see nothing.
func ScopeFor(claims *models.JWTClaims) Scope {
	if claims == nil {
		return Scope{}
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleVicePrincipal, models.RoleStaff:
		return Scope{all: true}
	case models.RoleTeacher:
		ids := make([]string, 0, len(claims.ClassIDs))
		for _, id := range claims.ClassIDs {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, id)
			}
		}
		return Scope{classIDs: ids}
	default:
		return Scope{}
	}
}

// Unrestricted reports whether every row is visible.
func (s Scope) Unrestricted() bool {
	return s.all
}

// AllowsClass reports whether rows of the class are visible.
func (s Scope) AllowsClass(classID string) bool {
	if s.all {
		return true
	}
	for _, id := range s.classIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// ScopeQuery narrows q so only rows within scope remain visible through column.
func ScopeQuery(q *Query, scope Scope, target ScopeTarget, column string) *Query {
	if scope.all {
		return q
	}
	if len(scope.classIDs) == 0 {
		return q.Raw("1=0")
	}
	switch target {
	case ScopeByClassName:
		return q.Where(column+" IN (SELECT name FROM classes WHERE id = ANY($%d))", pq.Array(scope.classIDs))
	default:
		return q.Where(column+" = ANY($%d)", pq.Array(scope.classIDs))
	}
}
