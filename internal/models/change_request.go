package models

import "time"

// ModelType identifies the kind of record a change request targets.
type ModelType string

const (
	ModelTypeStudent     ModelType = "student"
	ModelTypeAttendance  ModelType = "attendance"
	ModelTypeMarks       ModelType = "marks"
	ModelTypeFee         ModelType = "fee"
	ModelTypeMonthlyTest ModelType = "monthly_test"
	ModelTypeTestMarks   ModelType = "test_marks"
)

// ModelTypes lists every supported model type in display order.
var ModelTypes = []ModelType{
	ModelTypeStudent,
	ModelTypeAttendance,
	ModelTypeMarks,
	ModelTypeFee,
	ModelTypeMonthlyTest,
	ModelTypeTestMarks,
}

// Valid reports whether the model type is one of the supported kinds.
func (m ModelType) Valid() bool {
	for _, known := range ModelTypes {
		if m == known {
			return true
		}
	}
	return false
}

// ChangeStatus captures the review state of a change request.
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApproved ChangeStatus = "approved"
	ChangeStatusRejected ChangeStatus = "rejected"
)

// Valid reports whether the status is known.
func (s ChangeStatus) Valid() bool {
	switch s {
	case ChangeStatusPending, ChangeStatusApproved, ChangeStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s ChangeStatus) Terminal() bool {
	return s == ChangeStatusApproved || s == ChangeStatusRejected
}

// ChangeRequest groups the proposed field changes for one target record.
// ObjectID is either the record id or, for test marks, "<testId>_<studentId>".
type ChangeRequest struct {
	ID              string              `db:"id" json:"id"`
	ModelType       ModelType           `db:"model_type" json:"model_type"`
	ObjectID        string              `db:"object_id" json:"object_id"`
	Status          ChangeStatus        `db:"status" json:"status"`
	RequestedBy     *string             `db:"requested_by" json:"requested_by"`
	RequestedByName string              `db:"requested_by_name" json:"-"`
	RequestedAt     time.Time           `db:"requested_at" json:"requested_at"`
	ReviewedBy      *string             `db:"reviewed_by" json:"reviewed_by"`
	ReviewedByName  string              `db:"reviewed_by_name" json:"-"`
	ReviewedAt      *time.Time          `db:"reviewed_at" json:"reviewed_at"`
	Notes           *string             `db:"notes" json:"notes"`
	Items           []ChangeRequestItem `db:"-" json:"changes"`
}

// FieldChange returns the item for field when present.
func (c *ChangeRequest) FieldChange(field string) (ChangeRequestItem, bool) {
	if c == nil {
		return ChangeRequestItem{}, false
	}
	for _, item := range c.Items {
		if item.FieldName == field {
			return item, true
		}
	}
	return ChangeRequestItem{}, false
}

// ChangeRequestItem is a single field edit with string encoded values.
type ChangeRequestItem struct {
	ID              string `db:"id" json:"id"`
	ChangeRequestID string `db:"change_request_id" json:"-"`
	FieldName       string `db:"field_name" json:"field_name"`
	OldValue        string `db:"old_value" json:"old_value"`
	NewValue        string `db:"new_value" json:"new_value"`
	Position        int    `db:"position" json:"-"`
}

// ChangeRequestFilter constrains listing queries.
type ChangeRequestFilter struct {
	Status    []ChangeStatus
	ModelType ModelType
	ObjectID  string
	Limit     int
	Offset    int
}

// TargetDescription is the reviewer facing summary of a change request target.
type TargetDescription struct {
	Details   string `db:"details" json:"details"`
	ClassName string `db:"class_name" json:"class_name"`
}

// StatusCount is one row of the grouped status counter.
type StatusCount struct {
	Status    ChangeStatus `db:"status"`
	ModelType ModelType    `db:"model_type"`
	Total     int          `db:"total"`
}
