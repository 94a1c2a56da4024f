package dto

import "github.com/noah-isme/sma-approval-api/internal/models"

// PerSubjectTotalMarks is the maximum mark of every subject.
const PerSubjectTotalMarks = 100

// SubjectMarks is one subject line of a marks summary.
type SubjectMarks struct {
	SubjectID         string   `json:"subject_id"`
	SubjectName       string   `json:"subject_name"`
	MarksID           string   `json:"marks_id,omitempty"`
	Marks             *float64 `json:"marks"`
	PendingMarks      *float64 `json:"pending_marks,omitempty"`
	EffectiveMarks    float64  `json:"effective_marks"`
	HasPendingChanges bool     `json:"has_pending_changes"`
	ChangeRequestID   string   `json:"change_request_id,omitempty"`
}

// MarksSummary aggregates a student's marks in a class including pending values.
type MarksSummary struct {
	StudentID         string         `json:"student_id"`
	ClassID           string         `json:"class_id"`
	TotalMarks        int            `json:"total_marks"`
	ObtainedMarks     float64        `json:"obtained_marks"`
	Percent           float64        `json:"percent"`
	Grade             string         `json:"grade"`
	HasPendingChanges bool           `json:"has_pending_changes"`
	Subjects          []SubjectMarks `json:"subjects"`
}

// MarksView decorates a marks row with its pending change.
type MarksView struct {
	models.Marks
	PendingMarks      *float64 `json:"pending_marks,omitempty"`
	HasPendingChanges bool     `json:"has_pending_changes"`
	ChangeRequestID   string   `json:"change_request_id,omitempty"`
}

// TestMarksView decorates a test marks row with its pending change.
type TestMarksView struct {
	models.TestMarks
	PendingMarks      *float64 `json:"pending_marks,omitempty"`
	HasPendingChanges bool     `json:"has_pending_changes"`
	ChangeRequestID   string   `json:"change_request_id,omitempty"`
}

// TestSummary aggregates a monthly test across students.
type TestSummary struct {
	TestID            string  `json:"test_id"`
	Title             string  `json:"title"`
	Subject           string  `json:"subject"`
	TotalMarks        int     `json:"total_marks"`
	StudentCount      int     `json:"student_count"`
	ObtainedMarks     float64 `json:"obtained_marks"`
	PossibleMarks     int     `json:"possible_marks"`
	AverageMarks      float64 `json:"average_marks"`
	Percent           float64 `json:"percent"`
	HasPendingChanges bool    `json:"has_pending_changes"`
}
