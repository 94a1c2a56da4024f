package dto

import (
	"github.com/noah-isme/sma-approval-api/internal/models"
)

// WriteOutcome describes what the write router did with a payload.
type WriteOutcome string

const (
	// WriteOutcomeCreated means no record existed and one was inserted directly.
	WriteOutcomeCreated WriteOutcome = "created"
	// WriteOutcomeDeferred means the edit was staged as a pending change request.
	WriteOutcomeDeferred WriteOutcome = "deferred"
	// WriteOutcomeUnchanged means the payload matched the live record.
	WriteOutcomeUnchanged WriteOutcome = "unchanged"
)

// WriteResult is returned for every routed write. Record is always the live row.
type WriteResult struct {
	Outcome         WriteOutcome     `json:"outcome"`
	ModelType       models.ModelType `json:"model_type"`
	Record          interface{}      `json:"record"`
	ChangeRequestID *string          `json:"change_request_id,omitempty"`
	PendingChanges  int              `json:"pending_changes"`
}

// BatchItemResult reports the outcome of one element of a batch write.
type BatchItemResult struct {
	Index  int          `json:"index"`
	Result *WriteResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
	Code   string       `json:"code,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Created   int `json:"created"`
	Deferred  int `json:"deferred"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Summarize tallies the batch results.
func Summarize(results []BatchItemResult) BatchSummary {
	var summary BatchSummary
	for _, item := range results {
		if item.Result == nil {
			summary.Failed++
			continue
		}
		switch item.Result.Outcome {
		case WriteOutcomeCreated:
			summary.Created++
		case WriteOutcomeDeferred:
			summary.Deferred++
		default:
			summary.Unchanged++
		}
	}
	return summary
}

// MarksPayload creates or modifies a subject mark. ID selects the record directly.
type MarksPayload struct {
	ID        string   `json:"id" validate:"omitempty,uuid"`
	StudentID string   `json:"student_id" validate:"required_without=ID,omitempty,uuid"`
	SubjectID string   `json:"subject_id" validate:"required_without=ID,omitempty,uuid"`
	Marks     *float64 `json:"marks" validate:"omitempty,gte=0"`
}

// AttendancePayload creates or modifies an attendance row.
type AttendancePayload struct {
	ID        string `json:"id" validate:"omitempty,uuid"`
	StudentID string `json:"student_id" validate:"required_without=ID,omitempty,uuid"`
	Date      string `json:"date" validate:"required_without=ID,omitempty,datetime=2006-01-02"`
	Present   *bool  `json:"present" validate:"required"`
}

// ClassAttendanceRequest marks every student of a class for one date.
type ClassAttendanceRequest struct {
	ClassName string `json:"class_admitted" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Present   *bool  `json:"present" validate:"required"`
}

// FeePayload creates or modifies a monthly fee row. When FinePerAbsent is set
// the fine is computed as absentees multiplied by it.
type FeePayload struct {
	ID            string   `json:"id" validate:"omitempty,uuid"`
	StudentID     string   `json:"student_id" validate:"required_without=ID,omitempty,uuid"`
	Month         string   `json:"month" validate:"required_without=ID,omitempty,datetime=2006-01"`
	TotalFee      *float64 `json:"total_fee" validate:"omitempty,gte=0"`
	SubmittedFee  *float64 `json:"submitted_fee" validate:"omitempty,gte=0"`
	Fine          *float64 `json:"fine" validate:"omitempty,gte=0"`
	Absentees     *int     `json:"absentees" validate:"omitempty,gte=0"`
	FinePerAbsent *float64 `json:"fine_per_absent" validate:"omitempty,gte=0"`
}

// TestMarksPayload creates or modifies the mark of a student in a monthly test.
type TestMarksPayload struct {
	ID        string   `json:"id" validate:"omitempty,uuid"`
	TestID    string   `json:"test_id" validate:"required_without=ID,omitempty,uuid"`
	StudentID string   `json:"student_id" validate:"required_without=ID,omitempty,uuid"`
	Marks     *float64 `json:"marks" validate:"required,gte=0"`
}

// StudentPayload carries student profile fields. Absent fields are left untouched.
type StudentPayload struct {
	SerialNo         *int    `json:"serial_no" validate:"omitempty,gte=0"`
	Name             *string `json:"name" validate:"omitempty,min=1,max=200"`
	DateOfAdmission  *string `json:"date_of_admission" validate:"omitempty,datetime=2006-01-02"`
	DOB              *string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	DOBWords         *string `json:"dob_words"`
	FatherName       *string `json:"father_name"`
	TribeOrCaste     *string `json:"tribe_or_caste"`
	Occupation       *string `json:"occupation"`
	Residence        *string `json:"residence"`
	ClassAdmitted    *string `json:"class_admitted"`
	AgeAtAdmission   *int    `json:"age_at_admission" validate:"omitempty,gte=0"`
	ClassWithdrawn   *string `json:"class_withdrawn"`
	DateOfWithdrawal *string `json:"date_of_withdrawal" validate:"omitempty,datetime=2006-01-02"`
	Remarks          *string `json:"remarks"`
	Gender           *string `json:"gender" validate:"omitempty,oneof=boys girls"`
}

// MonthlyTestPayload carries monthly test fields. Absent fields are left untouched.
type MonthlyTestPayload struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Subject     *string `json:"subject" validate:"omitempty,min=1,max=100"`
	ClassID     *string `json:"class_id" validate:"omitempty,uuid"`
	TotalMarks  *int    `json:"total_marks" validate:"omitempty,gt=0"`
	Description *string `json:"description"`
	Month       *string `json:"month" validate:"omitempty,datetime=2006-01"`
}

// CreateClassRequest registers a class.
type CreateClassRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateSubjectRequest registers a subject under a class.
type CreateSubjectRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	ClassID string `json:"class_id" validate:"required,uuid"`
}

// RoutedWrite is the response of the generic write entry point. Exactly one
// of Single or Items is set depending on whether the body was an array.
type RoutedWrite struct {
	Batch   bool              `json:"batch"`
	Single  *WriteResult      `json:"result,omitempty"`
	Items   []BatchItemResult `json:"items,omitempty"`
	Summary *BatchSummary     `json:"summary,omitempty"`
}
