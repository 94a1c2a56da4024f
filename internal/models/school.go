package models

import (
	"strings"
	"time"
)

// Class is a school class such as "Grade 7".
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subject belongs to exactly one class; names are unique per class.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ClassID   string    `db:"class_id" json:"class_id"`
	ClassName string    `db:"class_name" json:"class_name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Gender values accepted for students.
const (
	GenderBoys  = "boys"
	GenderGirls = "girls"
)

// Student is the admission register entry. ClassAdmitted holds the class name.
type Student struct {
	ID               string     `db:"id" json:"id"`
	SerialNo         *int       `db:"serial_no" json:"serial_no"`
	Name             string     `db:"name" json:"name"`
	DateOfAdmission  *time.Time `db:"date_of_admission" json:"date_of_admission"`
	DOB              *time.Time `db:"dob" json:"dob"`
	DOBWords         string     `db:"dob_words" json:"dob_words"`
	FatherName       string     `db:"father_name" json:"father_name"`
	TribeOrCaste     string     `db:"tribe_or_caste" json:"tribe_or_caste"`
	Occupation       string     `db:"occupation" json:"occupation"`
	Residence        string     `db:"residence" json:"residence"`
	ClassAdmitted    string     `db:"class_admitted" json:"class_admitted"`
	AgeAtAdmission   *int       `db:"age_at_admission" json:"age_at_admission"`
	ClassWithdrawn   string     `db:"class_withdrawn" json:"class_withdrawn"`
	DateOfWithdrawal *time.Time `db:"date_of_withdrawal" json:"date_of_withdrawal"`
	Remarks          string     `db:"remarks" json:"remarks"`
	Gender           string     `db:"gender" json:"gender"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter narrows student listings.
type StudentFilter struct {
	ClassName string
	Gender    string
	Search    string
}

// Marks is the final mark of a student for a subject.
type Marks struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	Marks       *float64  `db:"marks" json:"marks"`
	StudentName string    `db:"student_name" json:"student_name,omitempty"`
	SubjectName string    `db:"subject_name" json:"subject_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MarksFilter narrows marks listings.
type MarksFilter struct {
	StudentID string
	SubjectID string
	ClassID   string
}

// Attendance records presence of a student on a date.
type Attendance struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Date        time.Time `db:"date" json:"date"`
	Present     bool      `db:"present" json:"present"`
	StudentName string    `db:"student_name" json:"student_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter narrows attendance listings.
type AttendanceFilter struct {
	StudentID string
	ClassName string
	Date      *time.Time
}

// Fee is the monthly fee ledger line of a student. Month is formatted YYYY-MM.
type Fee struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Month        string    `db:"month" json:"month"`
	TotalFee     float64   `db:"total_fee" json:"total_fee"`
	SubmittedFee float64   `db:"submitted_fee" json:"submitted_fee"`
	Fine         float64   `db:"fine" json:"fine"`
	Absentees    int       `db:"absentees" json:"absentees"`
	StudentName  string    `db:"student_name" json:"student_name,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FeeFilter narrows fee listings.
type FeeFilter struct {
	StudentID string
	Month     string
	ClassName string
}

// DefaultTestTotalMarks applies when a monthly test is created without a total.
const DefaultTestTotalMarks = 100

// MonthlyTest is a class test; its TotalMarks is mirrored on every TestMarks row.
type MonthlyTest struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Subject     string    `db:"subject" json:"subject"`
	ClassID     string    `db:"class_id" json:"class_id"`
	ClassName   string    `db:"class_name" json:"class_name,omitempty"`
	TotalMarks  int       `db:"total_marks" json:"total_marks"`
	Description string    `db:"description" json:"description"`
	Month       string    `db:"month" json:"month"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MonthlyTestFilter narrows monthly test listings.
type MonthlyTestFilter struct {
	ClassID string
	Month   string
}

// TestMarks is the mark obtained by a student in a monthly test.
type TestMarks struct {
	ID          string    `db:"id" json:"id"`
	TestID      string    `db:"test_id" json:"test_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Marks       float64   `db:"marks" json:"marks"`
	TotalMarks  int       `db:"total_marks" json:"total_marks"`
	StudentName string    `db:"student_name" json:"student_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CompositeKey returns the "<testId>_<studentId>" identifier used by front-end submissions.
func (t *TestMarks) CompositeKey() string {
	return t.TestID + "_" + t.StudentID
}

// ParseTestMarksKey splits a "<testId>_<studentId>" identifier.
func ParseTestMarksKey(objectID string) (testID, studentID string, ok bool) {
	parts := strings.Split(objectID, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// TestMarksFilter narrows test marks listings.
type TestMarksFilter struct {
	TestID    string
	StudentID string
}
