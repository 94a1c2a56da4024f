package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

// fieldSetter writes the string form of a change item into a typed record.
type fieldSetter[T any] func(record *T, value string) error

// applyTable maps tracked field names to their typed setters.
type applyTable[T any] map[string]fieldSetter[T]

// apply writes every known item into record and returns the fields written.
// Unknown fields are skipped.
func (t applyTable[T]) apply(record *T, items []models.ChangeRequestItem) ([]string, error) {
	applied := make([]string, 0, len(items))
	for _, item := range items {
		set, ok := t[item.FieldName]
		if !ok {
			continue
		}
		if err := set(record, item.NewValue); err != nil {
			return applied, appErrors.Wrap(err, appErrors.ErrConversion.Code, appErrors.ErrConversion.Status,
				fmt.Sprintf("cannot convert %q for field %s", item.NewValue, item.FieldName))
		}
		applied = append(applied, item.FieldName)
	}
	return applied, nil
}

func setString[T any](field func(*T) *string) fieldSetter[T] {
	return func(record *T, value string) error {
		*field(record) = value
		return nil
	}
}

func setDecimal[T any](field func(*T) *float64) fieldSetter[T] {
	return func(record *T, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			*field(record) = 0
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*field(record) = parsed
		return nil
	}
}

func setNullableDecimal[T any](field func(*T) **float64) fieldSetter[T] {
	return func(record *T, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			*field(record) = nil
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*field(record) = &parsed
		return nil
	}
}

func setInt[T any](field func(*T) *int) fieldSetter[T] {
	return func(record *T, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			*field(record) = 0
			return nil
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(record) = parsed
		return nil
	}
}

func setNullableInt[T any](field func(*T) **int) fieldSetter[T] {
	return func(record *T, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			*field(record) = nil
			return nil
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(record) = &parsed
		return nil
	}
}

func setBool[T any](field func(*T) *bool) fieldSetter[T] {
	return func(record *T, value string) error {
		*field(record) = strings.EqualFold(strings.TrimSpace(value), "true")
		return nil
	}
}

func setNullableDate[T any](field func(*T) **time.Time) fieldSetter[T] {
	return func(record *T, value string) error {
		value = strings.TrimSpace(value)
		if value == "" {
			*field(record) = nil
			return nil
		}
		parsed, err := time.Parse(dateLayout, value)
		if err != nil {
			return err
		}
		*field(record) = &parsed
		return nil
	}
}

var studentFields = applyTable[models.Student]{
	"name":               setString(func(s *models.Student) *string { return &s.Name }),
	"father_name":        setString(func(s *models.Student) *string { return &s.FatherName }),
	"serial_no":          setNullableInt(func(s *models.Student) **int { return &s.SerialNo }),
	"date_of_admission":  setNullableDate(func(s *models.Student) **time.Time { return &s.DateOfAdmission }),
	"dob":                setNullableDate(func(s *models.Student) **time.Time { return &s.DOB }),
	"dob_words":          setString(func(s *models.Student) *string { return &s.DOBWords }),
	"tribe_or_caste":     setString(func(s *models.Student) *string { return &s.TribeOrCaste }),
	"occupation":         setString(func(s *models.Student) *string { return &s.Occupation }),
	"residence":          setString(func(s *models.Student) *string { return &s.Residence }),
	"class_admitted":     setString(func(s *models.Student) *string { return &s.ClassAdmitted }),
	"age_at_admission":   setNullableInt(func(s *models.Student) **int { return &s.AgeAtAdmission }),
	"class_withdrawn":    setString(func(s *models.Student) *string { return &s.ClassWithdrawn }),
	"date_of_withdrawal": setNullableDate(func(s *models.Student) **time.Time { return &s.DateOfWithdrawal }),
	"remarks":            setString(func(s *models.Student) *string { return &s.Remarks }),
	"gender":             setString(func(s *models.Student) *string { return &s.Gender }),
}

var marksFields = applyTable[models.Marks]{
	"marks": setNullableDecimal(func(m *models.Marks) **float64 { return &m.Marks }),
}

var attendanceFields = applyTable[models.Attendance]{
	"present": setBool(func(a *models.Attendance) *bool { return &a.Present }),
}

var feeFields = applyTable[models.Fee]{
	"total_fee":     setDecimal(func(f *models.Fee) *float64 { return &f.TotalFee }),
	"submitted_fee": setDecimal(func(f *models.Fee) *float64 { return &f.SubmittedFee }),
	"fine":          setDecimal(func(f *models.Fee) *float64 { return &f.Fine }),
	"absentees":     setInt(func(f *models.Fee) *int { return &f.Absentees }),
}

var monthlyTestFields = applyTable[models.MonthlyTest]{
	"title":       setString(func(t *models.MonthlyTest) *string { return &t.Title }),
	"subject":     setString(func(t *models.MonthlyTest) *string { return &t.Subject }),
	"total_marks": setInt(func(t *models.MonthlyTest) *int { return &t.TotalMarks }),
	"description": setString(func(t *models.MonthlyTest) *string { return &t.Description }),
	"month":       setString(func(t *models.MonthlyTest) *string { return &t.Month }),
}

var testMarksFields = applyTable[models.TestMarks]{
	"marks": setDecimal(func(t *models.TestMarks) *float64 { return &t.Marks }),
}

func studentSnapshot(s *models.Student) Snapshot {
	return Snapshot{
		{"name", s.Name},
		{"father_name", s.FatherName},
		{"serial_no", s.SerialNo},
		{"date_of_admission", s.DateOfAdmission},
		{"dob", s.DOB},
		{"dob_words", s.DOBWords},
		{"tribe_or_caste", s.TribeOrCaste},
		{"occupation", s.Occupation},
		{"residence", s.Residence},
		{"class_admitted", s.ClassAdmitted},
		{"age_at_admission", s.AgeAtAdmission},
		{"class_withdrawn", s.ClassWithdrawn},
		{"date_of_withdrawal", s.DateOfWithdrawal},
		{"remarks", s.Remarks},
		{"gender", s.Gender},
	}
}

// studentPayloadSnapshot keeps only the fields present in the payload.
func studentPayloadSnapshot(p dto.StudentPayload) Snapshot {
	snapshot := Snapshot{}
	add := func(field string, present bool, value interface{}) {
		if present {
			snapshot = append(snapshot, FieldValue{Field: field, Value: value})
		}
	}
	add("name", p.Name != nil, p.Name)
	add("father_name", p.FatherName != nil, p.FatherName)
	add("serial_no", p.SerialNo != nil, p.SerialNo)
	add("date_of_admission", p.DateOfAdmission != nil, p.DateOfAdmission)
	add("dob", p.DOB != nil, p.DOB)
	add("dob_words", p.DOBWords != nil, p.DOBWords)
	add("tribe_or_caste", p.TribeOrCaste != nil, p.TribeOrCaste)
	add("occupation", p.Occupation != nil, p.Occupation)
	add("residence", p.Residence != nil, p.Residence)
	add("class_admitted", p.ClassAdmitted != nil, p.ClassAdmitted)
	add("age_at_admission", p.AgeAtAdmission != nil, p.AgeAtAdmission)
	add("class_withdrawn", p.ClassWithdrawn != nil, p.ClassWithdrawn)
	add("date_of_withdrawal", p.DateOfWithdrawal != nil, p.DateOfWithdrawal)
	add("remarks", p.Remarks != nil, p.Remarks)
	add("gender", p.Gender != nil, p.Gender)
	return snapshot
}

func marksSnapshot(m *models.Marks) Snapshot {
	return Snapshot{{"marks", m.Marks}}
}

func attendanceSnapshot(a *models.Attendance) Snapshot {
	return Snapshot{{"present", a.Present}}
}

func feeSnapshot(f *models.Fee) Snapshot {
	return Snapshot{
		{"total_fee", f.TotalFee},
		{"submitted_fee", f.SubmittedFee},
		{"fine", f.Fine},
		{"absentees", f.Absentees},
	}
}

// feePayloadSnapshot keeps present fields; fine_per_absent replaces fine with
// absentees multiplied by the rate, using the stored absentees when absent.
func feePayloadSnapshot(p dto.FeePayload, current *models.Fee) Snapshot {
	snapshot := Snapshot{}
	if p.TotalFee != nil {
		snapshot = append(snapshot, FieldValue{"total_fee", *p.TotalFee})
	}
	if p.SubmittedFee != nil {
		snapshot = append(snapshot, FieldValue{"submitted_fee", *p.SubmittedFee})
	}
	if fine := computeFine(p, current); fine != nil {
		snapshot = append(snapshot, FieldValue{"fine", *fine})
	}
	if p.Absentees != nil {
		snapshot = append(snapshot, FieldValue{"absentees", *p.Absentees})
	}
	return snapshot
}

func computeFine(p dto.FeePayload, current *models.Fee) *float64 {
	if p.FinePerAbsent != nil {
		absentees := 0
		if p.Absentees != nil {
			absentees = *p.Absentees
		} else if current != nil {
			absentees = current.Absentees
		}
		fine := float64(absentees) * *p.FinePerAbsent
		return &fine
	}
	return p.Fine
}

func monthlyTestSnapshot(t *models.MonthlyTest) Snapshot {
	return Snapshot{
		{"title", t.Title},
		{"subject", t.Subject},
		{"total_marks", t.TotalMarks},
		{"description", t.Description},
		{"month", t.Month},
	}
}

func monthlyTestPayloadSnapshot(p dto.MonthlyTestPayload) Snapshot {
	snapshot := Snapshot{}
	if p.Title != nil {
		snapshot = append(snapshot, FieldValue{"title", *p.Title})
	}
	if p.Subject != nil {
		snapshot = append(snapshot, FieldValue{"subject", *p.Subject})
	}
	if p.TotalMarks != nil {
		snapshot = append(snapshot, FieldValue{"total_marks", *p.TotalMarks})
	}
	if p.Description != nil {
		snapshot = append(snapshot, FieldValue{"description", *p.Description})
	}
	if p.Month != nil {
		snapshot = append(snapshot, FieldValue{"month", *p.Month})
	}
	return snapshot
}

func testMarksSnapshot(t *models.TestMarks) Snapshot {
	return Snapshot{{"marks", t.Marks}}
}
