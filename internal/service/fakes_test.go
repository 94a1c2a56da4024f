package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-approval-api/internal/models"
	"github.com/noah-isme/sma-approval-api/internal/repository"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type memStudents struct {
	rows    map[string]models.Student
	updates int
}

func newMemStudents(rows ...models.Student) *memStudents {
	m := &memStudents{rows: map[string]models.Student{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memStudents) List(ctx context.Context, filter models.StudentFilter, scope repository.Scope) ([]models.Student, error) {
	out := make([]models.Student, 0, len(m.rows))
	for _, row := range m.rows {
		if filter.ClassName == "" || row.ClassAdmitted == filter.ClassName {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStudents) ListByClassName(ctx context.Context, className string) ([]models.Student, error) {
	return m.List(ctx, models.StudentFilter{ClassName: className}, repository.Scope{})
}

func (m *memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memStudents) Create(ctx context.Context, student *models.Student) error {
	student.ID = uuid.NewString()
	m.rows[student.ID] = *student
	return nil
}

func (m *memStudents) Update(ctx context.Context, student *models.Student) error {
	m.updates++
	m.rows[student.ID] = *student
	return nil
}

type memMarks struct {
	rows    map[string]models.Marks
	creates int
	updates int
}

func newMemMarks(rows ...models.Marks) *memMarks {
	m := &memMarks{rows: map[string]models.Marks{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memMarks) List(ctx context.Context, filter models.MarksFilter, scope repository.Scope) ([]models.Marks, error) {
	out := make([]models.Marks, 0, len(m.rows))
	for _, row := range m.rows {
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != "" && row.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memMarks) FindByID(ctx context.Context, id string) (*models.Marks, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memMarks) FindByKey(ctx context.Context, studentID, subjectID string) (*models.Marks, error) {
	for _, row := range m.rows {
		if row.StudentID == studentID && row.SubjectID == subjectID {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memMarks) Create(ctx context.Context, marks *models.Marks) error {
	m.creates++
	marks.ID = uuid.NewString()
	m.rows[marks.ID] = *marks
	return nil
}

func (m *memMarks) Update(ctx context.Context, marks *models.Marks) error {
	m.updates++
	m.rows[marks.ID] = *marks
	return nil
}

type memAttendance struct {
	rows map[string]models.Attendance
}

func newMemAttendance(rows ...models.Attendance) *memAttendance {
	m := &memAttendance{rows: map[string]models.Attendance{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memAttendance) List(ctx context.Context, filter models.AttendanceFilter, scope repository.Scope) ([]models.Attendance, error) {
	out := make([]models.Attendance, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memAttendance) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memAttendance) FindByKey(ctx context.Context, studentID string, date time.Time) (*models.Attendance, error) {
	for _, row := range m.rows {
		if row.StudentID == studentID && row.Date.Equal(date) {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memAttendance) Create(ctx context.Context, row *models.Attendance) error {
	row.ID = uuid.NewString()
	m.rows[row.ID] = *row
	return nil
}

func (m *memAttendance) Update(ctx context.Context, row *models.Attendance) error {
	m.rows[row.ID] = *row
	return nil
}

type memFees struct {
	rows map[string]models.Fee
}

func newMemFees(rows ...models.Fee) *memFees {
	m := &memFees{rows: map[string]models.Fee{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memFees) List(ctx context.Context, filter models.FeeFilter, scope repository.Scope) ([]models.Fee, error) {
	out := make([]models.Fee, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memFees) FindByID(ctx context.Context, id string) (*models.Fee, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memFees) FindByKey(ctx context.Context, studentID, month string) (*models.Fee, error) {
	for _, row := range m.rows {
		if row.StudentID == studentID && row.Month == month {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memFees) Create(ctx context.Context, fee *models.Fee) error {
	fee.ID = uuid.NewString()
	m.rows[fee.ID] = *fee
	return nil
}

func (m *memFees) Update(ctx context.Context, fee *models.Fee) error {
	m.rows[fee.ID] = *fee
	return nil
}

type memMonthlyTests struct {
	rows map[string]models.MonthlyTest
}

func newMemMonthlyTests(rows ...models.MonthlyTest) *memMonthlyTests {
	m := &memMonthlyTests{rows: map[string]models.MonthlyTest{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memMonthlyTests) List(ctx context.Context, filter models.MonthlyTestFilter, scope repository.Scope) ([]models.MonthlyTest, error) {
	out := make([]models.MonthlyTest, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memMonthlyTests) FindByID(ctx context.Context, id string) (*models.MonthlyTest, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memMonthlyTests) Create(ctx context.Context, test *models.MonthlyTest) error {
	test.ID = uuid.NewString()
	if test.TotalMarks == 0 {
		test.TotalMarks = models.DefaultTestTotalMarks
	}
	m.rows[test.ID] = *test
	return nil
}

func (m *memMonthlyTests) Update(ctx context.Context, test *models.MonthlyTest) error {
	m.rows[test.ID] = *test
	return nil
}

type memTestMarks struct {
	rows map[string]models.TestMarks
}

func newMemTestMarks(rows ...models.TestMarks) *memTestMarks {
	m := &memTestMarks{rows: map[string]models.TestMarks{}}
	for _, row := range rows {
		m.rows[row.ID] = row
	}
	return m
}

func (m *memTestMarks) List(ctx context.Context, filter models.TestMarksFilter, scope repository.Scope) ([]models.TestMarks, error) {
	out := make([]models.TestMarks, 0, len(m.rows))
	for _, row := range m.rows {
		if filter.TestID != "" && row.TestID != filter.TestID {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTestMarks) FindByID(ctx context.Context, id string) (*models.TestMarks, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memTestMarks) FindByKey(ctx context.Context, testID, studentID string) (*models.TestMarks, error) {
	for _, row := range m.rows {
		if row.TestID == testID && row.StudentID == studentID {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memTestMarks) Create(ctx context.Context, marks *models.TestMarks) error {
	marks.ID = uuid.NewString()
	m.rows[marks.ID] = *marks
	return nil
}

func (m *memTestMarks) Update(ctx context.Context, marks *models.TestMarks) error {
	m.rows[marks.ID] = *marks
	return nil
}

func (m *memTestMarks) UpdateTotalMarksByTest(ctx context.Context, testID string, totalMarks int) (int64, error) {
	var affected int64
	for id, row := range m.rows {
		if row.TestID == testID {
			row.TotalMarks = totalMarks
			m.rows[id] = row
			affected++
		}
	}
	return affected, nil
}

// memChangeRequests is an in-memory change request store with the same
// pending-only transition rule as the SQL repository.
type memChangeRequests struct {
	requests map[string]*models.ChangeRequest
	targets  map[string]*models.TargetDescription
	describe func(modelType models.ModelType, objectID string) (*models.TargetDescription, error)
	locks    []string
	creates  int
	failOn   string
}

func newMemChangeRequests() *memChangeRequests {
	return &memChangeRequests{requests: map[string]*models.ChangeRequest{}, targets: map[string]*models.TargetDescription{}}
}

func cloneRequest(request *models.ChangeRequest) *models.ChangeRequest {
	out := *request
	out.Items = append([]models.ChangeRequestItem(nil), request.Items...)
	return &out
}

func (m *memChangeRequests) seed(request models.ChangeRequest) *models.ChangeRequest {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	}
	m.requests[request.ID] = cloneRequest(&request)
	return &request
}

func (m *memChangeRequests) pendingFor(modelType models.ModelType, objectID string) []*models.ChangeRequest {
	var out []*models.ChangeRequest
	for _, request := range m.requests {
		if request.ModelType == modelType && request.ObjectID == objectID && request.Status == models.ChangeStatusPending {
			out = append(out, request)
		}
	}
	return out
}

func (m *memChangeRequests) LockObject(ctx context.Context, modelType models.ModelType, objectID string) error {
	m.locks = append(m.locks, string(modelType)+":"+objectID)
	return nil
}

func (m *memChangeRequests) FindPending(ctx context.Context, modelType models.ModelType, objectID string) (*models.ChangeRequest, error) {
	pending := m.pendingFor(modelType, objectID)
	if len(pending) == 0 {
		return nil, sql.ErrNoRows
	}
	return cloneRequest(pending[0]), nil
}

func (m *memChangeRequests) Create(ctx context.Context, request *models.ChangeRequest) error {
	if m.failOn == "create" {
		return errors.New("insert failed")
	}
	m.creates++
	request.ID = uuid.NewString()
	m.requests[request.ID] = cloneRequest(request)
	return nil
}

func (m *memChangeRequests) ReplaceItems(ctx context.Context, requestID string, items []models.ChangeRequestItem) error {
	request, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	request.Items = append([]models.ChangeRequestItem(nil), items...)
	return nil
}

func (m *memChangeRequests) GetByID(ctx context.Context, id string, forUpdate bool) (*models.ChangeRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneRequest(request), nil
}

func (m *memChangeRequests) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	out := make([]models.ChangeRequest, 0, len(m.requests))
	for _, request := range m.requests {
		if len(filter.Status) > 0 && !containsStatus(filter.Status, request.Status) {
			continue
		}
		if filter.ModelType != "" && request.ModelType != filter.ModelType {
			continue
		}
		if filter.ObjectID != "" && request.ObjectID != filter.ObjectID {
			continue
		}
		out = append(out, *cloneRequest(request))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []models.ChangeStatus, status models.ChangeStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (m *memChangeRequests) ListPendingByObjects(ctx context.Context, modelType models.ModelType, objectIDs []string) ([]models.ChangeRequest, error) {
	out := make([]models.ChangeRequest, 0)
	for _, objectID := range objectIDs {
		for _, request := range m.pendingFor(modelType, objectID) {
			out = append(out, *cloneRequest(request))
		}
	}
	return out, nil
}

func (m *memChangeRequests) UpdateStatus(ctx context.Context, params repository.UpdateChangeRequestStatusParams) error {
	request, ok := m.requests[params.ID]
	if !ok || request.Status != models.ChangeStatusPending {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.ReviewedBy = params.ReviewedBy
	reviewedAt := params.ReviewedAt
	request.ReviewedAt = &reviewedAt
	request.Notes = params.Notes
	return nil
}

func (m *memChangeRequests) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	counts := map[[2]string]int{}
	for _, request := range m.requests {
		counts[[2]string{string(request.Status), string(request.ModelType)}]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for key, total := range counts {
		out = append(out, models.StatusCount{Status: models.ChangeStatus(key[0]), ModelType: models.ModelType(key[1]), Total: total})
	}
	return out, nil
}

func (m *memChangeRequests) DescribeTarget(ctx context.Context, modelType models.ModelType, objectID string) (*models.TargetDescription, error) {
	if m.describe != nil {
		return m.describe(modelType, objectID)
	}
	target, ok := m.targets[string(modelType)+":"+objectID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *target
	return &copied, nil
}

type memAudit struct {
	entries []*models.AuditLog
}

func (m *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, log)
	return nil
}

type stubSubjects struct {
	subjects []models.Subject
}

func (s *stubSubjects) ListByClass(ctx context.Context, classID string) ([]models.Subject, error) {
	out := make([]models.Subject, 0, len(s.subjects))
	for _, subject := range s.subjects {
		if subject.ClassID == classID {
			out = append(out, subject)
		}
	}
	return out, nil
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }
