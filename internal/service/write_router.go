package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/dto"
	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
)

const defaultBatchLimit = 200

type changeLedger interface {
	Upsert(ctx context.Context, modelType models.ModelType, objectID string, items []models.ChangeRequestItem, actor *models.JWTClaims) (*models.ChangeRequest, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// WriteRouter applies first-time creations directly and turns every
// modification of an existing record into a pending change request.
type WriteRouter struct {
	stores     EntityStores
	ledger     changeLedger
	validator  *validator.Validate
	metrics    *MetricsService
	audit      auditLogger
	batchLimit int
	logger     *zap.Logger
}

// WriteRouterOption configures the router.
type WriteRouterOption func(*WriteRouter)

// WithWriteMetrics records write outcomes.
func WithWriteMetrics(metrics *MetricsService) WriteRouterOption {
	return func(r *WriteRouter) {
		r.metrics = metrics
	}
}

// WithWriteAudit records direct creations in the audit trail.
func WithWriteAudit(audit auditLogger) WriteRouterOption {
	return func(r *WriteRouter) {
		r.audit = audit
	}
}

// WithBatchLimit caps the number of items accepted in one batch write.
func WithBatchLimit(limit int) WriteRouterOption {
	return func(r *WriteRouter) {
		if limit > 0 {
			r.batchLimit = limit
		}
	}
}

// NewWriteRouter constructs the router.
func NewWriteRouter(stores EntityStores, ledger changeLedger, validate *validator.Validate, logger *zap.Logger, opts ...WriteRouterOption) *WriteRouter {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &WriteRouter{stores: stores, ledger: ledger, validator: validate, logger: logger, batchLimit: defaultBatchLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouteMarks creates or stages a subject mark.
func (r *WriteRouter) RouteMarks(ctx context.Context, p dto.MarksPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid marks payload")
	}
	var (
		current *models.Marks
		err     error
	)
	if p.ID != "" {
		current, err = r.stores.Marks.FindByID(ctx, p.ID)
	} else {
		current, err = r.stores.Marks.FindByKey(ctx, p.StudentID, p.SubjectID)
	}
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
		}
		if p.ID != "" {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "marks not found")
		}
		marks := &models.Marks{StudentID: p.StudentID, SubjectID: p.SubjectID, Marks: p.Marks}
		if err := r.stores.Marks.Create(ctx, marks); err != nil {
			return nil, translateWriteErr(err, "failed to create marks")
		}
		return r.created(ctx, models.ModelTypeMarks, marks.ID, marks, actor), nil
	}
	proposed := Snapshot{{"marks", p.Marks}}
	return r.stage(ctx, models.ModelTypeMarks, current.ID, marksSnapshot(current), proposed, current, actor)
}

// RouteAttendance creates or stages an attendance row.
func (r *WriteRouter) RouteAttendance(ctx context.Context, p dto.AttendancePayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid attendance payload")
	}
	var (
		current *models.Attendance
		date    time.Time
		err     error
	)
	if p.ID != "" {
		current, err = r.stores.Attendance.FindByID(ctx, p.ID)
	} else {
		date, err = time.Parse(dateLayout, p.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		current, err = r.stores.Attendance.FindByKey(ctx, p.StudentID, date)
	}
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		if p.ID != "" {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance not found")
		}
		row := &models.Attendance{StudentID: p.StudentID, Date: date, Present: *p.Present}
		if err := r.stores.Attendance.Create(ctx, row); err != nil {
			return nil, translateWriteErr(err, "failed to create attendance")
		}
		return r.created(ctx, models.ModelTypeAttendance, row.ID, row, actor), nil
	}
	proposed := Snapshot{{"present", *p.Present}}
	return r.stage(ctx, models.ModelTypeAttendance, current.ID, attendanceSnapshot(current), proposed, current, actor)
}

// RouteFee creates or stages a monthly fee row.
func (r *WriteRouter) RouteFee(ctx context.Context, p dto.FeePayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid fee payload")
	}
	var (
		current *models.Fee
		err     error
	)
	if p.ID != "" {
		current, err = r.stores.Fees.FindByID(ctx, p.ID)
	} else {
		current, err = r.stores.Fees.FindByKey(ctx, p.StudentID, p.Month)
	}
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
		}
		if p.ID != "" {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		fee := &models.Fee{
			StudentID:    p.StudentID,
			Month:        p.Month,
			TotalFee:     derefFloat(p.TotalFee),
			SubmittedFee: derefFloat(p.SubmittedFee),
			Fine:         derefFloat(computeFine(p, nil)),
		}
		if p.Absentees != nil {
			fee.Absentees = *p.Absentees
		}
		if err := r.stores.Fees.Create(ctx, fee); err != nil {
			return nil, translateWriteErr(err, "failed to create fee")
		}
		return r.created(ctx, models.ModelTypeFee, fee.ID, fee, actor), nil
	}
	return r.stage(ctx, models.ModelTypeFee, current.ID, feeSnapshot(current), feePayloadSnapshot(p, current), current, actor)
}

// RouteTestMarks creates or stages the mark of a student in a monthly test.
// Edits of an existing row are keyed by the row id; the "<testId>_<studentId>"
// composite is only used by manual submissions made before the row exists.
func (r *WriteRouter) RouteTestMarks(ctx context.Context, p dto.TestMarksPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid test marks payload")
	}
	var (
		current *models.TestMarks
		err     error
	)
	if p.ID != "" {
		current, err = r.stores.TestMarks.FindByID(ctx, p.ID)
	} else {
		current, err = r.stores.TestMarks.FindByKey(ctx, p.TestID, p.StudentID)
	}
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load test marks")
		}
		if p.ID != "" {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "test marks not found")
		}
		test, err := loadByID(ctx, p.TestID, "monthly test", r.stores.MonthlyTests.FindByID)
		if err != nil {
			return nil, err
		}
		marks := &models.TestMarks{TestID: p.TestID, StudentID: p.StudentID, Marks: *p.Marks, TotalMarks: test.TotalMarks}
		if err := r.stores.TestMarks.Create(ctx, marks); err != nil {
			return nil, translateWriteErr(err, "failed to create test marks")
		}
		return r.created(ctx, models.ModelTypeTestMarks, marks.ID, marks, actor), nil
	}
	proposed := Snapshot{{"marks", *p.Marks}}
	return r.stage(ctx, models.ModelTypeTestMarks, current.ID, testMarksSnapshot(current), proposed, current, actor)
}

// CreateStudent registers a new student directly.
func (r *WriteRouter) CreateStudent(ctx context.Context, p dto.StudentPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid student payload")
	}
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	student := &models.Student{}
	items := ComputeDiff(studentSnapshot(student), studentPayloadSnapshot(p))
	if _, err := studentFields.apply(student, items); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student field value")
	}
	if err := r.stores.Students.Create(ctx, student); err != nil {
		return nil, translateWriteErr(err, "failed to create student")
	}
	return r.created(ctx, models.ModelTypeStudent, student.ID, student, actor), nil
}

// UpdateStudent stages profile changes of an existing student.
func (r *WriteRouter) UpdateStudent(ctx context.Context, id string, p dto.StudentPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid student payload")
	}
	student, err := loadByID(ctx, id, "student", r.stores.Students.FindByID)
	if err != nil {
		return nil, err
	}
	return r.stage(ctx, models.ModelTypeStudent, student.ID, studentSnapshot(student), studentPayloadSnapshot(p), student, actor)
}

// CreateMonthlyTest registers a new monthly test directly.
func (r *WriteRouter) CreateMonthlyTest(ctx context.Context, p dto.MonthlyTestPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid monthly test payload")
	}
	if p.Title == nil || p.Subject == nil || p.ClassID == nil || p.Month == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title, subject, class_id and month are required")
	}
	test := &models.MonthlyTest{
		Title:   *p.Title,
		Subject: *p.Subject,
		ClassID: *p.ClassID,
		Month:   *p.Month,
	}
	if p.TotalMarks != nil {
		test.TotalMarks = *p.TotalMarks
	}
	if p.Description != nil {
		test.Description = *p.Description
	}
	if err := r.stores.MonthlyTests.Create(ctx, test); err != nil {
		return nil, translateWriteErr(err, "failed to create monthly test")
	}
	return r.created(ctx, models.ModelTypeMonthlyTest, test.ID, test, actor), nil
}

// UpdateMonthlyTest stages changes of an existing monthly test.
func (r *WriteRouter) UpdateMonthlyTest(ctx context.Context, id string, p dto.MonthlyTestPayload, actor *models.JWTClaims) (*dto.WriteResult, error) {
	if err := r.validator.Struct(p); err != nil {
		return nil, appErrors.Invalid(err, "invalid monthly test payload")
	}
	test, err := loadByID(ctx, id, "monthly test", r.stores.MonthlyTests.FindByID)
	if err != nil {
		return nil, err
	}
	if p.ClassID != nil && *p.ClassID != test.ClassID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id of a monthly test cannot change")
	}
	return r.stage(ctx, models.ModelTypeMonthlyTest, test.ID, monthlyTestSnapshot(test), monthlyTestPayloadSnapshot(p), test, actor)
}

// RouteClassAttendance routes one attendance write per student admitted to the class.
func (r *WriteRouter) RouteClassAttendance(ctx context.Context, req dto.ClassAttendanceRequest, actor *models.JWTClaims) ([]dto.BatchItemResult, error) {
	if err := r.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class attendance payload")
	}
	students, err := r.stores.Students.ListByClassName(ctx, req.ClassName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class students")
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no students found in class %s", req.ClassName))
	}
	results := make([]dto.BatchItemResult, 0, len(students))
	for i, student := range students {
		result, err := r.RouteAttendance(ctx, dto.AttendancePayload{
			StudentID: student.ID,
			Date:      req.Date,
			Present:   req.Present,
		}, actor)
		results = append(results, batchItem(i, result, err))
	}
	return results, nil
}

// RouteWrite dispatches a raw JSON object or array to the router of modelType.
func (r *WriteRouter) RouteWrite(ctx context.Context, modelType models.ModelType, body []byte, actor *models.JWTClaims) (*dto.RoutedWrite, error) {
	route, err := r.routeFor(modelType)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request body is required")
	}

	if body[0] != '[' {
		result, err := route(ctx, body, actor)
		if err != nil {
			return nil, err
		}
		return &dto.RoutedWrite{Single: result}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, appErrors.Invalid(err, "invalid JSON array")
	}
	if len(elements) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one item is required")
	}
	if len(elements) > r.batchLimit {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds %d items", r.batchLimit))
	}
	items := make([]dto.BatchItemResult, 0, len(elements))
	for i, element := range elements {
		result, err := route(ctx, element, actor)
		items = append(items, batchItem(i, result, err))
	}
	summary := dto.Summarize(items)
	return &dto.RoutedWrite{Batch: true, Items: items, Summary: &summary}, nil
}

type rawRoute func(ctx context.Context, body []byte, actor *models.JWTClaims) (*dto.WriteResult, error)

func (r *WriteRouter) routeFor(modelType models.ModelType) (rawRoute, error) {
	switch modelType {
	case models.ModelTypeMarks:
		return decodeAndRoute(r.RouteMarks), nil
	case models.ModelTypeAttendance:
		return decodeAndRoute(r.RouteAttendance), nil
	case models.ModelTypeFee:
		return decodeAndRoute(r.RouteFee), nil
	case models.ModelTypeTestMarks:
		return decodeAndRoute(r.RouteTestMarks), nil
	case models.ModelTypeStudent:
		return withOptionalID(r.CreateStudent, r.UpdateStudent), nil
	case models.ModelTypeMonthlyTest:
		return withOptionalID(r.CreateMonthlyTest, r.UpdateMonthlyTest), nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported model type %q", modelType))
	}
}

func decodeAndRoute[P any](route func(context.Context, P, *models.JWTClaims) (*dto.WriteResult, error)) rawRoute {
	return func(ctx context.Context, body []byte, actor *models.JWTClaims) (*dto.WriteResult, error) {
		var payload P
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, appErrors.Invalid(err, "invalid JSON object")
		}
		return route(ctx, payload, actor)
	}
}

// withOptionalID routes to update when the object carries an "id", otherwise to create.
func withOptionalID[P any](
	create func(context.Context, P, *models.JWTClaims) (*dto.WriteResult, error),
	update func(context.Context, string, P, *models.JWTClaims) (*dto.WriteResult, error),
) rawRoute {
	return func(ctx context.Context, body []byte, actor *models.JWTClaims) (*dto.WriteResult, error) {
		var envelope struct {
			ID string `json:"id"`
		}
		var payload P
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, appErrors.Invalid(err, "invalid JSON object")
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, appErrors.Invalid(err, "invalid JSON object")
		}
		if envelope.ID != "" {
			return update(ctx, envelope.ID, payload, actor)
		}
		return create(ctx, payload, actor)
	}
}

func (r *WriteRouter) stage(ctx context.Context, modelType models.ModelType, objectID string, current, proposed Snapshot, record interface{}, actor *models.JWTClaims) (*dto.WriteResult, error) {
	items := ComputeDiff(current, proposed)
	request, err := r.ledger.Upsert(ctx, modelType, objectID, items, actor)
	if err != nil {
		return nil, err
	}
	result := &dto.WriteResult{Outcome: dto.WriteOutcomeUnchanged, ModelType: modelType, Record: record}
	if request != nil {
		id := request.ID
		result.ChangeRequestID = &id
		result.PendingChanges = len(request.Items)
	}
	if len(items) > 0 {
		result.Outcome = dto.WriteOutcomeDeferred
	}
	r.metrics.RecordWriteOutcome(modelType, result.Outcome)
	return result, nil
}

func (r *WriteRouter) created(ctx context.Context, modelType models.ModelType, id string, record interface{}, actor *models.JWTClaims) *dto.WriteResult {
	r.metrics.RecordWriteOutcome(modelType, dto.WriteOutcomeCreated)
	if r.audit != nil {
		entry := &models.AuditLog{
			Action:     models.AuditActionRecordCreate,
			Resource:   string(modelType),
			ResourceID: &id,
			IPAddress:  "system",
			UserAgent:  "write-router",
		}
		if actor.Known() {
			userID := actor.UserID
			entry.UserID = &userID
		}
		if payload, err := json.Marshal(record); err == nil {
			entry.NewValues = payload
		}
		if err := r.audit.CreateAuditLog(ctx, entry); err != nil {
			r.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}
	return &dto.WriteResult{Outcome: dto.WriteOutcomeCreated, ModelType: modelType, Record: record}
}

func batchItem(index int, result *dto.WriteResult, err error) dto.BatchItemResult {
	item := dto.BatchItemResult{Index: index, Result: result}
	if err != nil {
		appErr := appErrors.FromError(err)
		item.Result = nil
		item.Error = appErr.Message
		item.Code = appErr.Code
	}
	return item
}

// translateWriteErr maps constraint violations of direct inserts to client errors.
func translateWriteErr(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			return appErrors.Invalid(err, "referenced record does not exist")
		case "23505":
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "record already exists")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func derefFloat(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
