package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/middleware"
	"github.com/noah-isme/students-api/internal/observability"
	"github.com/noah-isme/students-api/internal/repository"
)

var (
	// ErrStudentNotFound indicates no student exists for the requested id.
	ErrStudentNotFound = errors.New("student not found")
	// ErrStudentConflict indicates the email is already registered to another student.
	ErrStudentConflict = errors.New("a student with this email already exists")
	// ErrNothingToUpdate indicates an update payload without any field.
	ErrNothingToUpdate = errors.New("at least one field must be provided")
)

// InternalError wraps an unexpected store failure together with the step that failed.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// StudentService orchestrates student resource use cases.
type StudentService interface {
	List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error)
	Get(ctx context.Context, id uint) (dto.StudentResponse, error)
	Create(ctx context.Context, payload dto.CreateStudentRequest) (dto.StudentResponse, error)
	Update(ctx context.Context, id uint, payload dto.UpdateStudentRequest) (dto.StudentResponse, error)
	Delete(ctx context.Context, id uint) error
}

type studentService struct {
	repo      repository.StudentRepository
	validator *StudentValidator
	activity  ActivityRecorder
	events    StudentEventPublisher
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewStudentService constructs the student service. activity and events are optional.
func NewStudentService(repo repository.StudentRepository, validator *StudentValidator, activity ActivityRecorder, events StudentEventPublisher, logger zerolog.Logger) StudentService {
	if validator == nil {
		validator = NewStudentValidator(nil)
	}

	return &studentService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		events:    events,
		logger:    logger.With().Str("component", "student_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/students-api/internal/service/student"),
	}
}

func (s *studentService) List(ctx context.Context, req dto.StudentListRequest) (resp dto.StudentListResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "students.list")
	defer func() { s.finish(span, "list", err) }()

	filter := repository.StudentFilter{
		Page:    req.Page,
		Limit:   req.Limit,
		Search:  req.Search,
		Program: req.Program,
		Active:  req.Active,
	}.Normalize()
	span.SetAttributes(attribute.Int("students.page", filter.Page), attribute.Int("students.limit", filter.Limit))

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.StudentListResponse{}, s.internal(ctx, "list", err)
	}

	return dto.StudentListResponse{
		Items: dto.NewStudentResponseSlice(students),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

func (s *studentService) Get(ctx context.Context, id uint) (resp dto.StudentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "students.get", trace.WithAttributes(attribute.Int64("student.id", int64(id))))
	defer func() { s.finish(span, "get", err) }()

	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, s.internal(ctx, "get", err)
	}

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) Create(ctx context.Context, payload dto.CreateStudentRequest) (resp dto.StudentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "students.create")
	defer func() { s.finish(span, "create", err) }()

	if err := s.validator.ValidateCreate(&payload); err != nil {
		return dto.StudentResponse{}, err
	}

	record := repository.StudentRecord{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Age:       payload.Age,
		Program:   payload.Program,
		Term:      payload.Term,
		Active:    true,
	}
	if payload.GPA != nil {
		record.GPA = *payload.GPA
	}
	if payload.Active != nil {
		record.Active = *payload.Active
	}

	id, err := s.repo.Create(ctx, record)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return dto.StudentResponse{}, ErrStudentConflict
		}
		return dto.StudentResponse{}, s.internal(ctx, "create.insert", err)
	}

	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, s.internal(ctx, "create.refetch", err)
	}

	resp = dto.NewStudentResponse(student)
	s.afterMutation(ctx, StudentCreatedEvent, id, &resp, map[string]interface{}{
		"email":   resp.Email,
		"program": resp.Program,
	})

	return resp, nil
}

func (s *studentService) Update(ctx context.Context, id uint, payload dto.UpdateStudentRequest) (resp dto.StudentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "students.update", trace.WithAttributes(attribute.Int64("student.id", int64(id))))
	defer func() { s.finish(span, "update", err) }()

	if err := s.validator.ValidateUpdate(&payload); err != nil {
		return dto.StudentResponse{}, err
	}

	changes := repository.ChangeSetFromTagged(&payload)
	if len(changes) == 0 {
		return dto.StudentResponse{}, ErrNothingToUpdate
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, s.internal(ctx, "update.exists", err)
	}
	if !exists {
		return dto.StudentResponse{}, ErrStudentNotFound
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		switch {
		case errors.Is(err, repository.ErrStudentNotFound):
			return dto.StudentResponse{}, ErrStudentNotFound
		case errors.Is(err, repository.ErrDuplicateEmail):
			return dto.StudentResponse{}, ErrStudentConflict
		case errors.Is(err, repository.ErrNothingToUpdate):
			return dto.StudentResponse{}, ErrNothingToUpdate
		default:
			return dto.StudentResponse{}, s.internal(ctx, "update.execute", err)
		}
	}

	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, s.internal(ctx, "update.refetch", err)
	}

	resp = dto.NewStudentResponse(student)
	s.afterMutation(ctx, StudentUpdatedEvent, id, &resp, map[string]interface{}{
		"fields": changes.Columns(),
	})

	return resp, nil
}

func (s *studentService) Delete(ctx context.Context, id uint) (err error) {
	ctx, span := s.tracer.Start(ctx, "students.delete", trace.WithAttributes(attribute.Int64("student.id", int64(id))))
	defer func() { s.finish(span, "delete", err) }()

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return ErrStudentNotFound
		}
		return s.internal(ctx, "delete", err)
	}

	s.afterMutation(ctx, StudentDeletedEvent, id, nil, nil)
	return nil
}

func (s *studentService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error().
		Err(err).
		Str("op", op).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Msg("student store operation failed")
	return &InternalError{Op: op, Err: err}
}

func (s *studentService) afterMutation(ctx context.Context, eventType string, id uint, student *dto.StudentResponse, metadata map[string]interface{}) {
	correlationID := middleware.CorrelationIDFromContext(ctx)
	logger := s.logger.With().
		Str("event", eventType).
		Uint("student_id", id).
		Str("correlation_id", correlationID).
		Logger()

	if s.activity != nil {
		entityID := id
		if _, err := s.activity.Record(ctx, ActivityEntry{
			Action:        eventType,
			EntityType:    "student",
			EntityID:      &entityID,
			CorrelationID: correlationID,
			Metadata:      metadata,
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to record student activity")
		}
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, newStudentEvent(eventType, id, student, correlationID)); err != nil {
			logger.Warn().Err(err).Msg("failed to publish student event")
		}
	}
}

func (s *studentService) finish(span trace.Span, operation string, err error) {
	outcome := OutcomeOf(err)
	observability.StudentOperations().WithLabelValues(operation, outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, outcome)
	}
	span.End()
}

// OutcomeOf classifies an error returned by StudentService.
func OutcomeOf(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validationErr), errors.Is(err, ErrNothingToUpdate):
		return "validation"
	case errors.Is(err, ErrStudentNotFound):
		return "not_found"
	case errors.Is(err, ErrStudentConflict):
		return "conflict"
	default:
		return "internal"
	}
}
