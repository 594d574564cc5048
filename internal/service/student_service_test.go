package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/middleware"
	"github.com/noah-isme/students-api/internal/models"
	"github.com/noah-isme/students-api/internal/repository"
)

type stubActivityRecorder struct {
	entries []ActivityEntry
	err     error
}

func (s *stubActivityRecorder) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	if s.err != nil {
		return dto.ActivityResponse{}, s.err
	}
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action}, nil
}

type stubEventPublisher struct {
	events []StudentEvent
}

func (s *stubEventPublisher) Publish(ctx context.Context, event StudentEvent) error {
	s.events = append(s.events, event)
	return nil
}

// staleExistsRepo reports the row as present, then loses it before the write.
type staleExistsRepo struct {
	repository.StudentRepository
}

func (r *staleExistsRepo) Exists(ctx context.Context, id uint) (bool, error) {
	return true, nil
}

func (r *staleExistsRepo) Update(ctx context.Context, id uint, changes repository.ChangeSet) error {
	return repository.ErrStudentNotFound
}

type failingStudentRepo struct {
	repository.StudentRepository
	getErr error
}

func (f *failingStudentRepo) GetByID(ctx context.Context, id uint) (models.Student, error) {
	return models.Student{}, f.getErr
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupStudentRepo(t *testing.T) repository.StudentRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:students_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Student{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return repository.NewStudentRepository(sqlx.NewDb(sqlDB, "sqlite3"), "sqlite3")
}

func newTestStudentService(t *testing.T) (StudentService, *stubActivityRecorder, *stubEventPublisher) {
	t.Helper()
	activity := &stubActivityRecorder{}
	events := &stubEventPublisher{}
	svc := NewStudentService(setupStudentRepo(t), NewStudentValidator(nil), activity, events, testLogger())
	return svc, activity, events
}

func TestStudentServiceExampleFlow(t *testing.T) {
	svc, activity, events := newTestStudentService(t)
	ctx := middleware.ContextWithCorrelation(context.Background(), "corr-1")

	created, err := svc.Create(ctx, dto.CreateStudentRequest{
		FirstName: "Ana",
		LastName:  "Lopez",
		Email:     "ana@x.io",
		Age:       20,
		Program:   "Computer Science",
		Term:      2,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, 0.0, created.GPA)
	require.True(t, created.Active)

	gpa := 9.1
	updated, err := svc.Update(ctx, created.ID, dto.UpdateStudentRequest{GPA: &gpa})
	require.NoError(t, err)
	require.InDelta(t, 9.1, updated.GPA, 0.0001)
	require.Equal(t, created.FirstName, updated.FirstName)
	require.Equal(t, created.Email, updated.Email)
	require.Equal(t, created.Term, updated.Term)
	require.True(t, updated.Active)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	require.Len(t, activity.entries, 3)
	require.Equal(t, StudentCreatedEvent, activity.entries[0].Action)
	require.Equal(t, []string{"gpa"}, activity.entries[1].Metadata["fields"])
	require.Equal(t, "corr-1", activity.entries[2].CorrelationID)

	require.Len(t, events.events, 3)
	require.Equal(t, StudentDeletedEvent, events.events[2].Type)
	require.Nil(t, events.events[2].Student)
	require.Equal(t, created.ID, events.events[0].StudentID)
}

func TestStudentServiceCreateHonoursExplicitActiveFalse(t *testing.T) {
	svc, _, _ := newTestStudentService(t)
	active := false
	gpa := 7.5

	created, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		FirstName: "Bruno",
		LastName:  "Diaz",
		Email:     "bruno@x.io",
		Age:       30,
		Program:   "Mathematics",
		Term:      5,
		GPA:       &gpa,
		Active:    &active,
	})
	require.NoError(t, err)
	require.False(t, created.Active)
	require.InDelta(t, 7.5, created.GPA, 0.0001)

	updated, err := svc.Update(context.Background(), created.ID, dto.UpdateStudentRequest{Active: ptrBool(true)})
	require.NoError(t, err)
	require.True(t, updated.Active)

	updated, err = svc.Update(context.Background(), created.ID, dto.UpdateStudentRequest{Active: ptrBool(false)})
	require.NoError(t, err)
	require.False(t, updated.Active)
}

func TestStudentServiceValidationHappensBeforeStore(t *testing.T) {
	svc, activity, _ := newTestStudentService(t)

	_, err := svc.Create(context.Background(), dto.CreateStudentRequest{FirstName: "A"})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.NotEmpty(t, validationErr.Fields)
	require.Empty(t, activity.entries)

	resp, err := svc.List(context.Background(), dto.StudentListRequest{Limit: 10})
	require.NoError(t, err)
	require.Zero(t, resp.Total)
}

func TestStudentServiceConflicts(t *testing.T) {
	svc, _, _ := newTestStudentService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, studentPayload("dup@x.io"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, studentPayload("dup@x.io"))
	require.ErrorIs(t, err, ErrStudentConflict)

	second, err := svc.Create(ctx, studentPayload("other@x.io"))
	require.NoError(t, err)

	email := first.Email
	_, err = svc.Update(ctx, second.ID, dto.UpdateStudentRequest{Email: &email})
	require.ErrorIs(t, err, ErrStudentConflict)
}

func TestStudentServiceUpdateErrors(t *testing.T) {
	svc, _, _ := newTestStudentService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, 999, dto.UpdateStudentRequest{})
	require.ErrorIs(t, err, ErrNothingToUpdate)
	require.Equal(t, "validation", OutcomeOf(err))

	term := 3
	_, err = svc.Update(ctx, 999, dto.UpdateStudentRequest{Term: &term})
	require.ErrorIs(t, err, ErrStudentNotFound)

	require.ErrorIs(t, svc.Delete(ctx, 999), ErrStudentNotFound)
}

func TestStudentServiceUpdateTreatsZeroRowsAsNotFound(t *testing.T) {
	activity := &stubActivityRecorder{}
	events := &stubEventPublisher{}
	repo := &staleExistsRepo{StudentRepository: setupStudentRepo(t)}
	svc := NewStudentService(repo, NewStudentValidator(nil), activity, events, testLogger())

	gpa := 9.1
	_, err := svc.Update(context.Background(), 5, dto.UpdateStudentRequest{GPA: &gpa})
	require.ErrorIs(t, err, ErrStudentNotFound)
	require.Equal(t, "not_found", OutcomeOf(err))
	require.Empty(t, activity.entries)
	require.Empty(t, events.events)
}

func TestStudentServiceCreateKeepsInputVerbatim(t *testing.T) {
	svc, activity, _ := newTestStudentService(t)
	ctx := context.Background()

	payload := studentPayload("Ana.Lopez@X.com")
	payload.LastName = "O'Brien & Lopez"
	created, err := svc.Create(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, "Ana.Lopez@X.com", created.Email)
	require.Equal(t, "O'Brien & Lopez", created.LastName)

	for _, lastName := range []string{"Lo<pez", "Ruiz <Garcia>"} {
		payload := studentPayload("markup@x.io")
		payload.LastName = lastName
		_, err := svc.Create(ctx, payload)

		var validationErr *ValidationError
		require.True(t, errors.As(err, &validationErr), lastName)
		require.Equal(t, []string{"lastName must not contain markup"}, validationErr.Fields)
	}
	require.Len(t, activity.entries, 1)
}

func TestStudentServiceListPagination(t *testing.T) {
	svc, _, _ := newTestStudentService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, studentPayload(fmt.Sprintf("s%d@x.io", i)))
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, dto.StudentListRequest{Page: 0, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), resp.Total)
	require.Equal(t, 1, resp.Page)
	require.Len(t, resp.Items, 2)

	resp, err = svc.List(ctx, dto.StudentListRequest{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)

	resp, err = svc.List(ctx, dto.StudentListRequest{Page: 1, Limit: 1000})
	require.NoError(t, err)
	require.Equal(t, 100, resp.Limit)
	require.Len(t, resp.Items, 5)

	resp, err = svc.List(ctx, dto.StudentListRequest{Page: 1, Limit: 0})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Limit)
	require.Len(t, resp.Items, 1)
}

func TestStudentServiceRefetchFailureIsInternal(t *testing.T) {
	repo := &failingStudentRepo{StudentRepository: setupStudentRepo(t), getErr: errors.New("connection reset")}
	svc := NewStudentService(repo, nil, nil, nil, testLogger())

	_, err := svc.Create(context.Background(), studentPayload("refetch@x.io"))
	var internalErr *InternalError
	require.True(t, errors.As(err, &internalErr))
	require.Equal(t, "create.refetch", internalErr.Op)
	require.Equal(t, "internal", OutcomeOf(err))
}

func TestStudentServiceSideEffectFailuresDoNotFailMutation(t *testing.T) {
	activity := &stubActivityRecorder{err: errors.New("audit store down")}
	svc := NewStudentService(setupStudentRepo(t), nil, activity, nil, testLogger())

	_, err := svc.Create(context.Background(), studentPayload("side@x.io"))
	require.NoError(t, err)
}

func TestStudentEventPublisherUsesRedisChannel(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	ctx := context.Background()
	sub := redisClient.Subscribe(ctx, "campus:students")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewStudentEventPublisher(redisClient, nil, "campus")
	require.NoError(t, publisher.Publish(ctx, newStudentEvent(StudentDeletedEvent, 42, nil, "corr-9")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event StudentEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, StudentDeletedEvent, event.Type)
	require.Equal(t, uint(42), event.StudentID)
	require.Equal(t, "corr-9", event.CorrelationID)
	require.NotEmpty(t, event.ID)
}

func studentPayload(email string) dto.CreateStudentRequest {
	return dto.CreateStudentRequest{
		FirstName: "Ana",
		LastName:  "Lopez",
		Email:     email,
		Age:       20,
		Program:   "Computer Science",
		Term:      2,
	}
}

func ptrBool(v bool) *bool {
	return &v
}
