package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/models"
	"github.com/noah-isme/students-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksEmail(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		Action:        "Student.Updated",
		EntityType:    "student",
		EntityID:      ptrUint(5),
		CorrelationID: "req-1",
		Metadata: map[string]interface{}{
			"email":   "student@example.com",
			"program": "Computer Science",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "student.updated", entry.Action)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, "Computer Science", entry.Metadata["program"])
	require.Equal(t, "req-1", entry.CorrelationID)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "student"})
	require.Error(t, err)
}

func TestActivityServiceListPagination(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())
	for i := 0; i < 3; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{Action: StudentCreatedEvent, EntityType: "student"})
		require.NoError(t, err)
	}

	resp, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 0, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	require.Equal(t, 1, resp.Pagination.Page)
	require.Equal(t, int64(3), resp.Pagination.TotalItems)
	require.Equal(t, 2, resp.Pagination.TotalPages)
}

func ptrUint(v uint) *uint {
	return &v
}
