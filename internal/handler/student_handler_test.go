package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/handler"
	"github.com/noah-isme/students-api/internal/models"
	"github.com/noah-isme/students-api/internal/repository"
	"github.com/noah-isme/students-api/internal/service"
)

type failingStudentService struct {
	service.StudentService
	err error
}

func (f failingStudentService) List(context.Context, dto.StudentListRequest) (dto.StudentListResponse, error) {
	return dto.StudentListResponse{}, f.err
}

func (f failingStudentService) Get(context.Context, uint) (dto.StudentResponse, error) {
	return dto.StudentResponse{}, f.err
}

func newStudentService(t *testing.T) service.StudentService {
	t.Helper()
	dsn := fmt.Sprintf("file:students_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Student{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewStudentRepository(sqlx.NewDb(sqlDB, "sqlite3"), "sqlite3")
	return service.NewStudentService(repo, service.NewStudentValidator(nil), nil, nil, zerolog.New(io.Discard))
}

func newStudentApp(t *testing.T, svc service.StudentService) *fiber.App {
	t.Helper()
	app := fiber.New()
	handler.NewStudentHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/students"))
	return app
}

func TestStudentHandlerExampleFlow(t *testing.T) {
	app := newStudentApp(t, newStudentService(t))

	resp := doJSON(t, app, http.MethodPost, "/api/students", map[string]interface{}{
		"firstName": "Ana",
		"lastName":  "Lopez",
		"email":     "ana@x.io",
		"age":       20,
		"program":   "Computer Science",
		"term":      2,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Success bool                `json:"success"`
		Data    dto.StudentResponse `json:"data"`
	}
	decodeResponse(t, resp, &created)
	require.True(t, created.Success)
	require.Equal(t, 0.0, created.Data.GPA)
	require.True(t, created.Data.Active)

	path := fmt.Sprintf("/api/students/%d", created.Data.ID)
	resp = doJSON(t, app, http.MethodPut, path, map[string]interface{}{"gpa": 9.1})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var updated struct {
		Data dto.StudentResponse `json:"data"`
	}
	decodeResponse(t, resp, &updated)
	require.InDelta(t, 9.1, updated.Data.GPA, 0.0001)
	require.Equal(t, "Ana", updated.Data.FirstName)
	require.Equal(t, "ana@x.io", updated.Data.Email)

	resp = doJSON(t, app, http.MethodDelete, path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var deleted map[string]interface{}
	decodeResponse(t, resp, &deleted)
	require.Equal(t, true, deleted["success"])
	require.Contains(t, deleted, "data")
	require.Nil(t, deleted["data"])

	resp = doJSON(t, app, http.MethodGet, path, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestStudentHandlerCreateValidation(t *testing.T) {
	app := newStudentApp(t, newStudentService(t))

	resp := doJSON(t, app, http.MethodPost, "/api/students", map[string]interface{}{
		"firstName": "A",
		"lastName":  "Lopez",
		"email":     "bad",
		"age":       15,
		"program":   "Computer Science",
		"term":      2,
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Success bool     `json:"success"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)
	require.Len(t, payload.Errors, 3)

	req := httptest.NewRequest(http.MethodPost, "/api/students", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStudentHandlerConflictAndNotFound(t *testing.T) {
	app := newStudentApp(t, newStudentService(t))
	body := map[string]interface{}{
		"firstName": "Ana",
		"lastName":  "Lopez",
		"email":     "ana@x.io",
		"age":       20,
		"program":   "Computer Science",
		"term":      2,
	}

	require.Equal(t, fiber.StatusCreated, doJSON(t, app, http.MethodPost, "/api/students", body).StatusCode)
	require.Equal(t, fiber.StatusConflict, doJSON(t, app, http.MethodPost, "/api/students", body).StatusCode)

	require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodPut, "/api/students/999", map[string]interface{}{}).StatusCode)
	require.Equal(t, fiber.StatusNotFound, doJSON(t, app, http.MethodPut, "/api/students/999", map[string]interface{}{"term": 3}).StatusCode)
	require.Equal(t, fiber.StatusNotFound, doJSON(t, app, http.MethodDelete, "/api/students/999", nil).StatusCode)
	require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodGet, "/api/students/abc", nil).StatusCode)
}

func TestStudentHandlerRejectsMalformedIDs(t *testing.T) {
	app := newStudentApp(t, newStudentService(t))

	for _, path := range []string{"/api/students/abc", "/api/students/0", "/api/students/-3"} {
		require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodDelete, path, nil).StatusCode, path)
		require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodPut, path, map[string]interface{}{"term": 3}).StatusCode, path)
		require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodGet, path, nil).StatusCode, path)
	}
}

func TestStudentHandlerListQueryParsing(t *testing.T) {
	app := newStudentApp(t, newStudentService(t))

	require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodGet, "/api/students?page=x", nil).StatusCode)
	require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodGet, "/api/students?limit=ten", nil).StatusCode)
	require.Equal(t, fiber.StatusBadRequest, doJSON(t, app, http.MethodGet, "/api/students?active=maybe", nil).StatusCode)

	resp := doJSON(t, app, http.MethodGet, "/api/students?limit=1000&page=-2&active=true", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data  []dto.StudentResponse `json:"data"`
		Total int64                 `json:"total"`
		Page  int                   `json:"page"`
		Limit int                   `json:"limit"`
	}
	decodeResponse(t, resp, &payload)
	require.Empty(t, payload.Data)
	require.NotNil(t, payload.Data)
	require.Equal(t, 1, payload.Page)
	require.Equal(t, 100, payload.Limit)

	resp = doJSON(t, app, http.MethodGet, "/api/students", nil)
	decodeResponse(t, resp, &payload)
	require.Equal(t, 10, payload.Limit)
}

func TestStudentHandlerHidesInternalErrors(t *testing.T) {
	app := newStudentApp(t, failingStudentService{err: &service.InternalError{Op: "list", Err: errors.New("pq: connection refused")}})

	resp := doJSON(t, app, http.MethodGet, "/api/students", nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(body), "connection refused")
	require.Contains(t, string(body), "failed to list students")
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}
