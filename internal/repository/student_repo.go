package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/students-api/internal/models"
)

var (
	// ErrStudentNotFound is returned when no student row matches the id.
	ErrStudentNotFound = errors.New("student not found")
	// ErrDuplicateEmail is returned when a write collides with the unique email index.
	ErrDuplicateEmail = errors.New("student email already exists")
)

// StudentRepository provides access to student records.
type StudentRepository interface {
	List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error)
	GetByID(ctx context.Context, id uint) (models.Student, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, record StudentRecord) (uint, error)
	Update(ctx context.Context, id uint, changes ChangeSet) error
	Delete(ctx context.Context, id uint) error
}

type studentRepository struct {
	store   Store
	queries StudentQueries
}

// NewStudentRepository constructs a student repository over the given store and SQL dialect.
func NewStudentRepository(store Store, dialect string) StudentRepository {
	return &studentRepository{store: store, queries: NewStudentQueries(dialect)}
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error) {
	listStmt, countStmt, err := r.queries.List(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.store.GetContext(ctx, &total, countStmt.SQL, countStmt.Args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	students := make([]models.Student, 0)
	if err := r.store.SelectContext(ctx, &students, listStmt.SQL, listStmt.Args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	return students, total, nil
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	stmt, err := r.queries.GetByID(id)
	if err != nil {
		return models.Student{}, err
	}

	var student models.Student
	if err := r.store.GetContext(ctx, &student, stmt.SQL, stmt.Args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Student{}, ErrStudentNotFound
		}
		return models.Student{}, fmt.Errorf("get student %d: %w", id, err)
	}

	return student, nil
}

func (r *studentRepository) Exists(ctx context.Context, id uint) (bool, error) {
	stmt, err := r.queries.Exists(id)
	if err != nil {
		return false, err
	}

	var count int64
	if err := r.store.GetContext(ctx, &count, stmt.SQL, stmt.Args...); err != nil {
		return false, fmt.Errorf("check student %d: %w", id, err)
	}

	return count > 0, nil
}

func (r *studentRepository) Create(ctx context.Context, record StudentRecord) (uint, error) {
	stmt, err := r.queries.Insert(record)
	if err != nil {
		return 0, err
	}

	if r.queries.SupportsReturning() {
		var id uint
		if err := r.store.GetContext(ctx, &id, stmt.SQL, stmt.Args...); err != nil {
			return 0, classifyWriteError("insert student", err)
		}
		return id, nil
	}

	result, err := r.store.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, classifyWriteError("insert student", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted student id: %w", err)
	}

	return uint(id), nil
}

func (r *studentRepository) Update(ctx context.Context, id uint, changes ChangeSet) error {
	stmt, err := r.queries.Update(id, changes)
	if err != nil {
		return err
	}

	result, err := r.store.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return classifyWriteError(fmt.Sprintf("update student %d", id), err)
	}

	return requireAffected(result, id)
}

func (r *studentRepository) Delete(ctx context.Context, id uint) error {
	stmt, err := r.queries.Delete(id)
	if err != nil {
		return err
	}

	result, err := r.store.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("delete student %d: %w", id, err)
	}

	return requireAffected(result, id)
}

func classifyWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(result sql.Result, id uint) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows for student %d: %w", id, err)
	}
	if affected == 0 {
		return ErrStudentNotFound
	}
	return nil
}
