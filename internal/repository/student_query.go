package repository

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
)

const (
	studentsTable = "students"

	colID           = "id"
	colFirstName    = "first_name"
	colLastName     = "last_name"
	colEmail        = "email"
	colAge          = "age"
	colProgram      = "program"
	colTerm         = "term"
	colGPA          = "gpa"
	colActive       = "active"
	colRegisteredAt = "registered_at"
	colUpdatedAt    = "updated_at"

	// DefaultPage is used when no page is requested.
	DefaultPage = 1
	// DefaultLimit is used when no page size is requested.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 100
)

var (
	// ErrNothingToUpdate is returned when an update payload carries no fields.
	ErrNothingToUpdate = errors.New("no fields to update")
	// ErrBuildingQuery wraps failures of the SQL builder.
	ErrBuildingQuery = errors.New("building query failed")

	studentColumns = []interface{}{
		colID, colFirstName, colLastName, colEmail, colAge, colProgram,
		colTerm, colGPA, colActive, colRegisteredAt, colUpdatedAt,
	}
)

// Statement is placeholder-bearing SQL together with its bound arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

// StudentFilter narrows student list queries.
type StudentFilter struct {
	Page    int
	Limit   int
	Search  string
	Program string
	Active  *bool
}

// Normalize clamps page and limit into their valid ranges.
func (f StudentFilter) Normalize() StudentFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 1
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the number of rows skipped before the page window.
func (f StudentFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.Limit
}

// Change is one column assignment of a partial update.
type Change struct {
	Column string
	Value  interface{}
}

// ChangeSet is the ordered list of columns a partial update writes.
type ChangeSet []Change

// Columns returns the names of the changed columns.
func (c ChangeSet) Columns() []string {
	columns := make([]string, 0, len(c))
	for _, change := range c {
		columns = append(columns, change.Column)
	}
	return columns
}

// ChangeSetFromTagged collects every non-nil pointer field of payload that
// carries a db tag. Nil pointers mean "absent" and are skipped.
func ChangeSetFromTagged(payload interface{}) ChangeSet {
	value := reflect.Indirect(reflect.ValueOf(payload))
	if value.Kind() != reflect.Struct {
		return nil
	}

	changes := make(ChangeSet, 0, value.NumField())
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		column := strings.Split(typ.Field(i).Tag.Get("db"), ",")[0]
		if column == "" || column == "-" {
			continue
		}
		field := value.Field(i)
		if field.Kind() != reflect.Ptr || field.IsNil() {
			continue
		}
		changes = append(changes, Change{Column: column, Value: field.Elem().Interface()})
	}
	return changes
}

// StudentRecord holds the column values written on insert.
type StudentRecord struct {
	FirstName string
	LastName  string
	Email     string
	Age       int
	Program   string
	Term      int
	GPA       float64
	Active    bool
}

// StudentQueries compiles student statements for one SQL dialect. Every value
// ends up in Statement.Args; the SQL text only holds placeholders.
type StudentQueries struct {
	dialect   goqu.DialectWrapper
	returning bool
}

// NewStudentQueries builds a compiler for the given goqu dialect ("postgres" or "sqlite3").
func NewStudentQueries(dialect string) StudentQueries {
	return StudentQueries{
		dialect:   goqu.Dialect(dialect),
		returning: dialect == "postgres",
	}
}

// SupportsReturning reports whether inserts hand back the new id via RETURNING.
func (q StudentQueries) SupportsReturning() bool {
	return q.returning
}

func (q StudentQueries) filterExpressions(filter StudentFilter) []exp.Expression {
	expressions := make([]exp.Expression, 0, 3)

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		expressions = append(expressions, goqu.Or(
			goqu.C(colFirstName).ILike(pattern),
			goqu.C(colLastName).ILike(pattern),
		))
	}

	if program := strings.TrimSpace(filter.Program); program != "" {
		expressions = append(expressions, goqu.C(colProgram).Eq(goqu.V(program)))
	}

	if filter.Active != nil {
		expressions = append(expressions, goqu.C(colActive).Eq(goqu.V(*filter.Active)))
	}

	return expressions
}

// List compiles the windowed list query and the count query over the same predicate.
func (q StudentQueries) List(filter StudentFilter) (list Statement, count Statement, err error) {
	filter = filter.Normalize()
	where := q.filterExpressions(filter)

	listStmt := q.dialect.From(studentsTable).
		Prepared(true).
		Select(studentColumns...).
		Where(where...).
		Order(goqu.C(colRegisteredAt).Desc(), goqu.C(colID).Desc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset()))

	countStmt := q.dialect.From(studentsTable).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...)

	if list, err = toStatement(listStmt); err != nil {
		return Statement{}, Statement{}, err
	}
	if count, err = toStatement(countStmt); err != nil {
		return Statement{}, Statement{}, err
	}
	return list, count, nil
}

// GetByID compiles a primary key lookup.
func (q StudentQueries) GetByID(id uint) (Statement, error) {
	return toStatement(q.dialect.From(studentsTable).
		Prepared(true).
		Select(studentColumns...).
		Where(goqu.C(colID).Eq(goqu.V(id))).
		Limit(1))
}

// Exists compiles a primary-key existence check.
func (q StudentQueries) Exists(id uint) (Statement, error) {
	return toStatement(q.dialect.From(studentsTable).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C(colID).Eq(goqu.V(id))))
}

// Insert compiles the insert statement. On dialects with RETURNING the new id
// is selected back by the same statement.
func (q StudentQueries) Insert(record StudentRecord) (Statement, error) {
	insert := q.dialect.Insert(studentsTable).
		Prepared(true).
		Rows(goqu.Record{
			colFirstName: record.FirstName,
			colLastName:  record.LastName,
			colEmail:     record.Email,
			colAge:       record.Age,
			colProgram:   record.Program,
			colTerm:      record.Term,
			colGPA:       record.GPA,
			colActive:    record.Active,
		})
	if q.returning {
		insert = insert.Returning(colID)
	}
	return toStatement(insert)
}

// Update compiles a partial update touching only the columns in changes.
// updated_at is always refreshed by the store clock.
func (q StudentQueries) Update(id uint, changes ChangeSet) (Statement, error) {
	if len(changes) == 0 {
		return Statement{}, ErrNothingToUpdate
	}

	record := goqu.Record{colUpdatedAt: goqu.L("CURRENT_TIMESTAMP")}
	for _, change := range changes {
		if change.Column == colID || change.Column == colRegisteredAt || change.Column == colUpdatedAt {
			return Statement{}, fmt.Errorf("%w: column %q is not updatable", ErrBuildingQuery, change.Column)
		}
		record[change.Column] = change.Value
	}

	return toStatement(q.dialect.Update(studentsTable).
		Prepared(true).
		Set(record).
		Where(goqu.C(colID).Eq(goqu.V(id))))
}

// Delete compiles a hard delete by primary key.
func (q StudentQueries) Delete(id uint) (Statement, error) {
	return toStatement(q.dialect.Delete(studentsTable).
		Prepared(true).
		Where(goqu.C(colID).Eq(goqu.V(id))))
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func toStatement(builder sqlBuilder) (Statement, error) {
	query, args, err := builder.ToSQL()
	if err != nil {
		return Statement{}, errors.Join(ErrBuildingQuery, err)
	}
	return Statement{SQL: query, Args: args}, nil
}
