package graphql

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/noah-isme/students-api/internal/dto"
	"github.com/noah-isme/students-api/internal/middleware"
	"github.com/noah-isme/students-api/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor runs GraphQL operations against the student service.
type Executor struct {
	schema   *ast.Schema
	students service.StudentService
	logger   zerolog.Logger
}

// NewExecutor creates an executor for the given schema and service.
func NewExecutor(schema *ast.Schema, students service.StudentService, logger zerolog.Logger) *Executor {
	return &Executor{
		schema:   schema,
		students: students,
		logger:   logger.With().Str("component", "graphql_executor").Logger(),
	}
}

// Execute parses, validates and runs a single operation.
func (e *Executor) Execute(ctx context.Context, req Request) (resp *Response) {
	if strings.TrimSpace(req.Query) == "" {
		return requestError("query is required")
	}

	doc, parseErrs := gqlparser.LoadQuery(e.schema, req.Query)
	if len(parseErrs) > 0 {
		return &Response{Errors: convertParseErrors(parseErrs)}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return requestError(err.Error())
	}

	var rootType string
	switch op.Operation {
	case ast.Query:
		rootType = "Query"
	case ast.Mutation:
		rootType = "Mutation"
	default:
		return requestError(fmt.Sprintf("%s operations are not supported", op.Operation))
	}

	vars, err := withVariableDefaults(op, req.Variables)
	if err != nil {
		return requestError(err.Error())
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error().Interface("panic", recovered).Msg("graphql execution panicked")
			resp = &Response{Errors: []Error{{
				Message:    "internal server error",
				Extensions: map[string]interface{}{"code": CodeInternal},
			}}}
		}
	}()

	data, errs := e.executeRoot(ctx, doc, rootType, op.SelectionSet, vars)
	return &Response{Data: data, Errors: errs}
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil, errors.New("operationName is required when the document has several operations")
		}
		return doc.Operations[0], nil
	}

	if op := doc.Operations.ForName(name); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("operation %q not found", name)
}

func withVariableDefaults(op *ast.OperationDefinition, variables map[string]interface{}) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(variables))
	for key, value := range variables {
		vars[key] = value
	}

	for _, def := range op.VariableDefinitions {
		if _, ok := vars[def.Variable]; ok || def.DefaultValue == nil {
			continue
		}
		value, err := def.DefaultValue.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("invalid default for $%s: %w", def.Variable, err)
		}
		vars[def.Variable] = value
	}

	return vars, nil
}

func (e *Executor) executeRoot(ctx context.Context, doc *ast.QueryDocument, rootType string, selections ast.SelectionSet, vars map[string]interface{}) (interface{}, []Error) {
	result := make(map[string]interface{})
	var errs []Error
	nullData := false

	for _, field := range collectFields(doc, selections, rootType, vars) {
		key := responseKey(field)

		if field.Name == "__typename" {
			result[key] = rootType
			continue
		}
		if strings.HasPrefix(field.Name, "__") {
			errs = append(errs, Error{
				Message:    "introspection is not supported",
				Path:       []interface{}{key},
				Extensions: map[string]interface{}{"code": CodeBadRequest},
			})
			result[key] = nil
			continue
		}

		value, err := e.resolveRoot(ctx, rootType, field, vars)
		if err != nil {
			errs = append(errs, e.toError(ctx, err, key))
			result[key] = nil
			if field.Definition != nil && field.Definition.Type.NonNull {
				nullData = true
			}
			continue
		}

		result[key] = complete(doc, field.SelectionSet, namedType(field), value, vars)
	}

	if nullData {
		return nil, errs
	}
	return result, errs
}

func (e *Executor) resolveRoot(ctx context.Context, rootType string, field *ast.Field, vars map[string]interface{}) (interface{}, error) {
	args := field.ArgumentMap(vars)

	switch rootType + "." + field.Name {
	case "Query.students":
		active, err := optionalBool(args, "active")
		if err != nil {
			return nil, err
		}
		page, err := optionalInt(args, "page", 1)
		if err != nil {
			return nil, err
		}
		limit, err := optionalInt(args, "limit", 10)
		if err != nil {
			return nil, err
		}

		list, err := e.students.List(ctx, dto.StudentListRequest{
			Page:    page,
			Limit:   limit,
			Search:  optionalString(args, "search"),
			Program: optionalString(args, "program"),
			Active:  active,
		})
		if err != nil {
			return nil, err
		}
		return studentPageValue(list), nil

	case "Query.student":
		id, err := idArgument(args)
		if err != nil {
			return nil, err
		}
		student, err := e.students.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return studentValue(student), nil

	case "Mutation.createStudent":
		var payload dto.CreateStudentRequest
		if err := decodeInput(args["input"], &payload); err != nil {
			return nil, err
		}
		student, err := e.students.Create(ctx, payload)
		if err != nil {
			return nil, err
		}
		return studentValue(student), nil

	case "Mutation.updateStudent":
		id, err := idArgument(args)
		if err != nil {
			return nil, err
		}
		var payload dto.UpdateStudentRequest
		if err := decodeInput(args["input"], &payload); err != nil {
			return nil, err
		}
		student, err := e.students.Update(ctx, id, payload)
		if err != nil {
			return nil, err
		}
		return studentValue(student), nil

	case "Mutation.deleteStudent":
		id, err := idArgument(args)
		if err != nil {
			return nil, err
		}
		if err := e.students.Delete(ctx, id); err != nil {
			return nil, err
		}
		return true, nil
	}

	return nil, fmt.Errorf("no resolver for %s.%s", rootType, field.Name)
}

func (e *Executor) toError(ctx context.Context, err error, key string) Error {
	gqlErr := Error{Path: []interface{}{key}}

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		gqlErr.Message = "validation failed"
		gqlErr.Extensions = map[string]interface{}{"code": CodeValidation, "errors": validationErr.Fields}
	case errors.Is(err, service.ErrNothingToUpdate):
		gqlErr.Message = "validation failed"
		gqlErr.Extensions = map[string]interface{}{"code": CodeValidation, "errors": []string{err.Error()}}
	case errors.Is(err, service.ErrStudentNotFound):
		gqlErr.Message = "student not found"
		gqlErr.Extensions = map[string]interface{}{"code": CodeNotFound}
	case errors.Is(err, service.ErrStudentConflict):
		gqlErr.Message = err.Error()
		gqlErr.Extensions = map[string]interface{}{"code": CodeConflict}
	default:
		e.logger.Error().
			Err(err).
			Str("field", key).
			Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
			Msg("graphql resolver failed")
		gqlErr.Message = "internal server error"
		gqlErr.Extensions = map[string]interface{}{"code": CodeInternal}
	}

	return gqlErr
}

// collectFields flattens fragments and honours @skip/@include for the given object type.
func collectFields(doc *ast.QueryDocument, selections ast.SelectionSet, typeName string, vars map[string]interface{}) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if included(s.Directives, vars) {
				fields = append(fields, s)
			}
		case *ast.InlineFragment:
			if included(s.Directives, vars) && typeMatches(s.TypeCondition, typeName) {
				fields = append(fields, collectFields(doc, s.SelectionSet, typeName, vars)...)
			}
		case *ast.FragmentSpread:
			if !included(s.Directives, vars) {
				continue
			}
			fragment := s.Definition
			if fragment == nil {
				fragment = doc.Fragments.ForName(s.Name)
			}
			if fragment != nil && typeMatches(fragment.TypeCondition, typeName) {
				fields = append(fields, collectFields(doc, fragment.SelectionSet, typeName, vars)...)
			}
		}
	}
	return fields
}

func included(directives ast.DirectiveList, vars map[string]interface{}) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if value, ok := skip.ArgumentMap(vars)["if"].(bool); ok && value {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if value, ok := include.ArgumentMap(vars)["if"].(bool); ok && !value {
			return false
		}
	}
	return true
}

func typeMatches(condition, typeName string) bool {
	return condition == "" || condition == typeName
}

func responseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func namedType(field *ast.Field) string {
	if field.Definition == nil || field.Definition.Type == nil {
		return ""
	}
	return field.Definition.Type.Name()
}

// complete projects a resolved value onto the requested selection set.
func complete(doc *ast.QueryDocument, selections ast.SelectionSet, typeName string, value interface{}, vars map[string]interface{}) interface{} {
	if len(selections) == 0 || value == nil {
		return value
	}

	switch v := value.(type) {
	case []map[string]interface{}:
		items := make([]interface{}, 0, len(v))
		for _, item := range v {
			items = append(items, complete(doc, selections, typeName, item, vars))
		}
		return items
	case map[string]interface{}:
		out := make(map[string]interface{})
		for _, field := range collectFields(doc, selections, typeName, vars) {
			key := responseKey(field)
			if field.Name == "__typename" {
				out[key] = typeName
				continue
			}
			out[key] = complete(doc, field.SelectionSet, namedType(field), v[field.Name], vars)
		}
		return out
	}

	return value
}

func studentValue(student dto.StudentResponse) map[string]interface{} {
	return map[string]interface{}{
		"id":           strconv.FormatUint(uint64(student.ID), 10),
		"firstName":    student.FirstName,
		"lastName":     student.LastName,
		"email":        student.Email,
		"age":          student.Age,
		"program":      student.Program,
		"term":         student.Term,
		"gpa":          student.GPA,
		"active":       student.Active,
		"registeredAt": student.RegisteredAt.UTC().Format(time.RFC3339),
		"updatedAt":    student.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func studentPageValue(page dto.StudentListResponse) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(page.Items))
	for _, student := range page.Items {
		items = append(items, studentValue(student))
	}

	return map[string]interface{}{
		"items": items,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	}
}

func decodeInput(input interface{}, target interface{}) error {
	if input == nil {
		return &service.ValidationError{Fields: []string{"input is required"}}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return &service.ValidationError{Fields: []string{"input is invalid"}}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &service.ValidationError{Fields: []string{"input is invalid"}}
	}
	return nil
}

func idArgument(args map[string]interface{}) (uint, error) {
	invalid := &service.ValidationError{Fields: []string{"id must be a positive integer"}}

	var raw string
	switch v := args["id"].(type) {
	case string:
		raw = v
	case nil:
		return 0, invalid
	default:
		raw = fmt.Sprint(v)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid
	}
	return uint(id), nil
}

func optionalInt(args map[string]interface{}, name string, fallback int) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return fallback, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case jsoniter.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, &service.ValidationError{Fields: []string{name + " must be an integer"}}
}

func optionalBool(args map[string]interface{}, name string) (*bool, error) {
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case bool:
		return &v, nil
	}
	return nil, &service.ValidationError{Fields: []string{name + " must be a boolean"}}
}

func optionalString(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func convertParseErrors(list gqlerror.List) []Error {
	errs := make([]Error, 0, len(list))
	for _, parseErr := range list {
		converted := Error{
			Message:    parseErr.Message,
			Extensions: map[string]interface{}{"code": CodeBadRequest},
		}
		for _, loc := range parseErr.Locations {
			converted.Locations = append(converted.Locations, Location{Line: loc.Line, Column: loc.Column})
		}
		errs = append(errs, converted)
	}
	return errs
}
