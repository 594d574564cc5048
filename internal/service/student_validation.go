package service

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/students-api/internal/dto"
)

// ValidationError lists every field that failed validation, one message per field.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

var studentFieldRules = map[string]string{
	"firstName": "must be between 2 and 100 characters",
	"lastName":  "must be between 2 and 100 characters",
	"email":     "must be a valid email address",
	"age":       "must be between 16 and 65",
	"program":   "must be between 5 and 100 characters",
	"term":      "must be between 1 and 10",
	"gpa":       "must be between 0.0 and 10.0",
}

// studentFieldOrder is the declaration order violations are reported in.
var studentFieldOrder = []string{"firstName", "lastName", "email", "age", "program", "term", "gpa", "active"}

// StudentValidator checks student payloads before they reach the store.
type StudentValidator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

// NewStudentValidator configures validate to report JSON field names.
func NewStudentValidator(validate *validator.Validate) *StudentValidator {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	validate.RegisterTagNameFunc(jsonFieldName)

	return &StudentValidator{
		validate:  validate,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// ValidateCreate trims surrounding whitespace from the text fields of payload
// and returns a *ValidationError on violation. Values are otherwise kept as sent.
func (v *StudentValidator) ValidateCreate(payload *dto.CreateStudentRequest) error {
	payload.FirstName = strings.TrimSpace(payload.FirstName)
	payload.LastName = strings.TrimSpace(payload.LastName)
	payload.Program = strings.TrimSpace(payload.Program)
	payload.Email = strings.TrimSpace(payload.Email)

	markup := v.markupFields(map[string]*string{
		"firstName": &payload.FirstName,
		"lastName":  &payload.LastName,
		"program":   &payload.Program,
	})
	return v.check(payload, markup)
}

// ValidateUpdate trims the present text fields of payload and validates only those.
func (v *StudentValidator) ValidateUpdate(payload *dto.UpdateStudentRequest) error {
	payload.FirstName = trimPtr(payload.FirstName)
	payload.LastName = trimPtr(payload.LastName)
	payload.Program = trimPtr(payload.Program)
	payload.Email = trimPtr(payload.Email)

	markup := v.markupFields(map[string]*string{
		"firstName": payload.FirstName,
		"lastName":  payload.LastName,
		"program":   payload.Program,
	})
	return v.check(payload, markup)
}

// markupFields reports the fields whose value the strict policy would alter,
// i.e. values carrying tags or tag fragments.
func (v *StudentValidator) markupFields(fields map[string]*string) map[string]bool {
	flagged := make(map[string]bool)
	for name, value := range fields {
		if value == nil || *value == "" {
			continue
		}
		if html.UnescapeString(v.sanitizer.Sanitize(*value)) != *value {
			flagged[name] = true
		}
	}
	return flagged
}

func (v *StudentValidator) check(payload interface{}, markup map[string]bool) error {
	byField := make(map[string]string, len(markup))
	for field := range markup {
		byField[field] = fmt.Sprintf("%s must not contain markup", field)
	}

	if err := v.validate.Struct(payload); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return &ValidationError{Fields: []string{"payload is invalid"}}
		}
		for _, fieldErr := range fieldErrors {
			if _, seen := byField[fieldErr.Field()]; !seen {
				byField[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}

	if len(byField) == 0 {
		return nil
	}

	messages := make([]string, 0, len(byField))
	for _, field := range studentFieldOrder {
		if message, ok := byField[field]; ok {
			messages = append(messages, message)
			delete(byField, field)
		}
	}
	for _, message := range byField {
		messages = append(messages, message)
	}
	return &ValidationError{Fields: messages}
}

func fieldMessage(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	if fieldErr.Tag() == "required" {
		return fmt.Sprintf("%s is required", field)
	}
	if rule, ok := studentFieldRules[field]; ok {
		return fmt.Sprintf("%s %s", field, rule)
	}
	return fmt.Sprintf("%s is invalid", field)
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}
