package dto

import (
	"time"

	"github.com/noah-isme/students-api/internal/models"
)

// StudentListRequest carries the optional list parameters accepted by the API.
type StudentListRequest struct {
	Page    int
	Limit   int
	Search  string
	Program string
	Active  *bool
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	FirstName string   `json:"firstName" validate:"required,min=2,max=100"`
	LastName  string   `json:"lastName" validate:"required,min=2,max=100"`
	Email     string   `json:"email" validate:"required,email"`
	Age       int      `json:"age" validate:"required,gte=16,lte=65"`
	Program   string   `json:"program" validate:"required,min=5,max=100"`
	Term      int      `json:"term" validate:"required,gte=1,lte=10"`
	GPA       *float64 `json:"gpa" validate:"omitempty,gte=0,lte=10"`
	Active    *bool    `json:"active"`
}

// UpdateStudentRequest captures partial updates. A nil field is left untouched;
// the db tag names the column a present field writes to.
type UpdateStudentRequest struct {
	FirstName *string  `json:"firstName" db:"first_name" validate:"omitempty,min=2,max=100"`
	LastName  *string  `json:"lastName" db:"last_name" validate:"omitempty,min=2,max=100"`
	Email     *string  `json:"email" db:"email" validate:"omitempty,email"`
	Age       *int     `json:"age" db:"age" validate:"omitempty,gte=16,lte=65"`
	Program   *string  `json:"program" db:"program" validate:"omitempty,min=5,max=100"`
	Term      *int     `json:"term" db:"term" validate:"omitempty,gte=1,lte=10"`
	GPA       *float64 `json:"gpa" db:"gpa" validate:"omitempty,gte=0,lte=10"`
	Active    *bool    `json:"active" db:"active"`
}

// StudentResponse serializes a student record.
type StudentResponse struct {
	ID           uint      `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	Program      string    `json:"program"`
	Term         int       `json:"term"`
	GPA          float64   `json:"gpa"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StudentListResponse is a page of students plus the total matching the same filters.
type StudentListResponse struct {
	Items []StudentResponse `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// NewStudentResponse converts a student model into a DTO.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:           student.ID,
		FirstName:    student.FirstName,
		LastName:     student.LastName,
		Email:        student.Email,
		Age:          student.Age,
		Program:      student.Program,
		Term:         student.Term,
		GPA:          student.GPA,
		Active:       student.Active,
		RegisteredAt: student.RegisteredAt,
		UpdatedAt:    student.UpdatedAt,
	}
}

// NewStudentResponseSlice converts models into DTOs, never returning nil.
func NewStudentResponseSlice(students []models.Student) []StudentResponse {
	responses := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, NewStudentResponse(student))
	}
	return responses
}
