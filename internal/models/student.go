package models

import "time"

// Student is a learner enrolled in a program. Columns carry both gorm tags
// (migrations) and db tags (sqlx scanning).
type Student struct {
	ID           uint      `gorm:"primaryKey" db:"id" json:"id"`
	FirstName    string    `gorm:"size:100;not null" db:"first_name" json:"firstName"`
	LastName     string    `gorm:"size:100;not null" db:"last_name" json:"lastName"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" db:"email" json:"email"`
	Age          int       `gorm:"not null" db:"age" json:"age"`
	Program      string    `gorm:"size:100;not null;index" db:"program" json:"program"`
	Term         int       `gorm:"not null" db:"term" json:"term"`
	GPA          float64   `gorm:"not null;default:0" db:"gpa" json:"gpa"`
	Active       bool      `gorm:"not null;default:true;index" db:"active" json:"active"`
	RegisteredAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" db:"registered_at" json:"registeredAt"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" db:"updated_at" json:"updatedAt"`
}

// TableName pins the table name shared by gorm migrations and the SQL builders.
func (Student) TableName() string {
	return "students"
}
