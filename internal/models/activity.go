package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable mutations of student records.
type ActivityLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Action        string            `gorm:"size:64;not null;index" json:"action"`
	EntityType    string            `gorm:"size:64;not null;index" json:"entity_type"`
	EntityID      *uint             `json:"entity_id"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
