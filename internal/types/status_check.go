package types

import (
	"time"

	"github.com/google/uuid"
)

type StatusCheck struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientName string    `gorm:"column:client_name;not null" json:"client_name"`
	Timestamp  time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (StatusCheck) TableName() string { return "status_check" }
