package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FeedItem struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type        string         `gorm:"column:type;not null" json:"type"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Summary     string         `gorm:"column:summary" json:"summary"`
	URL         string         `gorm:"column:url" json:"url"`
	Tags        datatypes.JSON `gorm:"column:tags;type:json" json:"tags"`
	PublishedAt time.Time      `gorm:"column:published_at;not null" json:"published_at"`
	Source      string         `gorm:"column:source" json:"source,omitempty"`
}

func (FeedItem) TableName() string { return "feed_item" }
