package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResearchArticle struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Authors       datatypes.JSON `gorm:"column:authors;type:json" json:"authors"`
	PublishedDate time.Time      `gorm:"column:published_date" json:"published_date"`
	DOI           string         `gorm:"column:doi" json:"doi,omitempty"`
	Link          string         `gorm:"column:link" json:"link,omitempty"`
	Abstract      string         `gorm:"column:abstract" json:"abstract,omitempty"`
	Keywords      datatypes.JSON `gorm:"column:keywords;type:json" json:"keywords"`
	Tags          datatypes.JSON `gorm:"column:tags;type:json" json:"tags"`
	CitationCount int            `gorm:"column:citation_count;default:0" json:"citation_count"`
}

func (ResearchArticle) TableName() string { return "research_article" }
