package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResourceKind string

const (
	ResourceKindPDF   ResourceKind = "pdf"
	ResourceKindVideo ResourceKind = "video"
	ResourceKindAudio ResourceKind = "audio"
	ResourceKindOther ResourceKind = "other"
)

// Resource is an uploaded or externally linked artifact. KnowledgeURL,
// KnowledgeHash and KnowledgeJobType are maintained by the upload pipeline
// and the reconciler; KnowledgeHash, when set, is the SHA-256 of the bytes
// behind KnowledgeURL.
type Resource struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	Filename         string         `gorm:"column:filename;index" json:"filename,omitempty"`
	Ext              string         `gorm:"column:ext" json:"ext,omitempty"`
	URL              string         `gorm:"column:url;index" json:"url"`
	Kind             ResourceKind   `gorm:"column:kind;not null;default:'other'" json:"kind"`
	StorageKey       string         `gorm:"column:storage_key" json:"storage_key,omitempty"`
	Tags             datatypes.JSON `gorm:"column:tags;type:json" json:"tags"`
	Description      string         `gorm:"column:description" json:"description,omitempty"`
	UploadedAt       time.Time      `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
	ThumbnailURL     *string        `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	KnowledgeURL     *string        `gorm:"column:knowledge_url" json:"knowledge_url,omitempty"`
	KnowledgeHash    *string        `gorm:"column:knowledge_hash" json:"knowledge_hash,omitempty"`
	KnowledgeJobType *string        `gorm:"column:knowledge_job_type" json:"knowledge_job_type,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Resource) TableName() string { return "resource" }

// KindForExt maps a file extension (with or without leading dot) to the
// resource kind used for storage layout and thumbnail decisions.
func KindForExt(ext string) ResourceKind {
	switch normalizeExt(ext) {
	case "pdf":
		return ResourceKindPDF
	case "mp4", "mov", "webm", "m4v", "mpeg", "mpg", "avi", "mkv":
		return ResourceKindVideo
	case "mp3", "m4a", "wav", "flac", "aac", "ogg", "opus":
		return ResourceKindAudio
	default:
		return ResourceKindOther
	}
}

func normalizeExt(ext string) string {
	for len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	out := make([]byte, len(ext))
	for i := 0; i < len(ext); i++ {
		c := ext[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
