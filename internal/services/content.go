package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/thumbs"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

// ResourceRef addresses a resource by id, filename or url; first non-empty
// field wins.
type ResourceRef struct {
	ID       uuid.UUID
	Filename string
	URL      string
}

// MetadataPatch carries the user-editable fields. Nil means "leave as is".
type MetadataPatch struct {
	Title       *string
	Description *string
	Tags        []string
}

// ContentService is the single writer for resource records and their
// thumbnail files.
type ContentService struct {
	db        *gorm.DB
	log       *logger.Logger
	resources repos.ResourceRepo
	blobs     storage.BlobStore
	thumbs    *thumbs.Generator

	thumbGroup singleflight.Group
}

func NewContentService(db *gorm.DB, baseLog *logger.Logger, resources repos.ResourceRepo, blobs storage.BlobStore, gen *thumbs.Generator) *ContentService {
	return &ContentService{
		db:        db,
		log:       baseLog.With("service", "ContentService"),
		resources: resources,
		blobs:     blobs,
		thumbs:    gen,
	}
}

// ListResources returns the catalog, filtered by tag when given. Listing a
// pdf/video resource without a thumbnail generates one as a side effect;
// generation failures degrade to a missing thumbnail, never an error.
func (s *ContentService) ListResources(ctx context.Context, tag string) ([]*types.Resource, error) {
	out, err := s.resources.List(ctx, nil, tag)
	if err != nil {
		return nil, err
	}
	for _, res := range out {
		if !needsThumbnail(res) {
			continue
		}
		url, err := s.EnsureThumbnail(ctx, res)
		if err != nil {
			s.log.Warn("Thumbnail generation failed", "resource_id", res.ID, "error", err)
			continue
		}
		res.ThumbnailURL = &url
	}
	return out, nil
}

func (s *ContentService) GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error) {
	return s.resources.GetByID(ctx, nil, id)
}

func (s *ContentService) FindResource(ctx context.Context, ref ResourceRef) (*types.Resource, error) {
	if ref.ID != uuid.Nil {
		return s.resources.GetByID(ctx, nil, ref.ID)
	}
	return s.resources.GetByFilenameOrURL(ctx, nil, ref.Filename, ref.URL)
}

// CreateResource inserts a fully formed record, assigning id and upload
// time when absent.
func (s *ContentService) CreateResource(ctx context.Context, res *types.Resource) (*types.Resource, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.UploadedAt.IsZero() {
		res.UploadedAt = time.Now().UTC()
	}
	if len(res.Tags) == 0 {
		res.Tags = encodeTags(nil)
	}
	created, err := s.resources.Create(ctx, nil, []*types.Resource{res})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// UpsertResource reconciles an incoming record with whatever row already
// exists for the same id or filename/url pair. Existing rows are merged
// field by field; absent incoming fields never clobber stored values.
func (s *ContentService) UpsertResource(ctx context.Context, res *types.Resource) (*types.Resource, error) {
	existing, err := s.FindResource(ctx, ResourceRef{ID: res.ID, Filename: res.Filename, URL: res.URL})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.CreateResource(ctx, res)
	}

	updates := map[string]interface{}{}
	if strings.TrimSpace(res.Title) != "" {
		updates["title"] = res.Title
	}
	if res.Filename != "" {
		updates["filename"] = res.Filename
	}
	if res.Ext != "" {
		updates["ext"] = res.Ext
	}
	if res.URL != "" {
		updates["url"] = res.URL
	}
	if res.Kind != "" {
		updates["kind"] = res.Kind
	}
	if res.StorageKey != "" {
		updates["storage_key"] = res.StorageKey
	}
	if len(res.Tags) > 0 {
		updates["tags"] = res.Tags
	}
	if res.Description != "" {
		updates["description"] = res.Description
	}
	if !res.UploadedAt.IsZero() {
		updates["uploaded_at"] = res.UploadedAt
	}
	if res.ThumbnailURL != nil {
		updates["thumbnail_url"] = *res.ThumbnailURL
	}
	if res.KnowledgeURL != nil {
		updates["knowledge_url"] = *res.KnowledgeURL
	}
	if res.KnowledgeHash != nil {
		updates["knowledge_hash"] = *res.KnowledgeHash
	}
	if res.KnowledgeJobType != nil {
		updates["knowledge_job_type"] = *res.KnowledgeJobType
	}
	if len(updates) > 0 {
		if err := s.resources.UpdateFields(ctx, nil, existing.ID, updates); err != nil {
			return nil, err
		}
	}
	return s.resources.GetByID(ctx, nil, existing.ID)
}

// UpdateMetadata merges the patch into the referenced resource. Fields not
// present in the patch are untouched.
func (s *ContentService) UpdateMetadata(ctx context.Context, ref ResourceRef, patch MetadataPatch) (*types.Resource, error) {
	res, err := s.FindResource(ctx, ref)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	updates := map[string]interface{}{}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) != "" {
		updates["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Tags != nil {
		updates["tags"] = encodeTags(patch.Tags)
	}
	if len(updates) > 0 {
		if err := s.resources.UpdateFields(ctx, nil, res.ID, updates); err != nil {
			return nil, err
		}
	}
	return s.resources.GetByID(ctx, nil, res.ID)
}

// DeleteResource removes the record plus its stored file and thumbnail.
// Blob removal failures are logged, not fatal: the metadata row is the
// source of truth for visibility.
func (s *ContentService) DeleteResource(ctx context.Context, ref ResourceRef) (bool, error) {
	res, err := s.FindResource(ctx, ref)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}
	if res.StorageKey != "" {
		if err := s.blobs.Delete(ctx, res.StorageKey); err != nil {
			s.log.Warn("Could not delete stored file", "resource_id", res.ID, "key", res.StorageKey, "error", err)
		}
	}
	if err := s.blobs.Delete(ctx, thumbnailKey(res.ID)); err != nil {
		s.log.Warn("Could not delete thumbnail", "resource_id", res.ID, "error", err)
	}
	return s.resources.DeleteByID(ctx, nil, res.ID)
}

func needsThumbnail(res *types.Resource) bool {
	if res == nil {
		return false
	}
	if res.Kind != types.ResourceKindPDF && res.Kind != types.ResourceKindVideo {
		return false
	}
	return res.ThumbnailURL == nil || strings.TrimSpace(*res.ThumbnailURL) == ""
}

func thumbnailKey(id uuid.UUID) string {
	return fmt.Sprintf("thumbnails/%s.jpg", id)
}

// EnsureThumbnail generates and persists the card for one resource.
// Deduped per resource id so concurrent callers do not race; the write is
// overwrite-if-exists, making the whole operation idempotent.
func (s *ContentService) EnsureThumbnail(ctx context.Context, res *types.Resource) (string, error) {
	v, err, _ := s.thumbGroup.Do(res.ID.String(), func() (interface{}, error) {
		raw, err := s.thumbs.Generate(res.ID.String(), res.Title, string(res.Kind))
		if err != nil {
			return nil, err
		}
		key := thumbnailKey(res.ID)
		if err := s.blobs.Save(ctx, key, bytes.NewReader(raw)); err != nil {
			return nil, err
		}
		url := s.blobs.PublicURL(key)
		if err := s.resources.UpdateFields(ctx, nil, res.ID, map[string]interface{}{
			"thumbnail_url": url,
		}); err != nil {
			return nil, err
		}
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
