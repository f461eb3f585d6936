package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type ResourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, resources []*types.Resource) ([]*types.Resource, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Resource, error)
	GetByFilenameOrURL(ctx context.Context, tx *gorm.DB, filename, url string) (*types.Resource, error)
	List(ctx context.Context, tx *gorm.DB, tag string) ([]*types.Resource, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// LinkKnowledge applies updates only if the row still carries the
	// observed knowledge_url/knowledge_hash pair; reports whether the row
	// was changed. Keeps concurrent reconcile passes from double-linking.
	LinkKnowledge(ctx context.Context, tx *gorm.DB, id uuid.UUID, observedURL, observedHash *string, updates map[string]interface{}) (bool, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) Create(ctx context.Context, tx *gorm.DB, resources []*types.Resource) ([]*types.Resource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resources) == 0 {
		return []*types.Resource{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *resourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Resource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var res types.Resource
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == uuid.Nil {
		return nil, nil
	}
	return &res, nil
}

func (r *resourceRepo) GetByFilenameOrURL(ctx context.Context, tx *gorm.DB, filename, url string) (*types.Resource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	filename = strings.TrimSpace(filename)
	url = strings.TrimSpace(url)
	if filename == "" && url == "" {
		return nil, nil
	}
	q := transaction.WithContext(ctx)
	switch {
	case filename != "" && url != "":
		q = q.Where("filename = ? OR url = ?", filename, url)
	case filename != "":
		q = q.Where("filename = ?", filename)
	default:
		q = q.Where("url = ?", url)
	}
	var res types.Resource
	if err := q.Limit(1).Find(&res).Error; err != nil {
		return nil, err
	}
	if res.ID == uuid.Nil {
		return nil, nil
	}
	return &res, nil
}

func (r *resourceRepo) List(ctx context.Context, tx *gorm.DB, tag string) ([]*types.Resource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx)
	if tag = strings.TrimSpace(tag); tag != "" {
		// Tags live in a JSON array column; substring match over its text
		// mirrors the case-insensitive tag regex of the original catalog.
		q = q.Where("LOWER(tags) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}
	var out []*types.Resource
	if err := q.Order("uploaded_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resourceRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).Model(&types.Resource{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *resourceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.Resource{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *resourceRepo) LinkKnowledge(ctx context.Context, tx *gorm.DB, id uuid.UUID, observedURL, observedHash *string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()

	q := transaction.WithContext(ctx).
		Model(&types.Resource{}).
		Where("id = ?", id)
	if observedURL == nil {
		q = q.Where("knowledge_url IS NULL")
	} else {
		q = q.Where("knowledge_url = ?", *observedURL)
	}
	if observedHash == nil {
		q = q.Where("knowledge_hash IS NULL")
	} else {
		q = q.Where("knowledge_hash = ?", *observedHash)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *resourceRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Resource{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
