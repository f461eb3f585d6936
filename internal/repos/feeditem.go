package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type FeedItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.FeedItem) ([]*types.FeedItem, error)
	List(ctx context.Context, tx *gorm.DB, tag string) ([]*types.FeedItem, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type feedItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedItemRepo(db *gorm.DB, baseLog *logger.Logger) FeedItemRepo {
	return &feedItemRepo{db: db, log: baseLog.With("repo", "FeedItemRepo")}
}

func (r *feedItemRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.FeedItem) ([]*types.FeedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.FeedItem{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *feedItemRepo) List(ctx context.Context, tx *gorm.DB, tag string) ([]*types.FeedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx)
	if tag = strings.TrimSpace(tag); tag != "" {
		q = q.Where("LOWER(tags) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}
	var out []*types.FeedItem
	if err := q.Order("published_at DESC").Limit(100).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *feedItemRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).Model(&types.FeedItem{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
