package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type ArticleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, articles []*types.ResearchArticle) ([]*types.ResearchArticle, error)
	List(ctx context.Context, tx *gorm.DB, tag, sortBy string) ([]*types.ResearchArticle, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type articleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArticleRepo(db *gorm.DB, baseLog *logger.Logger) ArticleRepo {
	return &articleRepo{db: db, log: baseLog.With("repo", "ArticleRepo")}
}

func (r *articleRepo) Create(ctx context.Context, tx *gorm.DB, articles []*types.ResearchArticle) ([]*types.ResearchArticle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(articles) == 0 {
		return []*types.ResearchArticle{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (r *articleRepo) List(ctx context.Context, tx *gorm.DB, tag, sortBy string) ([]*types.ResearchArticle, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx)
	if tag = strings.TrimSpace(tag); tag != "" {
		q = q.Where("LOWER(tags) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}
	switch sortBy {
	case "citations":
		q = q.Order("citation_count DESC")
	default:
		q = q.Order("published_date DESC")
	}
	var out []*types.ResearchArticle
	if err := q.Limit(100).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *articleRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).Model(&types.ResearchArticle{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
