package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type StatusCheckRepo interface {
	Create(ctx context.Context, tx *gorm.DB, check *types.StatusCheck) (*types.StatusCheck, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.StatusCheck, error)
}

type statusCheckRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatusCheckRepo(db *gorm.DB, baseLog *logger.Logger) StatusCheckRepo {
	return &statusCheckRepo{db: db, log: baseLog.With("repo", "StatusCheckRepo")}
}

func (r *statusCheckRepo) Create(ctx context.Context, tx *gorm.DB, check *types.StatusCheck) (*types.StatusCheck, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if check == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(check).Error; err != nil {
		return nil, err
	}
	return check, nil
}

func (r *statusCheckRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.StatusCheck, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StatusCheck
	if err := transaction.WithContext(ctx).
		Order("timestamp DESC").
		Limit(100).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
