package investments

import (
	"context"

	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// ListFilter narrows an investor's history. Rows come back newest first.
type ListFilter struct {
	Statuses []enums.InvestmentStatus
	BeforeID int64
	Limit    int
}

// Repository persists investments. Amounts are write-once; only status moves.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, investment *models.Investment) error
	FindByID(ctx context.Context, id int64) (*models.Investment, error)
	ListActiveByProject(ctx context.Context, projectID int64) ([]models.Investment, error)
	ListByUser(ctx context.Context, userID int64, filter ListFilter) ([]models.Investment, error)
	TransitionStatus(ctx context.Context, id int64, from, to enums.InvestmentStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds an investment repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, investment *models.Investment) error {
	return r.db.WithContext(ctx).Create(investment).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Investment, error) {
	var investment models.Investment
	if err := r.db.WithContext(ctx).First(&investment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &investment, nil
}

// ListActiveByProject returns the project's active investments ordered by
// owner then id, the order portfolios are locked in.
func (r *repository) ListActiveByProject(ctx context.Context, projectID int64) ([]models.Investment, error) {
	var rows []models.Investment
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, enums.InvestmentStatusActive).
		Order("user_id ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByUser(ctx context.Context, userID int64, filter ListFilter) ([]models.Investment, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.BeforeID > 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Investment
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id int64, from, to enums.InvestmentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Investment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
