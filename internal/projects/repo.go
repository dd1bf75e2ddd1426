package projects

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// ListFilter narrows project listings. Rows come back newest first.
type ListFilter struct {
	Statuses []enums.ProjectStatus
	BeforeID int64
	Limit    int
}

// Repository persists projects. Funding and status changes are guarded
// UPDATEs; a false result means the guard rejected the row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id int64) (*models.Project, error)
	LockByID(ctx context.Context, id int64) (*models.Project, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
	List(ctx context.Context, filter ListFilter) ([]models.Project, error)
	AddFunding(ctx context.Context, id int64, amount decimal.Decimal) (bool, error)
	TransitionStatus(ctx context.Context, id int64, from []enums.ProjectStatus, to enums.ProjectStatus) (bool, error)
	MarkSold(ctx context.Context, id int64, salePrice decimal.Decimal, soldAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a project repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// LockByID reads the project FOR UPDATE so placements on it serialize.
func (r *repository) LockByID(ctx context.Context, id int64) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Project, error) {
	query := r.db.WithContext(ctx).Model(&models.Project{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.BeforeID > 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Project
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AddFunding credits funded_amount only while the project is active and the
// amount fits the remaining capacity.
func (r *repository) AddFunding(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status = ? AND total_amount >= funded_amount + ?", id, enums.ProjectStatusActive, amount).
		Update("funded_amount", gorm.Expr("funded_amount + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id int64, from []enums.ProjectStatus, to enums.ProjectStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkSold(ctx context.Context, id int64, salePrice decimal.Decimal, soldAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status IN ?", id, []enums.ProjectStatus{enums.ProjectStatusActive, enums.ProjectStatusCompleted}).
		Updates(map[string]any{
			"status":     enums.ProjectStatusSold,
			"sale_price": salePrice,
			"sold_at":    soldAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
