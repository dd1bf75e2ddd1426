package deposits

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// ListFilter narrows deposit listings. UserID zero lists every user.
type ListFilter struct {
	UserID   int64
	Statuses []enums.DepositStatus
	BeforeID int64
	Limit    int
}

// Repository persists deposit requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.DepositRequest) error
	FindByID(ctx context.Context, id int64) (*models.DepositRequest, error)
	LockByID(ctx context.Context, id int64) (*models.DepositRequest, error)
	HasPending(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.DepositRequest, error)
	Resolve(ctx context.Context, id int64, to enums.DepositStatus, fields map[string]any) (bool, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a deposits repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.DepositRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.DepositRequest, error) {
	var req models.DepositRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LockByID(ctx context.Context, id int64) (*models.DepositRequest, error) {
	var req models.DepositRequest
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) HasPending(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DepositRequest{}).
		Where("user_id = ? AND status = ?", userID, enums.DepositStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.DepositRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.DepositRequest{})
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.BeforeID > 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []models.DepositRequest
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Resolve moves a pending request to its final status.
func (r *repository) Resolve(ctx context.Context, id int64, to enums.DepositStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.DepositRequest{}).
		Where("id = ? AND status = ?", id, enums.DepositStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DepositRequest{}).
		Where("status = ? AND expires_at <= ?", enums.DepositStatusPending, now).
		Update("status", enums.DepositStatusExpired)
	return result.RowsAffected, result.Error
}
