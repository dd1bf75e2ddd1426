package kyc

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// Repository persists identity review requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.KYCRequest) error
	FindByID(ctx context.Context, id int64) (*models.KYCRequest, error)
	LockByID(ctx context.Context, id int64) (*models.KYCRequest, error)
	HasPending(ctx context.Context, userID int64) (bool, error)
	Latest(ctx context.Context, userID int64) (*models.KYCRequest, error)
	ListPending(ctx context.Context, beforeID int64, limit int) ([]models.KYCRequest, error)
	Resolve(ctx context.Context, id int64, to enums.KYCStatus, fields map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a KYC repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.KYCRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.KYCRequest, error) {
	var req models.KYCRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LockByID(ctx context.Context, id int64) (*models.KYCRequest, error) {
	var req models.KYCRequest
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
		Model(&models.KYCRequest{}).
		Where("user_id = ? AND status = ?", userID, enums.KYCStatusPending).
		Count(&count).Error
	return count > 0, err
}

// Latest returns the most recent request for the user.
func (r *repository) Latest(ctx context.Context, userID int64) (*models.KYCRequest, error) {
	var req models.KYCRequest
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListPending(ctx context.Context, beforeID int64, limit int) ([]models.KYCRequest, error) {
	query := r.db.WithContext(ctx).
		Model(&models.KYCRequest{}).
		Where("status = ?", enums.KYCStatusPending)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.KYCRequest
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Resolve(ctx context.Context, id int64, to enums.KYCStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.KYCRequest{}).
		Where("id = ? AND status = ?", id, enums.KYCStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
