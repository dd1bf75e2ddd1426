package referrals

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// NetworkMember is one user below the root in the referral tree.
type NetworkMember struct {
	UserID        int64           `json:"user_id"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	KYCStatus     enums.KYCStatus `json:"kyc_status"`
	Level         int             `json:"level"`
	InvestedTotal decimal.Decimal `json:"invested_total"`
	JoinedAt      time.Time       `json:"joined_at"`
}

// Repository reads the referral tree and persists bonus rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBonus(ctx context.Context, bonus *models.ReferralBonus) error
	Downline(ctx context.Context, rootID int64, maxDepth int) ([]NetworkMember, error)
	CountDirect(ctx context.Context, userID int64) (int64, error)
	TotalEarned(ctx context.Context, userID int64) (decimal.Decimal, error)
	ListBonuses(ctx context.Context, receiverID int64, beforeID int64, limit int) ([]models.ReferralBonus, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a referral repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBonus(ctx context.Context, bonus *models.ReferralBonus) error {
	return r.db.WithContext(ctx).Create(bonus).Error
}

const downlineQuery = `
WITH RECURSIVE downline(id, level) AS (
	SELECT id, 1 FROM users WHERE referred_by = ?
	UNION ALL
	SELECT u.id, d.level + 1 FROM users u JOIN downline d ON u.referred_by = d.id WHERE d.level < ?
)
SELECT u.id AS user_id, u.full_name, u.email, u.kyc_status, d.level, u.created_at AS joined_at,
	COALESCE((SELECT SUM(i.amount) FROM investments i WHERE i.user_id = u.id AND i.status = ?), 0) AS invested_total
FROM downline d
JOIN users u ON u.id = d.id
ORDER BY d.level ASC, u.id ASC`

// Downline walks referred_by edges breadth-first down to maxDepth levels.
func (r *repository) Downline(ctx context.Context, rootID int64, maxDepth int) ([]NetworkMember, error) {
	var rows []NetworkMember
	err := r.db.WithContext(ctx).
		Raw(downlineQuery, rootID, maxDepth, enums.InvestmentStatusActive).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountDirect(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("referred_by = ?", userID).Count(&count).Error
	return count, err
}

func (r *repository) TotalEarned(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.ReferralBonus{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("receiver_user_id = ?", userID).
		Scan(&row).Error
	return row.Total, err
}

func (r *repository) ListBonuses(ctx context.Context, receiverID int64, beforeID int64, limit int) ([]models.ReferralBonus, error) {
	query := r.db.WithContext(ctx).Where("receiver_user_id = ?", receiverID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.ReferralBonus
	err := query.Order("id DESC").Find(&rows).Error
	return rows, err
}
