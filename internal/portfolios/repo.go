package portfolios

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// Holding is an active investment joined with its project.
type Holding struct {
	InvestmentID  int64
	ProjectID     int64
	ProjectCode   string
	ProjectTitle  string
	ProjectStatus enums.ProjectStatus
	Amount        decimal.Decimal
	FundSource    enums.FundSource
	TotalAmount   decimal.Decimal
	FundedAmount  decimal.Decimal
	ExpectedROI   decimal.Decimal
	CreatedAt     time.Time
}

// Repository persists portfolios. Every balance mutation is a single guarded
// UPDATE; a false result means the guard rejected the row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context, userID int64) error
	FindByUserID(ctx context.Context, userID int64) (*models.Portfolio, error)
	LockByUserID(ctx context.Context, userID int64) (*models.Portfolio, error)
	LockByUserIDs(ctx context.Context, userIDs []int64) ([]models.Portfolio, error)
	MoveToInvested(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error)
	ReleaseInvested(ctx context.Context, userID int64, principal, profit decimal.Decimal) (bool, error)
	RefundInvested(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error)
	Debit(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error)
	ActiveHoldings(ctx context.Context, userID int64) ([]Holding, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a portfolio repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Ensure creates a zero-balance portfolio unless one already exists.
func (r *repository) Ensure(ctx context.Context, userID int64) error {
	row := models.Portfolio{
		UserID:          userID,
		FreeCapital:     decimal.Zero,
		Profits:         decimal.Zero,
		ReferralBonus:   decimal.Zero,
		InvestedCapital: decimal.Zero,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
}

func (r *repository) FindByUserID(ctx context.Context, userID int64) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&portfolio).Error; err != nil {
		return nil, err
	}
	return &portfolio, nil
}

func (r *repository) LockByUserID(ctx context.Context, userID int64) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&portfolio).Error; err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// LockByUserIDs locks the portfolios in ascending user id order.
func (r *repository) LockByUserIDs(ctx context.Context, userIDs []int64) ([]models.Portfolio, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []models.Portfolio
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id IN ?", userIDs).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MoveToInvested(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error) {
	col := source.Column()
	res := r.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("user_id = ? AND "+col+" >= ?", userID, amount).
		Updates(map[string]any{
			col:                gorm.Expr(col+" - ?", amount),
			"invested_capital": gorm.Expr("invested_capital + ?", amount),
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseInvested returns principal from invested_capital to free_capital and
// credits profit to the profits balance.
func (r *repository) ReleaseInvested(ctx context.Context, userID int64, principal, profit decimal.Decimal) (bool, error) {
	updates := map[string]any{
		"invested_capital": gorm.Expr("invested_capital - ?", principal),
		"free_capital":     gorm.Expr("free_capital + ?", principal),
	}
	if profit.IsPositive() {
		updates["profits"] = gorm.Expr("profits + ?", profit)
	}
	res := r.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("user_id = ? AND invested_capital >= ?", userID, principal).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// RefundInvested credits free_capital with the full amount and lowers
// invested_capital by the same amount, floored at zero. Rows created by Ensure
// during a refund carry no invested capital.
func (r *repository) RefundInvested(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"invested_capital": gorm.Expr("CASE WHEN invested_capital >= ? THEN invested_capital - ? ELSE 0 END", amount, amount),
			"free_capital":     gorm.Expr("free_capital + ?", amount),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Credit(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error) {
	col := source.Column()
	res := r.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("user_id = ?", userID).
		Update(col, gorm.Expr(col+" + ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (r *repository) Debit(ctx context.Context, userID int64, source enums.FundSource, amount decimal.Decimal) (bool, error) {
	col := source.Column()
	res := r.db.WithContext(ctx).Model(&models.Portfolio{}).
		Where("user_id = ? AND "+col+" >= ?", userID, amount).
		Update(col, gorm.Expr(col+" - ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ActiveHoldings(ctx context.Context, userID int64) ([]Holding, error) {
	var rows []Holding
	err := r.db.WithContext(ctx).
		Table("investments AS i").
		Select(`i.id AS investment_id, i.project_id, p.code AS project_code, p.title AS project_title,
			p.status AS project_status, i.amount, i.fund_source, p.total_amount, p.funded_amount,
			p.expected_roi, i.created_at`).
		Joins("JOIN projects AS p ON p.id = i.project_id").
		Where("i.user_id = ? AND i.status = ?", userID, enums.InvestmentStatusActive).
		Order("i.id DESC").
		Scan(&rows).Error
	return rows, err
}
