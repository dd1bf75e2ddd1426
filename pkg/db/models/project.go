package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// Project is a real-estate offering open to crowdfunding.
type Project struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Code          string              `gorm:"column:code;type:text;not null;uniqueIndex"`
	Title         string              `gorm:"column:title;type:text;not null"`
	Description   string              `gorm:"column:description;type:text"`
	Location      string              `gorm:"column:location;type:text"`
	PropertyType  string              `gorm:"column:property_type;type:text"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(14,2);not null"`
	FundedAmount  decimal.Decimal     `gorm:"column:funded_amount;type:numeric(14,2);not null;default:0"`
	MinInvestment decimal.Decimal     `gorm:"column:min_investment;type:numeric(14,2);not null;default:0"`
	ExpectedROI   decimal.Decimal     `gorm:"column:expected_roi;type:numeric(6,2);not null;default:0"`
	Status        enums.ProjectStatus `gorm:"column:status;type:text;not null;default:draft"`
	SalePrice     *decimal.Decimal    `gorm:"column:sale_price;type:numeric(14,2)"`
	SoldAt        *time.Time          `gorm:"column:sold_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Remaining is the capacity still open for investment, never negative.
func (p Project) Remaining() decimal.Decimal {
	remaining := p.TotalAmount.Sub(p.FundedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsFunded reports whether the goal has been reached.
func (p Project) IsFunded() bool {
	return p.FundedAmount.GreaterThanOrEqual(p.TotalAmount)
}

// CompletionPercent is floor(min(100, funded/total*100)). It is derived on
// every read and never stored.
func (p Project) CompletionPercent() int {
	if !p.TotalAmount.IsPositive() {
		return 0
	}
	pct := p.FundedAmount.Mul(decimal.NewFromInt(100)).Div(p.TotalAmount).Floor()
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	if pct.IsNegative() {
		return 0
	}
	return int(pct.IntPart())
}
