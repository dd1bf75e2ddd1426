package projects

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// ProjectDTO is a project enriched with its derived funding figures.
type ProjectDTO struct {
	ID                int64               `json:"id"`
	Code              string              `json:"code"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Location          string              `json:"location"`
	PropertyType      string              `json:"property_type"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	FundedAmount      decimal.Decimal     `json:"funded_amount"`
	RemainingAmount   decimal.Decimal     `json:"remaining_amount"`
	MinInvestment     decimal.Decimal     `json:"min_investment"`
	ExpectedROI       decimal.Decimal     `json:"expected_roi"`
	CompletionPercent int                 `json:"completion_percent"`
	IsFunded          bool                `json:"is_funded"`
	Status            enums.ProjectStatus `json:"status"`
	SalePrice         *decimal.Decimal    `json:"sale_price,omitempty"`
	SoldAt            *time.Time          `json:"sold_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ProjectList is one page of projects.
type ProjectList struct {
	Items      []ProjectDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// CreateInput holds the validated payload for a new draft project.
type CreateInput struct {
	Code          string
	Title         string
	Description   string
	Location      string
	PropertyType  string
	TotalAmount   decimal.Decimal
	MinInvestment decimal.Decimal
	ExpectedROI   decimal.Decimal
}

// UpdateInput carries optional changes. Nil fields are left untouched.
type UpdateInput struct {
	Title         *string
	Description   *string
	Location      *string
	PropertyType  *string
	TotalAmount   *decimal.Decimal
	MinInvestment *decimal.Decimal
	ExpectedROI   *decimal.Decimal
}

func FromModel(p models.Project) ProjectDTO {
	return ProjectDTO{
		ID:                p.ID,
		Code:              p.Code,
		Title:             p.Title,
		Description:       p.Description,
		Location:          p.Location,
		PropertyType:      p.PropertyType,
		TotalAmount:       p.TotalAmount,
		FundedAmount:      p.FundedAmount,
		RemainingAmount:   p.Remaining(),
		MinInvestment:     p.MinInvestment,
		ExpectedROI:       p.ExpectedROI,
		CompletionPercent: p.CompletionPercent(),
		IsFunded:          p.IsFunded(),
		Status:            p.Status,
		SalePrice:         p.SalePrice,
		SoldAt:            p.SoldAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
