package portfolios

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

// Service exposes portfolio reads and the idempotent ensure step.
type Service interface {
	EnsurePortfolio(ctx context.Context, userID int64) (*models.Portfolio, error)
	GetOverview(ctx context.Context, userID int64) (*Overview, error)
	ListTransactions(ctx context.Context, userID int64, params pagination.Params, txType enums.TransactionType) (*TransactionList, error)
}

// Balances mirrors the four portfolio sections plus the derived totals.
type Balances struct {
	FreeCapital     decimal.Decimal `json:"free_capital"`
	Profits         decimal.Decimal `json:"profits"`
	ReferralBonus   decimal.Decimal `json:"referral_bonus"`
	InvestedCapital decimal.Decimal `json:"invested_capital"`
	Available       decimal.Decimal `json:"available"`
	Total           decimal.Decimal `json:"total"`
}

// HoldingView is an active investment as shown to its owner.
type HoldingView struct {
	InvestmentID      int64            `json:"investment_id"`
	ProjectID         int64            `json:"project_id"`
	ProjectCode       string           `json:"project_code"`
	ProjectTitle      string           `json:"project_title"`
	ProjectStatus     string           `json:"project_status"`
	Amount            decimal.Decimal  `json:"amount"`
	FundSource        enums.FundSource `json:"fund_source"`
	ExpectedROI       decimal.Decimal  `json:"expected_roi"`
	CompletionPercent int              `json:"completion_percent"`
	InvestedAt        time.Time        `json:"invested_at"`
}

// Overview is the investor dashboard payload.
type Overview struct {
	UserID   int64         `json:"user_id"`
	Balances Balances      `json:"balances"`
	Holdings []HoldingView `json:"holdings"`
}

// TransactionList is one page of the audit trail.
type TransactionList struct {
	Items      []models.PortfolioTransaction `json:"items"`
	NextCursor string                        `json:"next_cursor,omitempty"`
}

type service struct {
	repo   Repository
	ledger ledger.Repository
}

// NewService wires the portfolio service.
func NewService(repo Repository, ledgerRepo ledger.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("portfolio repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, ledger: ledgerRepo}, nil
}

// EnsurePortfolio creates the zero-balance row when missing and returns it.
func (s *service) EnsurePortfolio(ctx context.Context, userID int64) (*models.Portfolio, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.repo.Ensure(ctx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure portfolio")
	}
	portfolio, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load portfolio")
	}
	return portfolio, nil
}

func (s *service) GetOverview(ctx context.Context, userID int64) (*Overview, error) {
	portfolio, err := s.EnsurePortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.repo.ActiveHoldings(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load holdings")
	}

	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		project := models.Project{TotalAmount: h.TotalAmount, FundedAmount: h.FundedAmount}
		views = append(views, HoldingView{
			InvestmentID:      h.InvestmentID,
			ProjectID:         h.ProjectID,
			ProjectCode:       h.ProjectCode,
			ProjectTitle:      h.ProjectTitle,
			ProjectStatus:     string(h.ProjectStatus),
			Amount:            h.Amount,
			FundSource:        h.FundSource,
			ExpectedROI:       h.ExpectedROI,
			CompletionPercent: project.CompletionPercent(),
			InvestedAt:        h.CreatedAt,
		})
	}

	return &Overview{
		UserID:   userID,
		Balances: BalancesOf(*portfolio),
		Holdings: views,
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, userID int64, params pagination.Params, txType enums.TransactionType) (*TransactionList, error) {
	if txType != "" && !txType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.ledger.ListByUser(ctx, userID, ledger.ListFilter{
		Type:     txType,
		BeforeID: before,
		Limit:    pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page, next := pagination.Trim(rows, params.Limit, func(row models.PortfolioTransaction) int64 { return row.ID })
	return &TransactionList{Items: page, NextCursor: next}, nil
}

// BalancesOf projects a portfolio row into its API shape.
func BalancesOf(p models.Portfolio) Balances {
	return Balances{
		FreeCapital:     p.FreeCapital,
		Profits:         p.Profits,
		ReferralBonus:   p.ReferralBonus,
		InvestedCapital: p.InvestedCapital,
		Available:       p.Available(),
		Total:           p.Total(),
	}
}

// IsNotFound reports whether err is a missing-row error from the repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
