package profits

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/internal/referrals"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
)

const referenceInvestment = "investment"

// Service settles a project sale to its investors.
type Service interface {
	SellProject(ctx context.Context, projectID int64, salePrice decimal.Decimal) (*SaleSummary, error)
}

// Settlement is one investor's share of the sale.
type Settlement struct {
	InvestmentID int64           `json:"investment_id"`
	UserID       int64           `json:"user_id"`
	Principal    decimal.Decimal `json:"principal"`
	Profit       decimal.Decimal `json:"profit"`
	BonusPaid    decimal.Decimal `json:"bonus_paid"`
}

// SaleSummary reports the settled sale.
type SaleSummary struct {
	ProjectID      int64           `json:"project_id"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	SettledCount   int             `json:"settled_count"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalBonusPaid decimal.Decimal `json:"total_bonus_paid"`
	Settlements    []Settlement    `json:"settlements"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the sale collaborators.
type ServiceParams struct {
	DB          txRunner
	Projects    projects.Repository
	Investments investments.Repository
	Portfolios  portfolios.Repository
	Ledger      ledger.Service
	Referrals   referrals.Service
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Clock       func() time.Time
}

type service struct {
	db          txRunner
	projects    projects.Repository
	investments investments.Repository
	portfolios  portfolios.Repository
	ledger      ledger.Service
	referrals   referrals.Service
	outbox      outbox.Emitter
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the sale settlement service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Projects == nil:
		return nil, fmt.Errorf("projects repository required")
	case params.Investments == nil:
		return nil, fmt.Errorf("investments repository required")
	case params.Portfolios == nil:
		return nil, fmt.Errorf("portfolios repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Referrals == nil:
		return nil, fmt.Errorf("referrals service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:          params.DB,
		projects:    params.Projects,
		investments: params.Investments,
		portfolios:  params.Portfolios,
		ledger:      params.Ledger,
		referrals:   params.Referrals,
		outbox:      params.Outbox,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

// SellProject splits salePrice across active investments pro rata to their
// share of funded_amount. Principal returns to free capital and any gain lands in profits,
// each gain triggering the referral bonus for its investor. Losses are not
// charged back: profit is floored at zero.
func (s *service) SellProject(ctx context.Context, projectID int64, salePrice decimal.Decimal) (*SaleSummary, error) {
	ctx = s.logg.WithProjectID(ctx, projectID)
	if !salePrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale_price must be positive")
	}

	summary := &SaleSummary{
		ProjectID:      projectID,
		SalePrice:      salePrice,
		TotalProfit:    decimal.Zero,
		TotalBonusPaid: decimal.Zero,
		Settlements:    []Settlement{},
	}
	var outcomes []*referrals.BonusOutcome

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		projectRepo := s.projects.WithTx(tx)
		investmentRepo := s.investments.WithTx(tx)
		portfolioRepo := s.portfolios.WithTx(tx)
		ledgerSvc := s.ledger.WithTx(tx)

		project, err := projectRepo.LockByID(ctx, projectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeProjectNotFound, "project not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock project")
		}
		if !project.Status.Sellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("project is %s", project.Status))
		}

		active, err := investmentRepo.ListActiveByProject(ctx, projectID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active investments")
		}
		divisor := project.FundedAmount
		if !divisor.IsPositive() {
			for _, inv := range active {
				divisor = divisor.Add(inv.Amount)
			}
		}

		owners := make([]int64, 0, len(active))
		earners := make([]int64, 0, len(active))
		for _, inv := range active {
			if len(owners) == 0 || owners[len(owners)-1] != inv.UserID {
				owners = append(owners, inv.UserID)
			}
			if profitShare(salePrice, inv.Amount, divisor).IsPositive() &&
				(len(earners) == 0 || earners[len(earners)-1] != inv.UserID) {
				earners = append(earners, inv.UserID)
			}
		}
		// Bonus receivers are locked with the owners so every sale takes
		// its row locks in one ascending pass.
		var receivers []int64
		if len(earners) > 0 {
			receivers, err = s.referrals.Receivers(ctx, tx, earners)
			if err != nil {
				return err
			}
		}
		lockIDs := append(slices.Clone(owners), receivers...)
		slices.Sort(lockIDs)
		lockIDs = slices.Compact(lockIDs)
		locked, err := portfolioRepo.LockByUserIDs(ctx, lockIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock portfolios")
		}
		free := make(map[int64]decimal.Decimal, len(locked))
		profits := make(map[int64]decimal.Decimal, len(locked))
		for _, p := range locked {
			free[p.UserID] = p.FreeCapital
			profits[p.UserID] = p.Profits
		}

		for _, inv := range active {
			profit := profitShare(salePrice, inv.Amount, divisor)

			released, err := portfolioRepo.ReleaseInvested(ctx, inv.UserID, inv.Amount, profit)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle investment")
			}
			if !released {
				return pkgerrors.New(pkgerrors.CodeInternal, "invested capital below investment "+strconv.FormatInt(inv.ID, 10))
			}
			moved, err := investmentRepo.TransitionStatus(ctx, inv.ID, enums.InvestmentStatusActive, enums.InvestmentStatusCompleted)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete investment")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeInternal, "investment no longer active "+strconv.FormatInt(inv.ID, 10))
			}

			freeBefore := free[inv.UserID]
			free[inv.UserID] = freeBefore.Add(inv.Amount)
			if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
				UserID:        inv.UserID,
				Type:          enums.TransactionTypeRefund,
				Amount:        inv.Amount,
				BalanceBefore: freeBefore,
				BalanceAfter:  free[inv.UserID],
				FundSource:    enums.FundSourceFreeCapital.String(),
				ReferenceType: referenceInvestment,
				ReferenceID:   inv.ID,
				Description:   fmt.Sprintf("Capital returned from sale of %s", project.Title),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record principal return")
			}

			settlement := Settlement{
				InvestmentID: inv.ID,
				UserID:       inv.UserID,
				Principal:    inv.Amount,
				Profit:       profit,
				BonusPaid:    decimal.Zero,
			}
			if profit.IsPositive() {
				profitsBefore := profits[inv.UserID]
				profits[inv.UserID] = profitsBefore.Add(profit)
				if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
					UserID:        inv.UserID,
					Type:          enums.TransactionTypeROI,
					Amount:        profit,
					BalanceBefore: profitsBefore,
					BalanceAfter:  profits[inv.UserID],
					FundSource:    enums.FundSourceProfits.String(),
					ReferenceType: referenceInvestment,
					ReferenceID:   inv.ID,
					Description:   fmt.Sprintf("Profit from sale of %s", project.Title),
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record profit")
				}

				outcome, err := s.referrals.DistributeTx(ctx, tx, referrals.BonusInput{
					UserID:       inv.UserID,
					Profit:       profit,
					ProjectID:    projectID,
					InvestmentID: inv.ID,
				})
				if err != nil {
					return err
				}
				outcomes = append(outcomes, outcome)
				settlement.BonusPaid = outcome.Total
			}

			summary.Settlements = append(summary.Settlements, settlement)
			summary.SettledCount++
			summary.TotalProfit = summary.TotalProfit.Add(profit)
			summary.TotalBonusPaid = summary.TotalBonusPaid.Add(settlement.BonusPaid)
		}

		soldAt := s.now().UTC()
		sold, err := projectRepo.MarkSold(ctx, projectID, salePrice, soldAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark project sold")
		}
		if !sold {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "project is no longer sellable")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProjectSold,
			AggregateType: enums.AggregateProject,
			AggregateID:   projectID,
			Data: payloads.ProjectSoldEvent{
				ProjectID:      projectID,
				SalePrice:      salePrice,
				SettledCount:   summary.SettledCount,
				TotalProfit:    summary.TotalProfit,
				TotalBonusPaid: summary.TotalBonusPaid,
				SoldAt:         soldAt,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed == nil {
			s.logg.Error(ctx, "sell project failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sell project failed")
		}
		return nil, err
	}

	for _, outcome := range outcomes {
		s.referrals.Observe(outcome)
	}
	s.logg.Info(s.logg.WithField(ctx, "settled_count", summary.SettledCount), "project sold")
	return summary, nil
}

// profitShare is the investor's pro-rata slice of the sale above the
// principal, floored at zero.
func profitShare(salePrice, amount, divisor decimal.Decimal) decimal.Decimal {
	profit := salePrice.Mul(amount).Div(divisor).Round(2).Sub(amount)
	if profit.IsNegative() {
		return decimal.Zero
	}
	return profit
}
