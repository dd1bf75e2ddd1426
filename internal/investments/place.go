package investments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
)

const referenceInvestment = "investment"

// PlaceInvestment commits capital from one spendable balance to an active
// project. Checks run in a fixed order so the first violated rule is the one
// reported; nothing is written unless every check passes.
func (s *service) PlaceInvestment(ctx context.Context, input PlaceInput) (*Confirmation, error) {
	ctx = s.logg.WithProjectID(s.logg.WithUserID(ctx, strconv.FormatInt(input.UserID, 10)), input.ProjectID)

	if err := validatePlaceInput(input); err != nil {
		s.metrics.ObservePlacement(resultLabel(err), input.Amount)
		return nil, err
	}

	var (
		confirmation Confirmation
		title        string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		projectRepo := s.projects.WithTx(tx)
		portfolioRepo := s.portfolios.WithTx(tx)

		project, err := projectRepo.LockByID(ctx, input.ProjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeProjectNotFound, "project not found")
			}
			return fmt.Errorf("lock project: %w", err)
		}
		if !project.Status.AcceptsInvestments() {
			return pkgerrors.New(pkgerrors.CodeProjectNotFound, "project is not open for investment")
		}

		minimum := MinimumInvestment
		if project.MinInvestment.GreaterThan(minimum) {
			minimum = project.MinInvestment
		}
		if input.Amount.LessThan(minimum) {
			return pkgerrors.New(pkgerrors.CodeAmountTooLow, "amount below minimum investment").
				WithDetails(map[string]string{"minimum": minimum.StringFixed(2)})
		}
		remaining := project.Remaining()
		if input.Amount.GreaterThan(remaining) {
			return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "amount exceeds remaining capacity").
				WithDetails(map[string]string{"remaining": remaining.StringFixed(2)})
		}

		portfolio, err := portfolioRepo.LockByUserID(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodePortfolioNotFound, "portfolio not found")
			}
			return fmt.Errorf("lock portfolio: %w", err)
		}
		balance := portfolio.Balance(input.FundSource)
		if balance.LessThan(input.Amount) {
			return insufficientFunds(input.FundSource, balance)
		}

		investment := &models.Investment{
			UserID:     input.UserID,
			ProjectID:  project.ID,
			Amount:     input.Amount,
			FundSource: input.FundSource,
			Status:     enums.InvestmentStatusActive,
		}
		if err := s.investments.WithTx(tx).Create(ctx, investment); err != nil {
			return fmt.Errorf("insert investment: %w", err)
		}

		moved, err := portfolioRepo.MoveToInvested(ctx, input.UserID, input.FundSource, input.Amount)
		if err != nil {
			return fmt.Errorf("debit portfolio: %w", err)
		}
		if !moved {
			return insufficientFunds(input.FundSource, balance)
		}

		funded, err := projectRepo.AddFunding(ctx, project.ID, input.Amount)
		if err != nil {
			return fmt.Errorf("credit project funding: %w", err)
		}
		if !funded {
			return pkgerrors.New(pkgerrors.CodeCapacityExceeded, "amount exceeds remaining capacity")
		}

		updated, err := projectRepo.FindByID(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("reload project: %w", err)
		}

		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordEntryInput{
			UserID:        input.UserID,
			Type:          enums.TransactionTypeInvestment,
			Amount:        input.Amount,
			BalanceBefore: balance,
			BalanceAfter:  balance.Sub(input.Amount),
			FundSource:    input.FundSource.String(),
			ReferenceType: referenceInvestment,
			ReferenceID:   investment.ID,
			Description:   fmt.Sprintf("Investment in %s", updated.Title),
		}); err != nil {
			return fmt.Errorf("record ledger entry: %w", err)
		}

		confirmation = Confirmation{
			InvestmentID: investment.ID,
			FundSource:   input.FundSource,
			ProjectUpdate: ProjectUpdate{
				FundedAmount:      updated.FundedAmount,
				CompletionPercent: updated.CompletionPercent(),
				RemainingAmount:   updated.Remaining(),
				IsFunded:          updated.IsFunded(),
			},
		}
		title = updated.Title

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvestmentPlaced,
			AggregateType: enums.AggregateInvestment,
			AggregateID:   investment.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.UserRoleInvestor.String()},
			Data: payloads.InvestmentPlacedEvent{
				InvestmentID:      investment.ID,
				ProjectID:         project.ID,
				UserID:            input.UserID,
				Amount:            input.Amount,
				FundSource:        input.FundSource,
				FundedAmount:      updated.FundedAmount,
				CompletionPercent: confirmation.ProjectUpdate.CompletionPercent,
				IsFunded:          confirmation.ProjectUpdate.IsFunded,
			},
		})
	})
	if err != nil {
		err = s.unexpected(ctx, "place investment", err)
		s.metrics.ObservePlacement(resultLabel(err), input.Amount)
		return nil, err
	}
	s.metrics.ObservePlacement(resultLabel(nil), input.Amount)

	if err := s.observer.InvestmentPlaced(ctx, Placed{
		UserID:       input.UserID,
		ProjectID:    input.ProjectID,
		ProjectTitle: title,
		Amount:       input.Amount,
		Confirmation: confirmation,
	}); err != nil {
		s.logg.Error(ctx, "investment observer failed", err)
	}

	s.logg.Info(ctx, "investment placed")
	return &confirmation, nil
}

func validatePlaceInput(input PlaceInput) error {
	if input.UserID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProjectID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "project id is required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimals")
	}
	if !input.FundSource.IsValid() {
		return pkgerrors.New(pkgerrors.CodeInvalidFundSource, "invalid fund source")
	}
	return nil
}

func insufficientFunds(source enums.FundSource, available decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
		WithDetails(map[string]string{
			"fund_source": source.String(),
			"available":   available.StringFixed(2),
		})
}
