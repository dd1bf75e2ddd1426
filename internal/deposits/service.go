package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
	"github.com/cipimmobiliare/cip-backend/pkg/security"
)

const (
	referenceDeposit     = "deposit_request"
	paymentRefPrefix     = "CIP-"
	paymentRefLength     = 12
	uniqueKeyLength      = 6
	maxReferenceAttempts = 3
)

// MinimumDeposit is the smallest transfer accepted.
var MinimumDeposit = decimal.NewFromInt(500)

// Observer is notified after a deposit request commits.
type Observer interface {
	DepositRequested(ctx context.Context, req models.DepositRequest) error
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) DepositRequested(context.Context, models.DepositRequest) error { return nil }

// Service manages bank transfer deposits.
type Service interface {
	CreateRequest(ctx context.Context, userID int64, amount decimal.Decimal) (*Instructions, error)
	Approve(ctx context.Context, input ApproveInput) (*models.DepositRequest, error)
	Reject(ctx context.Context, depositID, adminID int64, notes string) (*models.DepositRequest, error)
	ListForUser(ctx context.Context, userID int64, params pagination.Params) (*DepositList, error)
	ListPending(ctx context.Context, params pagination.Params) (*DepositList, error)
	ExpirePending(ctx context.Context) (int64, error)
}

// Instructions tells the investor where to send the transfer.
type Instructions struct {
	DepositID        int64           `json:"deposit_id"`
	Amount           decimal.Decimal `json:"amount"`
	IBAN             string          `json:"iban"`
	AccountHolder    string          `json:"account_holder"`
	UniqueKey        string          `json:"unique_key"`
	PaymentReference string          `json:"payment_reference"`
	ExpiresAt        time.Time       `json:"expires_at"`
}

// ApproveInput confirms a received transfer. AmountReceived overrides the
// requested amount when the bank credited a different figure.
type ApproveInput struct {
	DepositID      int64
	AdminID        int64
	AmountReceived *decimal.Decimal
	Notes          string
}

// DepositList is one page of deposit requests.
type DepositList struct {
	Items      []models.DepositRequest `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles deposit collaborators.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Portfolios portfolios.Repository
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Observer   Observer
	Config     config.DepositsConfig
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	db         txRunner
	repo       Repository
	portfolios portfolios.Repository
	ledger     ledger.Service
	outbox     outbox.Emitter
	observer   Observer
	cfg        config.DepositsConfig
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the deposits service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("deposits repository required")
	case params.Portfolios == nil:
		return nil, fmt.Errorf("portfolios repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case strings.TrimSpace(params.Config.IBAN) == "":
		return nil, fmt.Errorf("deposit IBAN required")
	}
	observer := params.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:         params.DB,
		repo:       params.Repo,
		portfolios: params.Portfolios,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		observer:   observer,
		cfg:        params.Config,
		logg:       params.Logger,
		now:        clock,
	}, nil
}

func (s *service) CreateRequest(ctx context.Context, userID int64, amount decimal.Decimal) (*Instructions, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if amount.LessThan(MinimumDeposit) {
		return nil, pkgerrors.New(pkgerrors.CodeAmountTooLow, "amount is below the minimum deposit").
			WithDetails(map[string]string{"minimum": MinimumDeposit.StringFixed(2)})
	}
	if amount.Exponent() < -2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most 2 decimal places")
	}

	var created *models.DepositRequest
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		req, err := s.newRequest(userID, amount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate payment reference")
		}
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			pending, err := repo.HasPending(ctx, userID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending deposits")
			}
			if pending {
				return pkgerrors.New(pkgerrors.CodeRequestPending, "a deposit request is already pending")
			}
			return repo.Create(ctx, req)
		})
		if err == nil {
			created = req
			break
		}
		if !db.IsUniqueViolation(err, "") {
			if typed := pkgerrors.As(err); typed != nil {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create deposit request")
		}
	}
	if created == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a payment reference")
	}

	if err := s.observer.DepositRequested(ctx, *created); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "deposit observer failed")
	}
	s.logg.Info(s.logg.WithField(ctx, "deposit_id", created.ID), "deposit requested")
	return &Instructions{
		DepositID:        created.ID,
		Amount:           created.Amount,
		IBAN:             created.IBAN,
		AccountHolder:    s.cfg.AccountHolder,
		UniqueKey:        created.UniqueKey,
		PaymentReference: created.PaymentReference,
		ExpiresAt:        created.ExpiresAt,
	}, nil
}

func (s *service) newRequest(userID int64, amount decimal.Decimal) (*models.DepositRequest, error) {
	key, err := security.RandomCode(uniqueKeyLength, security.CodeCharset)
	if err != nil {
		return nil, err
	}
	ref, err := security.RandomCode(paymentRefLength, security.CodeCharset)
	if err != nil {
		return nil, err
	}
	return &models.DepositRequest{
		UserID:           userID,
		Amount:           amount,
		IBAN:             s.cfg.IBAN,
		UniqueKey:        key,
		PaymentReference: paymentRefPrefix + ref,
		Status:           enums.DepositStatusPending,
		ExpiresAt:        s.now().UTC().Add(s.cfg.TTL),
	}, nil
}

func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.DepositRequest, error) {
	if input.AmountReceived != nil && !input.AmountReceived.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount_received must be positive")
	}

	var approved *models.DepositRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		portfolioRepo := s.portfolios.WithTx(tx)

		req, err := s.lockPending(ctx, repo, input.DepositID)
		if err != nil {
			return err
		}
		credit := req.Amount
		if input.AmountReceived != nil {
			credit = *input.AmountReceived
		}

		now := s.now().UTC()
		fields := map[string]any{
			"amount_received": credit,
			"approved_by":     input.AdminID,
			"approved_at":     now,
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			fields["admin_notes"] = notes
		}
		ok, err := repo.Resolve(ctx, req.ID, enums.DepositStatusCompleted, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve deposit")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit is no longer pending")
		}

		if err := portfolioRepo.Ensure(ctx, req.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure portfolio")
		}
		portfolio, err := portfolioRepo.LockByUserID(ctx, req.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock portfolio")
		}
		credited, err := portfolioRepo.Credit(ctx, req.UserID, enums.FundSourceFreeCapital, credit)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit deposit")
		}
		if !credited {
			return fmt.Errorf("portfolio for user %d not credited", req.UserID)
		}
		if _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordEntryInput{
			UserID:        req.UserID,
			Type:          enums.TransactionTypeDeposit,
			Amount:        credit,
			BalanceBefore: portfolio.FreeCapital,
			BalanceAfter:  portfolio.FreeCapital.Add(credit),
			FundSource:    enums.FundSourceFreeCapital.String(),
			ReferenceType: referenceDeposit,
			ReferenceID:   req.ID,
			Description:   "Bank transfer " + req.PaymentReference,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDepositApproved,
			AggregateType: enums.AggregateDeposit,
			AggregateID:   req.ID,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: enums.UserRoleAdmin.String()},
			Data: payloads.DepositApprovedEvent{
				DepositID:  req.ID,
				UserID:     req.UserID,
				Amount:     credit,
				ApprovedBy: input.AdminID,
			},
		}); err != nil {
			return err
		}

		approved, err = repo.FindByID(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload deposit")
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "approve deposit", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "deposit_id", approved.ID), "deposit approved")
	return approved, nil
}

func (s *service) Reject(ctx context.Context, depositID, adminID int64, notes string) (*models.DepositRequest, error) {
	var rejected *models.DepositRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.lockPending(ctx, repo, depositID)
		if err != nil {
			return err
		}
		fields := map[string]any{
			"approved_by": adminID,
			"approved_at": s.now().UTC(),
		}
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			fields["admin_notes"] = trimmed
		}
		ok, err := repo.Resolve(ctx, req.ID, enums.DepositStatusRejected, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject deposit")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit is no longer pending")
		}
		rejected, err = repo.FindByID(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload deposit")
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "reject deposit", err)
	}
	return rejected, nil
}

func (s *service) lockPending(ctx context.Context, repo Repository, id int64) (*models.DepositRequest, error) {
	req, err := repo.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deposit request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock deposit")
	}
	if req.Status != enums.DepositStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("deposit is %s", req.Status))
	}
	return req, nil
}

func (s *service) ListForUser(ctx context.Context, userID int64, params pagination.Params) (*DepositList, error) {
	return s.list(ctx, ListFilter{UserID: userID}, params)
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*DepositList, error) {
	return s.list(ctx, ListFilter{Statuses: []enums.DepositStatus{enums.DepositStatusPending}}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*DepositList, error) {
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.BeforeID = before
	filter.Limit = pagination.LimitWithBuffer(params.Limit)
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deposits")
	}
	page, next := pagination.Trim(rows, params.Limit, func(d models.DepositRequest) int64 { return d.ID })
	return &DepositList{Items: page, NextCursor: next}, nil
}

// ExpirePending marks every pending request past its deadline as expired.
func (s *service) ExpirePending(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpirePending(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire deposits")
	}
	return count, nil
}

func (s *service) classify(ctx context.Context, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	s.logg.Error(s.logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), op+" failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" failed")
}
