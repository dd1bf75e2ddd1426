package referrals

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/metrics"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox/payloads"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

// Bonus shares as percentages of realized profit.
var (
	DirectPercentVIP = decimal.NewFromInt(5)
	DirectPercent    = decimal.NewFromInt(3)
	FallbackPercent  = decimal.NewFromInt(2)
)

const (
	defaultNetworkDepth = 5
	maxUplineHops       = 256
	referenceProject    = "project"
	bonusStatusAccrued  = "accrued"

	receiverReferrer = "referrer"
	receiverFallback = "fallback"
)

// Service distributes referral bonuses and reads the referral network.
type Service interface {
	DistributeReferralBonus(ctx context.Context, userID int64, profit decimal.Decimal, projectID int64) (*BonusOutcome, error)
	DistributeTx(ctx context.Context, tx *gorm.DB, input BonusInput) (*BonusOutcome, error)
	Receivers(ctx context.Context, tx *gorm.DB, investorIDs []int64) ([]int64, error)
	Observe(outcome *BonusOutcome)
	Network(ctx context.Context, userID int64, maxDepth int) ([]NetworkMember, error)
	Stats(ctx context.Context, userID int64) (*Stats, error)
	ListBonuses(ctx context.Context, userID int64, params pagination.Params) (*BonusList, error)
	ValidateReferrer(ctx context.Context, userID, referrerID int64) error
	AssignReferrer(ctx context.Context, userID, referrerID int64) error
}

// BonusList is one page of accrued bonuses.
type BonusList struct {
	Items      []models.ReferralBonus `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// BonusInput identifies the realized profit a bonus is computed from.
// InvestmentID is optional and only travels on the emitted event.
type BonusInput struct {
	UserID       int64
	Profit       decimal.Decimal
	ProjectID    int64
	InvestmentID int64
}

// Share is one credited bonus.
type Share struct {
	ReceiverID int64           `json:"receiver_id"`
	Level      int             `json:"level"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// BonusOutcome lists what a distribution credited. Empty when profit <= 0.
type BonusOutcome struct {
	Shares []Share         `json:"shares"`
	Total  decimal.Decimal `json:"total"`
}

// Stats summarises a user's referral activity.
type Stats struct {
	ReferralCode    *string         `json:"referral_code,omitempty"`
	DirectReferrals int64           `json:"direct_referrals"`
	NetworkSize     int             `json:"network_size"`
	TotalEarned     decimal.Decimal `json:"total_earned"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the referral collaborators. Metrics is optional.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Users      *users.Repository
	Portfolios portfolios.Repository
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Config     config.ReferralConfig
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
	Clock      func() time.Time
}

type service struct {
	db         txRunner
	repo       Repository
	users      *users.Repository
	portfolios portfolios.Repository
	ledger     ledger.Service
	outbox     outbox.Emitter
	cfg        config.ReferralConfig
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the referral service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("referrals repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Portfolios == nil:
		return nil, fmt.Errorf("portfolios repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
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
		db:         params.DB,
		repo:       params.Repo,
		users:      params.Users,
		portfolios: params.Portfolios,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		cfg:        params.Config,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        clock,
	}, nil
}

func (s *service) DistributeReferralBonus(ctx context.Context, userID int64, profit decimal.Decimal, projectID int64) (*BonusOutcome, error) {
	var outcome *BonusOutcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.DistributeTx(ctx, tx, BonusInput{UserID: userID, Profit: profit, ProjectID: projectID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Observe(outcome)
	return outcome, nil
}

// DistributeTx credits the direct referrer (5% for VIPs, 3% otherwise) and
// the fallback account (2%) inside the caller's transaction.
func (s *service) DistributeTx(ctx context.Context, tx *gorm.DB, input BonusInput) (*BonusOutcome, error) {
	outcome := &BonusOutcome{Shares: []Share{}, Total: decimal.Zero}
	if !input.Profit.IsPositive() {
		return outcome, nil
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}

	usersRepo := s.users.WithTx(tx)
	investor, err := usersRepo.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "investor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load investor")
	}
	fallbackID, err := s.fallbackAccount(ctx, usersRepo)
	if err != nil {
		return nil, err
	}

	type plan struct {
		receiver int64
		level    int
		pct      decimal.Decimal
	}
	plans := make([]plan, 0, 2)
	if investor.ReferredBy != nil {
		referrer, err := usersRepo.FindByID(ctx, *investor.ReferredBy)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referrer")
		}
		if referrer != nil {
			pct := DirectPercent
			if referrer.IsVIP {
				pct = DirectPercentVIP
			}
			plans = append(plans, plan{receiver: referrer.ID, level: models.ReferralLevelDirect, pct: pct})
		}
	}
	plans = append(plans, plan{receiver: fallbackID, level: models.ReferralLevelFallback, pct: FallbackPercent})

	monthRef := s.now().UTC().Format("2006-01")
	portfolioRepo := s.portfolios.WithTx(tx)
	ledgerSvc := s.ledger.WithTx(tx)
	bonusRepo := s.repo.WithTx(tx)

	for _, p := range plans {
		amount := input.Profit.Mul(p.pct).Div(decimal.NewFromInt(100)).Round(2)
		if !amount.IsPositive() {
			continue
		}
		if err := portfolioRepo.Ensure(ctx, p.receiver); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure receiver portfolio")
		}
		portfolio, err := portfolioRepo.LockByUserID(ctx, p.receiver)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock receiver portfolio")
		}
		if _, err := portfolioRepo.Credit(ctx, p.receiver, enums.FundSourceReferralBonus, amount); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit referral bonus")
		}
		if err := bonusRepo.CreateBonus(ctx, &models.ReferralBonus{
			ReceiverUserID: p.receiver,
			SourceUserID:   investor.ID,
			ProjectID:      input.ProjectID,
			Level:          p.level,
			Percentage:     p.pct,
			ProfitAmount:   input.Profit,
			Amount:         amount,
			MonthRef:       monthRef,
			Status:         bonusStatusAccrued,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record referral bonus")
		}
		if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
			UserID:        p.receiver,
			Type:          enums.TransactionTypeReferral,
			Amount:        amount,
			BalanceBefore: portfolio.ReferralBonus,
			BalanceAfter:  portfolio.ReferralBonus.Add(amount),
			FundSource:    enums.FundSourceReferralBonus.String(),
			ReferenceType: referenceProject,
			ReferenceID:   input.ProjectID,
			Description:   fmt.Sprintf("Referral bonus level %d from user %d", p.level, investor.ID),
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record referral ledger entry")
		}

		outcome.Shares = append(outcome.Shares, Share{ReceiverID: p.receiver, Level: p.level, Percentage: p.pct, Amount: amount})
		outcome.Total = outcome.Total.Add(amount)
	}

	if len(outcome.Shares) == 0 {
		return outcome, nil
	}
	shares := make([]payloads.BonusShare, 0, len(outcome.Shares))
	for _, share := range outcome.Shares {
		shares = append(shares, payloads.BonusShare{
			ReceiverID: share.ReceiverID,
			Level:      share.Level,
			Percentage: share.Percentage,
			Amount:     share.Amount,
		})
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReferralBonusDistributed,
		AggregateType: enums.AggregateUser,
		AggregateID:   investor.ID,
		Data: payloads.ReferralBonusDistributedEvent{
			InvestorID:   investor.ID,
			ProjectID:    input.ProjectID,
			InvestmentID: input.InvestmentID,
			ProfitAmount: input.Profit,
			Bonuses:      shares,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit referral event")
	}
	return outcome, nil
}

// Receivers returns every account DistributeTx may credit for the given
// investors: their existing referrers and the fallback account. Each
// receiver has a portfolio when it returns.
func (s *service) Receivers(ctx context.Context, tx *gorm.DB, investorIDs []int64) ([]int64, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	usersRepo := s.users.WithTx(tx)
	fallbackID, err := s.fallbackAccount(ctx, usersRepo)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{fallbackID: true}
	receivers := []int64{fallbackID}
	for _, id := range investorIDs {
		investor, err := usersRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load investor")
		}
		if investor.ReferredBy == nil || seen[*investor.ReferredBy] {
			continue
		}
		if _, err := usersRepo.FindByID(ctx, *investor.ReferredBy); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referrer")
		}
		seen[*investor.ReferredBy] = true
		receivers = append(receivers, *investor.ReferredBy)
	}

	portfolioRepo := s.portfolios.WithTx(tx)
	for _, id := range receivers {
		if err := portfolioRepo.Ensure(ctx, id); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure receiver portfolio")
		}
	}
	slices.Sort(receivers)
	return receivers, nil
}

// Observe records committed accruals. Call it only after the transaction
// that produced the outcome has committed.
func (s *service) Observe(outcome *BonusOutcome) {
	if outcome == nil {
		return
	}
	for _, share := range outcome.Shares {
		receiver := receiverReferrer
		if share.Level == models.ReferralLevelFallback {
			receiver = receiverFallback
		}
		s.metrics.ObserveBonus(receiver, share.Amount)
	}
}

func (s *service) fallbackAccount(ctx context.Context, usersRepo *users.Repository) (int64, error) {
	if s.cfg.FallbackUserID > 0 {
		if _, err := usersRepo.FindByID(ctx, s.cfg.FallbackUserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, pkgerrors.New(pkgerrors.CodeInternal, "configured referral fallback account does not exist")
			}
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fallback account")
		}
		return s.cfg.FallbackUserID, nil
	}
	admin, err := usersRepo.OldestAdmin(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeInternal, "no referral fallback account available")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fallback admin")
	}
	return admin.ID, nil
}

func (s *service) Network(ctx context.Context, userID int64, maxDepth int) ([]NetworkMember, error) {
	if maxDepth <= 0 {
		maxDepth = s.cfg.NetworkMaxDepth
	}
	if maxDepth <= 0 {
		maxDepth = defaultNetworkDepth
	}
	rows, err := s.repo.Downline(ctx, userID, maxDepth)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral network")
	}
	if rows == nil {
		rows = []NetworkMember{}
	}
	return rows, nil
}

func (s *service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	direct, err := s.repo.CountDirect(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count direct referrals")
	}
	network, err := s.Network(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	earned, err := s.repo.TotalEarned(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum referral bonus")
	}
	return &Stats{
		ReferralCode:    user.ReferralCode,
		DirectReferrals: direct,
		NetworkSize:     len(network),
		TotalEarned:     earned,
	}, nil
}

func (s *service) ListBonuses(ctx context.Context, userID int64, params pagination.Params) (*BonusList, error) {
	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListBonuses(ctx, userID, before, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list referral bonuses")
	}
	page, next := pagination.Trim(rows, params.Limit, func(b models.ReferralBonus) int64 { return b.ID })
	return &BonusList{Items: page, NextCursor: next}, nil
}

// ValidateReferrer rejects self-referral and any link that would close a
// loop, by walking the referrer's upline.
func (s *service) ValidateReferrer(ctx context.Context, userID, referrerID int64) error {
	return validateUpline(ctx, userID, referrerID, s.users.FindByID)
}

// AssignReferrer links an existing user to a referrer. Both rows are locked in
// ascending id order and the upline is walked with row locks, so two crossing
// assignments cannot both pass the cycle check.
func (s *service) AssignReferrer(ctx context.Context, userID, referrerID int64) error {
	if referrerID == userID {
		return pkgerrors.New(pkgerrors.CodeReferralCycle, "users cannot refer themselves")
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		usersRepo := s.users.WithTx(tx)
		ids := []int64{userID, referrerID}
		if referrerID < userID {
			ids[0], ids[1] = referrerID, userID
		}
		for _, id := range ids {
			if _, err := usersRepo.LockByID(ctx, id); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					if id == userID {
						return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
					}
					return pkgerrors.New(pkgerrors.CodeValidation, "referrer not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user")
			}
		}
		if err := validateUpline(ctx, userID, referrerID, usersRepo.LockByID); err != nil {
			return err
		}
		if err := usersRepo.SetReferrer(ctx, userID, &referrerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign referrer")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":     userID,
		"referrer_id": referrerID,
	}), "referrer assigned")
	return nil
}

func validateUpline(ctx context.Context, userID, referrerID int64, load func(context.Context, int64) (*models.User, error)) error {
	if referrerID == userID {
		return pkgerrors.New(pkgerrors.CodeReferralCycle, "users cannot refer themselves")
	}
	current := referrerID
	for hop := 0; hop < maxUplineHops; hop++ {
		user, err := load(ctx, current)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if hop == 0 {
					return pkgerrors.New(pkgerrors.CodeValidation, "referrer not found")
				}
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "walk referral upline")
		}
		if user.ReferredBy == nil {
			return nil
		}
		if *user.ReferredBy == userID {
			return pkgerrors.New(pkgerrors.CodeReferralCycle, "referral would create a cycle").
				WithDetails(map[string]string{"via_user_id": strconv.FormatInt(user.ID, 10)})
		}
		current = *user.ReferredBy
	}
	return pkgerrors.New(pkgerrors.CodeReferralCycle, "referral chain too deep")
}
