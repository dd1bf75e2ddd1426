package referrals

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

func newTestService(t *testing.T, cfg config.ReferralConfig) (Service, *dbtest.Env) {
	t.Helper()
	env := dbtest.NewEnv(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(env.Conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:         env.Client,
		Repo:       NewRepository(env.Conn),
		Users:      users.NewRepository(env.Conn),
		Portfolios: portfolios.NewRepository(env.Conn),
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(env.Conn), logg),
		Config:     cfg,
		Logger:     logg,
		Clock:      func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, env
}

func TestDistributeWithoutReferrerPaysFallbackOnly(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	investor := dbtest.SeedUser(t, env.Conn, "investor@example.com")

	outcome, err := svc.DistributeReferralBonus(context.Background(), investor.ID, dbtest.D("1000"), 1)
	require.NoError(t, err)
	require.Len(t, outcome.Shares, 1)
	assert.Equal(t, admin.ID, outcome.Shares[0].ReceiverID)
	assert.Equal(t, models.ReferralLevelFallback, outcome.Shares[0].Level)
	dbtest.RequireDecimal(t, "20", outcome.Total)
	dbtest.RequireDecimal(t, "20", dbtest.ReloadPortfolio(t, env.Conn, admin.ID).ReferralBonus)

	var bonus models.ReferralBonus
	require.NoError(t, env.Conn.First(&bonus).Error)
	assert.Equal(t, "2026-03", bonus.MonthRef)
	assert.Equal(t, investor.ID, bonus.SourceUserID)
}

func TestDistributeWithReferrer(t *testing.T) {
	cases := []struct {
		name     string
		vip      bool
		expected string
	}{
		{name: "standard referrer", expected: "30"},
		{name: "vip referrer", vip: true, expected: "50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, env := newTestService(t, config.ReferralConfig{})
			admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
			opts := []dbtest.UserOption{}
			if tc.vip {
				opts = append(opts, dbtest.AsVIP())
			}
			referrer := dbtest.SeedUser(t, env.Conn, "referrer@example.com", opts...)
			dbtest.SeedPortfolio(t, env.Conn, referrer.ID, dbtest.Balances{ReferralBonus: "10"})
			investor := dbtest.SeedUser(t, env.Conn, "investor@example.com", dbtest.ReferredBy(referrer.ID))

			outcome, err := svc.DistributeReferralBonus(context.Background(), investor.ID, dbtest.D("1000"), 7)
			require.NoError(t, err)
			require.Len(t, outcome.Shares, 2)
			assert.Equal(t, referrer.ID, outcome.Shares[0].ReceiverID)
			dbtest.RequireDecimal(t, tc.expected, outcome.Shares[0].Amount)
			dbtest.RequireDecimal(t, "20", outcome.Shares[1].Amount)

			want := dbtest.D("10").Add(dbtest.D(tc.expected))
			dbtest.RequireDecimal(t, want.String(), dbtest.ReloadPortfolio(t, env.Conn, referrer.ID).ReferralBonus, "accrual is additive")
			dbtest.RequireDecimal(t, "20", dbtest.ReloadPortfolio(t, env.Conn, admin.ID).ReferralBonus)

			var entries int64
			require.NoError(t, env.Conn.Model(&models.PortfolioTransaction{}).Where("type = ?", enums.TransactionTypeReferral).Count(&entries).Error)
			assert.Equal(t, int64(2), entries)

			var event models.OutboxEvent
			require.NoError(t, env.Conn.First(&event).Error)
			assert.Equal(t, enums.EventReferralBonusDistributed, event.EventType)
			assert.Equal(t, investor.ID, event.AggregateID)
		})
	}
}

func TestDistributeUsesConfiguredFallback(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{FallbackUserID: 2})
	dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	platform := dbtest.SeedUser(t, env.Conn, "platform@example.com")
	investor := dbtest.SeedUser(t, env.Conn, "investor@example.com")
	require.Equal(t, int64(2), platform.ID)

	outcome, err := svc.DistributeReferralBonus(context.Background(), investor.ID, dbtest.D("500"), 1)
	require.NoError(t, err)
	require.Len(t, outcome.Shares, 1)
	assert.Equal(t, platform.ID, outcome.Shares[0].ReceiverID)
	dbtest.RequireDecimal(t, "10", outcome.Total)
}

func TestDistributeNonPositiveProfitIsEmpty(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	investor := dbtest.SeedUser(t, env.Conn, "investor@example.com")

	for _, profit := range []string{"0", "-50"} {
		outcome, err := svc.DistributeReferralBonus(context.Background(), investor.ID, dbtest.D(profit), 1)
		require.NoError(t, err)
		assert.Empty(t, outcome.Shares)
		assert.True(t, outcome.Total.IsZero())
	}
}

func TestDistributeWithoutFallbackFails(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	investor := dbtest.SeedUser(t, env.Conn, "investor@example.com")

	_, err := svc.DistributeReferralBonus(context.Background(), investor.ID, dbtest.D("100"), 1)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal))
}

func TestDistributeTxRollsBackWithOuterTransaction(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	investor := dbtest.SeedUser(t, env.Conn, "investor@example.com")
	boom := errors.New("later step failed")

	err := env.Client.WithTx(context.Background(), func(tx *gorm.DB) error {
		outcome, err := svc.DistributeTx(context.Background(), tx, BonusInput{UserID: investor.ID, Profit: dbtest.D("1000"), ProjectID: 1})
		require.NoError(t, err)
		require.Len(t, outcome.Shares, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var bonuses int64
	require.NoError(t, env.Conn.Model(&models.ReferralBonus{}).Count(&bonuses).Error)
	assert.Zero(t, bonuses)
	var portfolios int64
	require.NoError(t, env.Conn.Model(&models.Portfolio{}).Where("user_id = ?", admin.ID).Count(&portfolios).Error)
	assert.Zero(t, portfolios)
}

func TestReceiversListsReferrersAndFallbackAscending(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	referrer := dbtest.SeedUser(t, env.Conn, "referrer@example.com")
	a := dbtest.SeedUser(t, env.Conn, "a@example.com", dbtest.ReferredBy(referrer.ID))
	b := dbtest.SeedUser(t, env.Conn, "b@example.com", dbtest.ReferredBy(referrer.ID))
	loner := dbtest.SeedUser(t, env.Conn, "loner@example.com")

	var receivers []int64
	err := env.Client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		receivers, err = svc.Receivers(context.Background(), tx, []int64{a.ID, b.ID, loner.ID})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{admin.ID, referrer.ID}, receivers)

	var count int64
	require.NoError(t, env.Conn.Model(&models.Portfolio{}).Where("user_id IN ?", receivers).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestNetworkAndStats(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{NetworkMaxDepth: 2})
	dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	root := dbtest.SeedUser(t, env.Conn, "root@example.com")
	child := dbtest.SeedUser(t, env.Conn, "child@example.com", dbtest.ReferredBy(root.ID))
	dbtest.SeedUser(t, env.Conn, "sibling@example.com", dbtest.ReferredBy(root.ID))
	grandchild := dbtest.SeedUser(t, env.Conn, "grandchild@example.com", dbtest.ReferredBy(child.ID))
	dbtest.SeedUser(t, env.Conn, "deep@example.com", dbtest.ReferredBy(grandchild.ID))

	project := dbtest.SeedProject(t, env.Conn, "10000", "0", "100")
	dbtest.SeedInvestment(t, env.Conn, child.ID, project.ID, "750")

	network, err := svc.Network(context.Background(), root.ID, 0)
	require.NoError(t, err)
	require.Len(t, network, 3, "depth is capped by configuration")
	assert.Equal(t, child.ID, network[0].UserID)
	assert.Equal(t, 1, network[0].Level)
	dbtest.RequireDecimal(t, "750", network[0].InvestedTotal)
	assert.Equal(t, 2, network[2].Level)

	deeper, err := svc.Network(context.Background(), root.ID, 5)
	require.NoError(t, err)
	assert.Len(t, deeper, 4)

	_, err = svc.DistributeReferralBonus(context.Background(), child.ID, dbtest.D("1000"), project.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DirectReferrals)
	assert.Equal(t, 3, stats.NetworkSize)
	dbtest.RequireDecimal(t, "30", stats.TotalEarned)

	bonuses, err := svc.ListBonuses(context.Background(), root.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, bonuses.Items, 1)
}

func TestValidateReferrer(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	b := dbtest.SeedUser(t, env.Conn, "b@example.com", dbtest.ReferredBy(a.ID))
	c := dbtest.SeedUser(t, env.Conn, "c@example.com", dbtest.ReferredBy(b.ID))
	d := dbtest.SeedUser(t, env.Conn, "d@example.com")
	ctx := context.Background()

	assert.True(t, pkgerrors.Is(svc.ValidateReferrer(ctx, a.ID, a.ID), pkgerrors.CodeReferralCycle))
	assert.True(t, pkgerrors.Is(svc.ValidateReferrer(ctx, a.ID, c.ID), pkgerrors.CodeReferralCycle))
	assert.True(t, pkgerrors.Is(svc.ValidateReferrer(ctx, a.ID, 9999), pkgerrors.CodeValidation))
	assert.NoError(t, svc.ValidateReferrer(ctx, d.ID, c.ID))

	require.NoError(t, svc.AssignReferrer(ctx, d.ID, c.ID))
	reloaded, err := users.NewRepository(env.Conn).FindByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ReferredBy)
	assert.Equal(t, c.ID, *reloaded.ReferredBy)

	assert.True(t, pkgerrors.Is(svc.AssignReferrer(ctx, a.ID, d.ID), pkgerrors.CodeReferralCycle))
}

func TestAssignReferrerRejectsMissingRows(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	ctx := context.Background()

	assert.True(t, pkgerrors.Is(svc.AssignReferrer(ctx, 9999, a.ID), pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.Is(svc.AssignReferrer(ctx, a.ID, 9999), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.Is(svc.AssignReferrer(ctx, a.ID, a.ID), pkgerrors.CodeReferralCycle))
}

func TestCrossingReferrerAssignmentsKeepTreeAcyclic(t *testing.T) {
	svc, env := newTestService(t, config.ReferralConfig{})
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	b := dbtest.SeedUser(t, env.Conn, "b@example.com")
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	pairs := [][2]int64{{a.ID, b.ID}, {b.ID, a.ID}}
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, userID, referrerID int64) {
			defer wg.Done()
			<-start
			errs[i] = svc.AssignReferrer(ctx, userID, referrerID)
		}(i, pair[0], pair[1])
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReferralCycle), err)
	}
	assert.Equal(t, 1, succeeded)

	repo := users.NewRepository(env.Conn)
	ra, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	rb, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ra.ReferredBy != nil && rb.ReferredBy != nil, "both links committed")
}
