package profits

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/ledger"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/internal/referrals"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	"github.com/cipimmobiliare/cip-backend/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *dbtest.Env) {
	t.Helper()
	env := dbtest.NewEnv(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(env.Conn))
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(env.Conn), logg)
	portfolioRepo := portfolios.NewRepository(env.Conn)

	referralSvc, err := referrals.NewService(referrals.ServiceParams{
		DB:         env.Client,
		Repo:       referrals.NewRepository(env.Conn),
		Users:      users.NewRepository(env.Conn),
		Portfolios: portfolioRepo,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Config:     config.ReferralConfig{},
		Logger:     logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:          env.Client,
		Projects:    projects.NewRepository(env.Conn),
		Investments: investments.NewRepository(env.Conn),
		Portfolios:  portfolioRepo,
		Ledger:      ledgerSvc,
		Referrals:   referralSvc,
		Outbox:      emitter,
		Logger:      logg,
	})
	require.NoError(t, err)
	return svc, env
}

func TestSellProjectSettlesInvestors(t *testing.T) {
	svc, env := newTestService(t)
	admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	referrer := dbtest.SeedUser(t, env.Conn, "referrer@example.com")
	a := dbtest.SeedUser(t, env.Conn, "a@example.com", dbtest.ReferredBy(referrer.ID))
	b := dbtest.SeedUser(t, env.Conn, "b@example.com")
	project := dbtest.SeedProject(t, env.Conn, "1000", "1000", "100")
	dbtest.SeedPortfolio(t, env.Conn, a.ID, dbtest.Balances{InvestedCapital: "600"})
	dbtest.SeedPortfolio(t, env.Conn, b.ID, dbtest.Balances{FreeCapital: "50", InvestedCapital: "400"})
	dbtest.SeedInvestment(t, env.Conn, a.ID, project.ID, "600")
	dbtest.SeedInvestment(t, env.Conn, b.ID, project.ID, "400")

	summary, err := svc.SellProject(context.Background(), project.ID, dbtest.D("1200"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SettledCount)
	dbtest.RequireDecimal(t, "200", summary.TotalProfit)

	pa := dbtest.ReloadPortfolio(t, env.Conn, a.ID)
	dbtest.RequireDecimal(t, "600", pa.FreeCapital)
	dbtest.RequireDecimal(t, "120", pa.Profits)
	dbtest.RequireDecimal(t, "0", pa.InvestedCapital)

	pb := dbtest.ReloadPortfolio(t, env.Conn, b.ID)
	dbtest.RequireDecimal(t, "450", pb.FreeCapital)
	dbtest.RequireDecimal(t, "80", pb.Profits)

	dbtest.RequireDecimal(t, "3.6", dbtest.ReloadPortfolio(t, env.Conn, referrer.ID).ReferralBonus)
	dbtest.RequireDecimal(t, "4", dbtest.ReloadPortfolio(t, env.Conn, admin.ID).ReferralBonus)
	dbtest.RequireDecimal(t, "7.6", summary.TotalBonusPaid)

	sold := dbtest.ReloadProject(t, env.Conn, project.ID)
	assert.Equal(t, enums.ProjectStatusSold, sold.Status)
	require.NotNil(t, sold.SalePrice)
	dbtest.RequireDecimal(t, "1200", *sold.SalePrice)
	assert.NotNil(t, sold.SoldAt)

	var completed int64
	require.NoError(t, env.Conn.Model(&models.Investment{}).Where("status = ?", enums.InvestmentStatusCompleted).Count(&completed).Error)
	assert.Equal(t, int64(2), completed)

	var roi int64
	require.NoError(t, env.Conn.Model(&models.PortfolioTransaction{}).Where("type = ?", enums.TransactionTypeROI).Count(&roi).Error)
	assert.Equal(t, int64(2), roi)
}

func TestSellProjectAtLossPaysNoProfit(t *testing.T) {
	svc, env := newTestService(t)
	dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	project := dbtest.SeedProject(t, env.Conn, "1000", "1000", "100")
	dbtest.SeedPortfolio(t, env.Conn, a.ID, dbtest.Balances{InvestedCapital: "1000"})
	dbtest.SeedInvestment(t, env.Conn, a.ID, project.ID, "1000")

	summary, err := svc.SellProject(context.Background(), project.ID, dbtest.D("800"))
	require.NoError(t, err)
	assert.True(t, summary.TotalProfit.IsZero())
	assert.True(t, summary.TotalBonusPaid.IsZero())

	pa := dbtest.ReloadPortfolio(t, env.Conn, a.ID)
	dbtest.RequireDecimal(t, "1000", pa.FreeCapital)
	dbtest.RequireDecimal(t, "0", pa.Profits)

	var bonuses int64
	require.NoError(t, env.Conn.Model(&models.ReferralBonus{}).Count(&bonuses).Error)
	assert.Zero(t, bonuses)
}

func TestSellProjectCreditsReferrerWhoAlsoInvested(t *testing.T) {
	svc, env := newTestService(t)
	admin := dbtest.SeedUser(t, env.Conn, "admin@example.com", dbtest.AsAdmin())
	referrer := dbtest.SeedUser(t, env.Conn, "referrer@example.com")
	a := dbtest.SeedUser(t, env.Conn, "a@example.com", dbtest.ReferredBy(referrer.ID))
	project := dbtest.SeedProject(t, env.Conn, "1000", "1000", "100")
	dbtest.SeedPortfolio(t, env.Conn, a.ID, dbtest.Balances{InvestedCapital: "500"})
	dbtest.SeedPortfolio(t, env.Conn, referrer.ID, dbtest.Balances{InvestedCapital: "500"})
	dbtest.SeedInvestment(t, env.Conn, a.ID, project.ID, "500")
	dbtest.SeedInvestment(t, env.Conn, referrer.ID, project.ID, "500")

	summary, err := svc.SellProject(context.Background(), project.ID, dbtest.D("1200"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SettledCount)

	pr := dbtest.ReloadPortfolio(t, env.Conn, referrer.ID)
	dbtest.RequireDecimal(t, "500", pr.FreeCapital)
	dbtest.RequireDecimal(t, "100", pr.Profits)
	dbtest.RequireDecimal(t, "3", pr.ReferralBonus)
	dbtest.RequireDecimal(t, "4", dbtest.ReloadPortfolio(t, env.Conn, admin.ID).ReferralBonus)
}

func TestSellProjectAtLossNeedsNoFallbackAccount(t *testing.T) {
	svc, env := newTestService(t)
	a := dbtest.SeedUser(t, env.Conn, "a@example.com")
	project := dbtest.SeedProject(t, env.Conn, "1000", "1000", "100")
	dbtest.SeedPortfolio(t, env.Conn, a.ID, dbtest.Balances{InvestedCapital: "1000"})
	dbtest.SeedInvestment(t, env.Conn, a.ID, project.ID, "1000")

	summary, err := svc.SellProject(context.Background(), project.ID, dbtest.D("900"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SettledCount)
	dbtest.RequireDecimal(t, "1000", dbtest.ReloadPortfolio(t, env.Conn, a.ID).FreeCapital)
}

func TestSellProjectRejectsClosedProjects(t *testing.T) {
	svc, env := newTestService(t)
	project := dbtest.SeedProject(t, env.Conn, "1000", "0", "100")
	require.NoError(t, env.Conn.Model(project).Update("status", enums.ProjectStatusCancelled).Error)

	_, err := svc.SellProject(context.Background(), project.ID, dbtest.D("1000"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	_, err = svc.SellProject(context.Background(), 9999, dbtest.D("1000"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeProjectNotFound))

	_, err = svc.SellProject(context.Background(), project.ID, dbtest.D("0"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
