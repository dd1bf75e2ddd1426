package dbtest

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
)

// D parses a decimal literal.
func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// UserOption customises a seeded user.
type UserOption func(*models.User)

// AsAdmin seeds an admin account.
func AsAdmin() UserOption {
	return func(u *models.User) { u.Role = enums.UserRoleAdmin }
}

// AsVIP marks the user as VIP.
func AsVIP() UserOption {
	return func(u *models.User) { u.IsVIP = true }
}

// ReferredBy links the user to a referrer.
func ReferredBy(id int64) UserOption {
	return func(u *models.User) { u.ReferredBy = &id }
}

// WithKYC sets the KYC status.
func WithKYC(status enums.KYCStatus) UserOption {
	return func(u *models.User) { u.KYCStatus = status }
}

// SeedUser inserts a verified investor unless options say otherwise.
func SeedUser(t testing.TB, conn *gorm.DB, email string, opts ...UserOption) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		FullName:     email,
		Role:         enums.UserRoleInvestor,
		KYCStatus:    enums.KYCStatusVerified,
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, conn.Create(user).Error)
	return user
}

// Balances seeds the spendable and invested sections of a portfolio.
type Balances struct {
	FreeCapital     string
	Profits         string
	ReferralBonus   string
	InvestedCapital string
}

func orZero(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	return D(v)
}

// SeedPortfolio inserts a portfolio with the given balances.
func SeedPortfolio(t testing.TB, conn *gorm.DB, userID int64, b Balances) *models.Portfolio {
	t.Helper()
	p := &models.Portfolio{
		UserID:          userID,
		FreeCapital:     orZero(b.FreeCapital),
		Profits:         orZero(b.Profits),
		ReferralBonus:   orZero(b.ReferralBonus),
		InvestedCapital: orZero(b.InvestedCapital),
	}
	require.NoError(t, conn.Create(p).Error)
	return p
}

// SeedProject inserts an active project.
func SeedProject(t testing.TB, conn *gorm.DB, total, funded, minInvestment string) *models.Project {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.Project{}).Count(&count).Error)
	p := &models.Project{
		Code:          fmt.Sprintf("PRJ-%03d", count+1),
		Title:         fmt.Sprintf("Project %d", count+1),
		TotalAmount:   D(total),
		FundedAmount:  D(funded),
		MinInvestment: D(minInvestment),
		ExpectedROI:   D("8.5"),
		Status:        enums.ProjectStatusActive,
	}
	require.NoError(t, conn.Create(p).Error)
	return p
}

// SeedInvestment inserts an active investment without touching balances.
func SeedInvestment(t testing.TB, conn *gorm.DB, userID, projectID int64, amount string) *models.Investment {
	t.Helper()
	inv := &models.Investment{
		UserID:     userID,
		ProjectID:  projectID,
		Amount:     D(amount),
		FundSource: enums.FundSourceFreeCapital,
		Status:     enums.InvestmentStatusActive,
	}
	require.NoError(t, conn.Create(inv).Error)
	return inv
}

// ReloadPortfolio fetches the current portfolio row.
func ReloadPortfolio(t testing.TB, conn *gorm.DB, userID int64) models.Portfolio {
	t.Helper()
	var p models.Portfolio
	require.NoError(t, conn.Where("user_id = ?", userID).First(&p).Error)
	return p
}

// ReloadProject fetches the current project row.
func ReloadProject(t testing.TB, conn *gorm.DB, id int64) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, conn.First(&p, id).Error)
	return p
}

// RequireDecimal compares decimals by value.
func RequireDecimal(t testing.TB, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, D(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}
