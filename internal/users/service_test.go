package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipimmobiliare/cip-backend/pkg/db/dbtest"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
)

func TestRepositoryLifecycle(t *testing.T) {
	env := dbtest.NewEnv(t)
	repo := NewRepository(env.Conn)
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "mario@example.com", PasswordHash: "hash", FullName: "Mario Rossi"})
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleInvestor, user.Role)
	assert.Equal(t, enums.KYCStatusUnverified, user.KYCStatus)

	code := ReferralCodeFor(user.ID)
	require.NoError(t, repo.AssignReferralCode(ctx, user.ID, code))
	byCode, err := repo.FindByReferralCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byCode.ID)

	require.NoError(t, repo.UpdateKYCStatus(ctx, user.ID, enums.KYCStatusPending))
	require.Error(t, repo.UpdateKYCStatus(ctx, user.ID, "maybe"))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.KYCStatusPending, reloaded.KYCStatus)
	require.NotNil(t, reloaded.LastLoginAt)
}

func TestReferralCodeFor(t *testing.T) {
	assert.Equal(t, "REF000042", ReferralCodeFor(42))
	assert.Equal(t, "REF1234567", ReferralCodeFor(1234567))
}

func TestOldestAdmin(t *testing.T) {
	env := dbtest.NewEnv(t)
	repo := NewRepository(env.Conn)
	ctx := context.Background()

	_, err := repo.OldestAdmin(ctx)
	require.Error(t, err)

	dbtest.SeedUser(t, env.Conn, "investor@example.com")
	first := dbtest.SeedUser(t, env.Conn, "admin1@example.com", dbtest.AsAdmin())
	dbtest.SeedUser(t, env.Conn, "admin2@example.com", dbtest.AsAdmin())

	admin, err := repo.OldestAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, admin.ID)
}

func TestServiceSetVIP(t *testing.T) {
	env := dbtest.NewEnv(t)
	repo := NewRepository(env.Conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	user := dbtest.SeedUser(t, env.Conn, "vip@example.com")

	updated, err := svc.SetVIP(context.Background(), user.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsVIP)

	_, err = svc.SetVIP(context.Background(), 9999, true)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
