package auth

import (
	"context"
	"testing"
	"time"

	pkgAuth "github.com/cipimmobiliare/cip-backend/pkg/auth"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/security"
	"gorm.io/gorm"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "cip", ExpirationMinutes: 30}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user        *models.User
	lastLoginID int64
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	s.lastLoginID = id
	return nil
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubUserRepo) {
	t.Helper()
	repo := &stubUserRepo{user: user}
	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: testJWTConfig()})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, repo
}

func TestServiceLoginMintsInvestorToken(t *testing.T) {
	user := &models.User{
		ID:           7,
		Email:        "investor@example.com",
		PasswordHash: mustHashPassword(t, "investor-secret"),
		FullName:     "Giulia Bianchi",
		Role:         enums.UserRoleInvestor,
		KYCStatus:    enums.KYCStatusVerified,
	}
	svc, repo := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " Investor@Example.com ", Password: "investor-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.lastLoginID != user.ID {
		t.Fatalf("expected last login recorded for %d, got %d", user.ID, repo.lastLoginID)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 1800 {
		t.Fatalf("unexpected token metadata: %s %d", resp.TokenType, resp.ExpiresIn)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enums.UserRoleInvestor {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.KYCStatus != enums.KYCStatusVerified {
		t.Fatalf("expected verified kyc claim, got %s", claims.KYCStatus)
	}
	if resp.User == nil || resp.User.LastLoginAt == nil {
		t.Fatalf("expected user with last login in response")
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           1,
		Email:        "investor@example.com",
		PasswordHash: mustHashPassword(t, "right-password"),
		Role:         enums.UserRoleInvestor,
		KYCStatus:    enums.KYCStatusUnverified,
	}
	svc, _ := buildTestService(t, user)

	cases := []LoginRequest{
		{Email: "investor@example.com", Password: "wrong-password"},
		{Email: "missing@example.com", Password: "right-password"},
		{Email: "", Password: "right-password"},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		if !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}
}

func TestServiceAdminLoginRequiresAdminRole(t *testing.T) {
	user := &models.User{
		ID:           3,
		Email:        "investor@example.com",
		PasswordHash: mustHashPassword(t, "investor-secret"),
		Role:         enums.UserRoleInvestor,
		KYCStatus:    enums.KYCStatusVerified,
	}
	svc, _ := buildTestService(t, user)

	if _, err := svc.AdminLogin(context.Background(), LoginRequest{Email: user.Email, Password: "investor-secret"}); !pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	user.Role = enums.UserRoleAdmin
	resp, err := svc.AdminLogin(context.Background(), LoginRequest{Email: user.Email, Password: "investor-secret"})
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role claim, got %s", claims.Role)
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{JWTConfig: testJWTConfig()}); err == nil {
		t.Fatalf("expected error without user repo")
	}
	if _, err := NewService(ServiceParams{UserRepo: &stubUserRepo{}}); err == nil {
		t.Fatalf("expected error without jwt secret")
	}
}
