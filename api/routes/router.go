package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cipimmobiliare/cip-backend/api/controllers"
	"github.com/cipimmobiliare/cip-backend/api/middleware"
	"github.com/cipimmobiliare/cip-backend/internal/auth"
	"github.com/cipimmobiliare/cip-backend/internal/deposits"
	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/kyc"
	"github.com/cipimmobiliare/cip-backend/internal/notifications"
	"github.com/cipimmobiliare/cip-backend/internal/portfolios"
	"github.com/cipimmobiliare/cip-backend/internal/profits"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/internal/referrals"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/internal/withdrawals"
	"github.com/cipimmobiliare/cip-backend/pkg/config"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
	pkgredis "github.com/cipimmobiliare/cip-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs: replay records, auth
// throttling and the access token blacklist.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	RevokeAccessToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Services bundles everything the router mounts. Nil services answer with
// INTERNAL_ERROR instead of panicking.
type Services struct {
	Auth          auth.Service
	Register      auth.RegisterService
	AdminRegister auth.AdminRegisterService
	Users         users.Service
	Projects      projects.Service
	Investments   investments.Service
	Portfolios    portfolios.Service
	Profits       profits.Service
	Referrals     referrals.Service
	Deposits      deposits.Service
	Withdrawals   withdrawals.Service
	KYC           kyc.Service
	Notifications notifications.Service
}

// Dependencies are the infrastructure handles the router pings or uses.
type Dependencies struct {
	DB      controllers.Pinger
	Redis   controllers.Pinger
	Store   Store
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	store := deps.Store
	var idempotencyStore pkgredis.IdempotencyStore
	var revocations middleware.RevocationChecker
	var revoker controllers.TokenRevoker
	if store != nil {
		idempotencyStore = store
		revocations = store
		revoker = store
	}

	ready := map[string]controllers.Pinger{}
	if deps.DB != nil {
		ready["database"] = deps.DB
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, ready, logg))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/projects", controllers.ListProjects(svc.Projects, false, logg))
		r.Get("/projects/{projectId}", controllers.GetProject(svc.Projects, false, logg))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, store, logg)).Post("/login", controllers.AuthLogin(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, store, logg)).Post("/register", controllers.AuthRegister(svc.Register, svc.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, revocations, logg)).Post("/logout", controllers.AuthLogout(revoker, logg))
	})

	r.With(middleware.Auth(cfg.JWT, revocations, logg)).Get("/api/me", controllers.Me(svc.Users, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, revocations, logg))
		r.Use(middleware.RequireRole(enums.UserRoleInvestor, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/api/investments", func(r chi.Router) {
			r.Post("/", controllers.PlaceInvestment(svc.Investments, svc.Users, logg))
			r.Get("/", controllers.ListMyInvestments(svc.Investments, logg))
		})

		r.Route("/api/portfolio", func(r chi.Router) {
			r.Get("/", controllers.PortfolioOverview(svc.Portfolios, logg))
			r.Get("/transactions", controllers.PortfolioTransactions(svc.Portfolios, logg))
		})

		r.Route("/api/deposits", func(r chi.Router) {
			r.Post("/", controllers.CreateDeposit(svc.Deposits, logg))
			r.Get("/", controllers.ListMyDeposits(svc.Deposits, logg))
		})

		r.Route("/api/withdrawals", func(r chi.Router) {
			r.Post("/", controllers.CreateWithdrawal(svc.Withdrawals, logg))
			r.Get("/", controllers.ListMyWithdrawals(svc.Withdrawals, logg))
		})

		r.Route("/api/kyc", func(r chi.Router) {
			r.Post("/", controllers.SubmitKYC(svc.KYC, logg))
			r.Get("/", controllers.KYCStatus(svc.KYC, logg))
		})

		r.Route("/api/referrals", func(r chi.Router) {
			r.Get("/network", controllers.ReferralNetwork(svc.Referrals, logg))
			r.Get("/stats", controllers.ReferralStats(svc.Referrals, logg))
			r.Get("/bonuses", controllers.ReferralBonuses(svc.Referrals, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, store, logg)).Post("/auth/login", controllers.AdminAuthLogin(svc.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, revocations, logg))
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Post("/admins", controllers.AdminRegister(svc.AdminRegister, logg))
			r.Put("/users/{userId}/vip", controllers.SetUserVIP(svc.Users, logg))
			r.Put("/users/{userId}/referrer", controllers.AssignReferrer(svc.Referrals, logg))

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", controllers.ListProjects(svc.Projects, true, logg))
				r.Post("/", controllers.CreateProject(svc.Projects, logg))
				r.Get("/{projectId}", controllers.GetProject(svc.Projects, true, logg))
				r.Patch("/{projectId}", controllers.UpdateProject(svc.Projects, logg))
				r.Post("/{projectId}/publish", controllers.PublishProject(svc.Projects, logg))
				r.Post("/{projectId}/complete", controllers.CompleteProject(svc.Projects, logg))
				r.Post("/{projectId}/cancel", controllers.CancelProject(svc.Investments, logg))
				r.Post("/{projectId}/sell", controllers.SellProject(svc.Profits, logg))
			})

			r.Route("/deposits", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingDeposits(svc.Deposits, logg))
				r.Post("/{depositId}/approve", controllers.ApproveDeposit(svc.Deposits, logg))
				r.Post("/{depositId}/reject", controllers.RejectDeposit(svc.Deposits, logg))
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingWithdrawals(svc.Withdrawals, logg))
				r.Post("/{withdrawalId}/approve", controllers.ApproveWithdrawal(svc.Withdrawals, logg))
				r.Post("/{withdrawalId}/reject", controllers.RejectWithdrawal(svc.Withdrawals, logg))
			})

			r.Route("/kyc", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingKYC(svc.KYC, logg))
				r.Post("/{requestId}/approve", controllers.ApproveKYC(svc.KYC, logg))
				r.Post("/{requestId}/reject", controllers.RejectKYC(svc.KYC, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			})
		})
	})

	return r
}
