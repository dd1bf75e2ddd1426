package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/api/middleware"
	"github.com/cipimmobiliare/cip-backend/api/responses"
	"github.com/cipimmobiliare/cip-backend/api/validators"
	"github.com/cipimmobiliare/cip-backend/internal/investments"
	"github.com/cipimmobiliare/cip-backend/internal/users"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
)

type placeInvestmentRequest struct {
	ProjectID  int64  `json:"project_id" validate:"required,min=1"`
	Amount     string `json:"amount" validate:"required"`
	FundSource string `json:"fund_source" validate:"required"`
}

type placeInvestmentResponse struct {
	Success       bool                      `json:"success"`
	InvestmentID  int64                     `json:"investment_id"`
	FundSource    enums.FundSource          `json:"fund_source"`
	ProjectUpdate investments.ProjectUpdate `json:"project_update"`
}

type cancelProjectResponse struct {
	Success       bool            `json:"success"`
	RefundedCount int             `json:"refunded_count"`
	RefundedTotal decimal.Decimal `json:"refunded_total"`
}

// PlaceInvestment commits an investment for the authenticated investor.
func PlaceInvestment(svc investments.Service, profiles users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || profiles == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "investments service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var body placeInvestmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount must be a decimal string"))
			return
		}

		source, err := enums.ParseFundSource(body.FundSource)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidFundSource, err, "invalid fund source"))
			return
		}

		profile, err := profiles.GetProfile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if profile.KYCStatus != enums.KYCStatusVerified {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeKYCRequired, "identity verification required before investing"))
			return
		}

		confirmation, err := svc.PlaceInvestment(r.Context(), investments.PlaceInput{
			UserID:     userID,
			ProjectID:  body.ProjectID,
			Amount:     amount,
			FundSource: source,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusCreated, placeInvestmentResponse{
			Success:       true,
			InvestmentID:  confirmation.InvestmentID,
			FundSource:    confirmation.FundSource,
			ProjectUpdate: confirmation.ProjectUpdate,
		})
	}
}

// ListMyInvestments pages through the caller's investments, optionally by status.
func ListMyInvestments(svc investments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "investments service unavailable"))
			return
		}

		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var statuses []enums.InvestmentStatus
		for _, raw := range splitCSV(r.URL.Query().Get("status")) {
			status, err := enums.ParseInvestmentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			statuses = append(statuses, status)
		}

		list, err := svc.ListForUser(r.Context(), middleware.UserIDFromContext(r.Context()), params, statuses)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// CancelProject refunds every active investment and marks the project cancelled.
func CancelProject(svc investments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "investments service unavailable"))
			return
		}

		projectID, err := validators.ParsePathID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.CancelProject(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, cancelProjectResponse{
			Success:       true,
			RefundedCount: summary.RefundedCount,
			RefundedTotal: summary.RefundedTotal,
		})
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
