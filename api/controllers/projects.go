package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cipimmobiliare/cip-backend/api/responses"
	"github.com/cipimmobiliare/cip-backend/api/validators"
	"github.com/cipimmobiliare/cip-backend/internal/profits"
	"github.com/cipimmobiliare/cip-backend/internal/projects"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/logger"
)

type createProjectRequest struct {
	Code          string          `json:"code" validate:"required,max=32"`
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description"`
	Location      string          `json:"location" validate:"max=200"`
	PropertyType  string          `json:"property_type" validate:"max=64"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	MinInvestment decimal.Decimal `json:"min_investment"`
	ExpectedROI   decimal.Decimal `json:"expected_roi"`
}

type updateProjectRequest struct {
	Title         *string          `json:"title,omitempty" validate:"omitempty,max=200"`
	Description   *string          `json:"description,omitempty"`
	Location      *string          `json:"location,omitempty" validate:"omitempty,max=200"`
	PropertyType  *string          `json:"property_type,omitempty" validate:"omitempty,max=64"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	MinInvestment *decimal.Decimal `json:"min_investment,omitempty"`
	ExpectedROI   *decimal.Decimal `json:"expected_roi,omitempty"`
}

type sellProjectRequest struct {
	SalePrice decimal.Decimal `json:"sale_price"`
}

// ListProjects serves the public catalogue. Admin callers pass includeHidden
// to see drafts and closed projects too.
func ListProjects(svc projects.Service, includeHidden bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "projects service unavailable"))
			return
		}

		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var statuses []enums.ProjectStatus
		for _, raw := range splitCSV(r.URL.Query().Get("status")) {
			status, err := enums.ParseProjectStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			statuses = append(statuses, status)
		}

		list, err := svc.List(r.Context(), params, statuses, includeHidden)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetProject(svc projects.Service, includeHidden bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "projects service unavailable"))
			return
		}

		projectID, err := validators.ParsePathID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := svc.Get(r.Context(), projectID, includeHidden)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, project)
	}
}

// CreateProject stores a new draft project.
func CreateProject(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "projects service unavailable"))
			return
		}

		var body createProjectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := svc.Create(r.Context(), projects.CreateInput{
			Code:          body.Code,
			Title:         validators.SanitizeString(body.Title, 200),
			Description:   body.Description,
			Location:      body.Location,
			PropertyType:  body.PropertyType,
			TotalAmount:   body.TotalAmount,
			MinInvestment: body.MinInvestment,
			ExpectedROI:   body.ExpectedROI,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, project)
	}
}

func UpdateProject(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "projects service unavailable"))
			return
		}

		projectID, err := validators.ParsePathID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateProjectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := svc.Update(r.Context(), projectID, projects.UpdateInput{
			Title:         body.Title,
			Description:   body.Description,
			Location:      body.Location,
			PropertyType:  body.PropertyType,
			TotalAmount:   body.TotalAmount,
			MinInvestment: body.MinInvestment,
			ExpectedROI:   body.ExpectedROI,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, project)
	}
}

// PublishProject opens a draft for investment.
func PublishProject(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return projectTransition(svc, logg, func(ctx context.Context, id int64) (*projects.ProjectDTO, error) {
		return svc.Publish(ctx, id)
	})
}

// CompleteProject closes an active project to new investment.
func CompleteProject(svc projects.Service, logg *logger.Logger) http.HandlerFunc {
	return projectTransition(svc, logg, func(ctx context.Context, id int64) (*projects.ProjectDTO, error) {
		return svc.Complete(ctx, id)
	})
}

func projectTransition(svc projects.Service, logg *logger.Logger, fn func(ctx context.Context, id int64) (*projects.ProjectDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "projects service unavailable"))
			return
		}

		projectID, err := validators.ParsePathID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := fn(r.Context(), projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, project)
	}
}

// SellProject settles a sold property across its investors.
func SellProject(svc profits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profits service unavailable"))
			return
		}

		projectID, err := validators.ParsePathID(r, "projectId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body sellProjectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.SalePrice.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sale_price must be positive"))
			return
		}

		summary, err := svc.SellProject(r.Context(), projectID, body.SalePrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
