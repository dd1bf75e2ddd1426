package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cipimmobiliare/cip-backend/pkg/db"
	"github.com/cipimmobiliare/cip-backend/pkg/db/models"
	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	pkgerrors "github.com/cipimmobiliare/cip-backend/pkg/errors"
	"github.com/cipimmobiliare/cip-backend/pkg/pagination"
)

var publicStatuses = []enums.ProjectStatus{enums.ProjectStatusActive, enums.ProjectStatusCompleted}

// Service manages the project catalogue.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ProjectDTO, error)
	Update(ctx context.Context, id int64, input UpdateInput) (*ProjectDTO, error)
	Publish(ctx context.Context, id int64) (*ProjectDTO, error)
	Complete(ctx context.Context, id int64) (*ProjectDTO, error)
	Get(ctx context.Context, id int64, includeHidden bool) (*ProjectDTO, error)
	List(ctx context.Context, params pagination.Params, statuses []enums.ProjectStatus, includeHidden bool) (*ProjectList, error)
}

type service struct {
	repo Repository
}

// NewService wires the project service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("projects repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ProjectDTO, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.TotalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_amount must be positive")
	}
	if input.MinInvestment.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_investment must not be negative")
	}
	if input.MinInvestment.GreaterThan(input.TotalAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_investment exceeds total_amount")
	}

	project := &models.Project{
		Code:          code,
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Location:      strings.TrimSpace(input.Location),
		PropertyType:  strings.TrimSpace(input.PropertyType),
		TotalAmount:   input.TotalAmount,
		MinInvestment: input.MinInvestment,
		ExpectedROI:   input.ExpectedROI,
		Status:        enums.ProjectStatusDraft,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "project code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create project")
	}
	return s.Get(ctx, project.ID, true)
}

func (s *service) Update(ctx context.Context, id int64, input UpdateInput) (*ProjectDTO, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == enums.ProjectStatusSold || current.Status == enums.ProjectStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "project is closed")
	}

	fields := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
		}
		fields["title"] = title
	}
	if input.Description != nil {
		fields["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Location != nil {
		fields["location"] = strings.TrimSpace(*input.Location)
	}
	if input.PropertyType != nil {
		fields["property_type"] = strings.TrimSpace(*input.PropertyType)
	}
	if input.TotalAmount != nil {
		if !input.TotalAmount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_amount must be positive")
		}
		if input.TotalAmount.LessThan(current.FundedAmount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_amount is below funded_amount")
		}
		fields["total_amount"] = *input.TotalAmount
	}
	if input.MinInvestment != nil {
		if input.MinInvestment.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_investment must not be negative")
		}
		fields["min_investment"] = *input.MinInvestment
	}
	if input.ExpectedROI != nil {
		fields["expected_roi"] = *input.ExpectedROI
	}

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project")
	}
	return s.Get(ctx, id, true)
}

func (s *service) Publish(ctx context.Context, id int64) (*ProjectDTO, error) {
	return s.transition(ctx, id, []enums.ProjectStatus{enums.ProjectStatusDraft}, enums.ProjectStatusActive)
}

func (s *service) Complete(ctx context.Context, id int64) (*ProjectDTO, error) {
	return s.transition(ctx, id, []enums.ProjectStatus{enums.ProjectStatusActive}, enums.ProjectStatusCompleted)
}

func (s *service) transition(ctx context.Context, id int64, from []enums.ProjectStatus, to enums.ProjectStatus) (*ProjectDTO, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.repo.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update project status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("project cannot move to %s", to))
	}
	return s.Get(ctx, id, true)
}

func (s *service) Get(ctx context.Context, id int64, includeHidden bool) (*ProjectDTO, error) {
	project, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !includeHidden && !isPublic(project.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeProjectNotFound, "project not found")
	}
	dto := FromModel(*project)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, statuses []enums.ProjectStatus, includeHidden bool) (*ProjectList, error) {
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid project status")
		}
		if !includeHidden && !isPublic(status) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "status not available")
		}
	}
	if len(statuses) == 0 && !includeHidden {
		statuses = publicStatuses
	}

	before, err := params.BeforeID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListFilter{
		Statuses: statuses,
		BeforeID: before,
		Limit:    pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list projects")
	}

	page, next := pagination.Trim(rows, params.Limit, func(p models.Project) int64 { return p.ID })
	items := make([]ProjectDTO, 0, len(page))
	for _, p := range page {
		items = append(items, FromModel(p))
	}
	return &ProjectList{Items: items, NextCursor: next}, nil
}

func (s *service) load(ctx context.Context, id int64) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProjectNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load project")
	}
	return project, nil
}

func isPublic(status enums.ProjectStatus) bool {
	for _, s := range publicStatuses {
		if s == status {
			return true
		}
	}
	return false
}
