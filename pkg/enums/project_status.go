package enums

import "fmt"

// ProjectStatus tracks where a project is in its funding lifecycle.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusSold      ProjectStatus = "sold"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusDraft,
	ProjectStatusActive,
	ProjectStatusCompleted,
	ProjectStatusSold,
	ProjectStatusCancelled,
}

// String implements fmt.Stringer.
func (p ProjectStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProjectStatus.
func (p ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProjectStatus converts raw input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}

// AcceptsInvestments reports whether new placements may target the project.
func (p ProjectStatus) AcceptsInvestments() bool {
	return p == ProjectStatusActive
}

// Sellable reports whether an admin may record a sale for the project.
func (p ProjectStatus) Sellable() bool {
	return p == ProjectStatusActive || p == ProjectStatusCompleted
}
