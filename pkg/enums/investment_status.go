package enums

import "fmt"

// InvestmentStatus is the lifecycle state of a single placement.
type InvestmentStatus string

const (
	InvestmentStatusActive    InvestmentStatus = "active"
	InvestmentStatusCompleted InvestmentStatus = "completed"
	InvestmentStatusCancelled InvestmentStatus = "cancelled"
	InvestmentStatusRejected  InvestmentStatus = "rejected"
)

var validInvestmentStatuses = []InvestmentStatus{
	InvestmentStatusActive,
	InvestmentStatusCompleted,
	InvestmentStatusCancelled,
	InvestmentStatusRejected,
}

// String implements fmt.Stringer.
func (i InvestmentStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvestmentStatus.
func (i InvestmentStatus) IsValid() bool {
	for _, candidate := range validInvestmentStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvestmentStatus converts raw input into a InvestmentStatus.
func ParseInvestmentStatus(value string) (InvestmentStatus, error) {
	for _, candidate := range validInvestmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid investment status %q", value)
}
