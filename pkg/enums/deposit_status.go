package enums

import "fmt"

// DepositStatus tracks a bank transfer deposit request.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusCompleted DepositStatus = "completed"
	DepositStatusRejected  DepositStatus = "rejected"
	DepositStatusExpired   DepositStatus = "expired"
)

var validDepositStatuses = []DepositStatus{
	DepositStatusPending,
	DepositStatusCompleted,
	DepositStatusRejected,
	DepositStatusExpired,
}

// IsValid reports whether the value is a known DepositStatus.
func (d DepositStatus) IsValid() bool {
	for _, candidate := range validDepositStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDepositStatus converts raw input into a DepositStatus.
func ParseDepositStatus(value string) (DepositStatus, error) {
	for _, candidate := range validDepositStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deposit status %q", value)
}
